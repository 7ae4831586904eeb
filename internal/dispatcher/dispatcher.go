// Package dispatcher bounds concurrent blocking host syscalls and tags each
// request with a correlation id, the Go analogue of the original's
// runtime.rs split between the async runtime (spawn) and a dedicated
// blocking thread pool (spawn_blocking), and of async_fs.rs's spawn_reply
// wrapping every op in a traced task.
package dispatcher

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/chaos-mesh/toda/internal/passthroughfs"
)

// Dispatcher wraps a *passthroughfs.FileSystem, embedding it so every
// operation it doesn't override here is promoted straight through
// unmodified. The handful of ops overridden are the ones that block on a
// host syscall for potentially unbounded time (opens, reads, writes,
// directory listing, fsync) — exactly async_fs.rs's spawn_blocking set.
type Dispatcher struct {
	*passthroughfs.FileSystem
	sem    chan struct{}
	logger *log.Logger
}

// New builds a Dispatcher bounding concurrent blocking calls to maxBlocking
// and logging each one through logger (nil disables logging).
func New(fs *passthroughfs.FileSystem, maxBlocking int, logger *log.Logger) *Dispatcher {
	if maxBlocking <= 0 {
		maxBlocking = 1
	}
	return &Dispatcher{FileSystem: fs, sem: make(chan struct{}, maxBlocking), logger: logger}
}

// acquire blocks until a blocking-pool slot is free or ctx is cancelled,
// returning a release func on success.
func (d *Dispatcher) acquire(ctx context.Context) (func(), error) {
	select {
	case d.sem <- struct{}{}:
		return func() { <-d.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// traced assigns a correlation id to one call, runs fn, and logs its
// outcome and duration — mirroring spawn_reply's trace_span per request id.
func (d *Dispatcher) traced(op string, fn func() error) error {
	id := uuid.New()
	start := time.Now()
	err := fn()
	if d.logger != nil {
		d.logger.Printf("op=%s id=%s duration=%s err=%v", op, id, time.Since(start), err)
	}
	return err
}

func (d *Dispatcher) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return d.traced("open", func() error { return d.FileSystem.OpenFile(ctx, op) })
}

func (d *Dispatcher) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return d.traced("read", func() error { return d.FileSystem.ReadFile(ctx, op) })
}

func (d *Dispatcher) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return d.traced("write", func() error { return d.FileSystem.WriteFile(ctx, op) })
}

func (d *Dispatcher) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return d.traced("fsync", func() error { return d.FileSystem.SyncFile(ctx, op) })
}

func (d *Dispatcher) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return d.traced("opendir", func() error { return d.FileSystem.OpenDir(ctx, op) })
}

func (d *Dispatcher) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	release, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return d.traced("readdir", func() error { return d.FileSystem.ReadDir(ctx, op) })
}
