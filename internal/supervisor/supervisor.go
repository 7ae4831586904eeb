// Package supervisor drives the lifecycle of spec.md §4.7: path
// canonicalization, the shadow-path move, the FUSE mount, process-state
// replacement, the (no-op) injection enable step, latency interruption, and
// teardown. Grounded on
// original_source/src/mount_injector.rs's MountInjector/MountInjectionGuard
// split and src/fuse_device.rs/src/signal.rs/src/stop.rs for the supporting
// pieces.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/toda/internal/control"
	"github.com/chaos-mesh/toda/internal/dispatcher"
	"github.com/chaos-mesh/toda/internal/injector"
	"github.com/chaos-mesh/toda/internal/mountswap"
	"github.com/chaos-mesh/toda/internal/passthroughfs"
	"github.com/chaos-mesh/toda/internal/ptrace"
	"github.com/chaos-mesh/toda/internal/replacer"
	"github.com/chaos-mesh/toda/internal/shadowpath"
)

// fuseDeviceMode/major/minor match fuse_device.rs's mknod("/dev/fuse",
// S_IFCHR, 0666, makedev(10, 229)).
const (
	fuseDevicePath  = "/dev/fuse"
	fuseDeviceMode  = 0666
	fuseDeviceMajor = 10
	fuseDeviceMinor = 229
)

// retryUnmountAttempts/Delay mirror mount_injector.rs's
// retry(Fixed::from_millis(200).take(10), ...) around the teardown umount.
const (
	retryUnmountAttempts = 10
	retryUnmountDelay    = 200 * time.Millisecond
)

// Config is everything the CLI layer gathers before the lifecycle starts.
type Config struct {
	// Path is the directory to inject faults on.
	Path string
	// MountOnly, when true, stops after step 5 (mount up, no replacers run,
	// no injection enabled) — used for debugging the passthrough mount
	// itself in isolation.
	MountOnly bool
	// InteractivePath is the Unix-domain socket path the control surface
	// binds to. Empty disables the control surface.
	InteractivePath string
	// MaxBlockingOps bounds concurrent blocking host syscalls handled by
	// internal/dispatcher.
	MaxBlockingOps int
	// Injectors is the initial pipeline content, normally parsed from stdin
	// before Run is called.
	Injectors []injector.Injector
}

// Supervisor owns one run of the fault-injection lifecycle.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	registry prometheus.Registerer

	shadowPath string

	mountSwap *mountswap.MountSwap
	engine    *ptrace.Engine
	pipeline  *injector.Pipeline

	mountedServer *fuse.MountedFileSystem
	control       *control.Surface
	controlLn     net.Listener

	healthMu sync.Mutex
	healthy  error

	shutdown chan struct{}
	once     sync.Once
}

// New builds a Supervisor. Nothing is touched on the host until Run is
// called.
func New(cfg Config, logger *slog.Logger, registry prometheus.Registerer) *Supervisor {
	if cfg.MaxBlockingOps <= 0 {
		cfg.MaxBlockingOps = 32
	}
	return &Supervisor{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		pipeline: injector.NewPipeline(cfg.Injectors),
		engine:   ptrace.NewEngine(),
		shutdown: make(chan struct{}),
	}
}

// Status reports the Supervisor's health for the control surface's
// /get_status, set by the mount goroutine if the FUSE session ends
// unexpectedly.
func (s *Supervisor) Status() error {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	return s.healthy
}

func (s *Supervisor) setUnhealthy(err error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	if s.healthy == nil {
		s.healthy = err
	}
}

// RequestShutdown schedules teardown, mirroring writing a token to the
// self-pipe so a blocking read in the main goroutine returns. Safe to call
// more than once or concurrently.
func (s *Supervisor) RequestShutdown(reason string) {
	s.once.Do(func() {
		s.logger.Warn("supervisor: shutdown requested", "reason", reason)
		close(s.shutdown)
	})
}

// Run executes the full lifecycle and blocks until shutdown, then tears
// down and returns. A non-nil error means setup failed before the mount
// went up (fatal), the replacers or the control surface failed after the
// mount (teardown has then already been attempted), or teardown itself
// failed.
func (s *Supervisor) Run(ctx context.Context) error {
	target, err := filepath.Abs(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("supervisor: canonicalize path: %w", err)
	}
	target = filepath.Clean(target)

	shadow, err := shadowpath.Encode(target)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	s.shadowPath = shadow

	procFS, err := procfs.NewDefaultFS()
	if err != nil {
		return fmt.Errorf("supervisor: open procfs: %w", err)
	}

	replacers := replacer.NewUnionReplacer(
		replacer.NewFdReplacer(procFS, s.engine, s.logger),
		replacer.NewCwdReplacer(procFS, s.engine, s.logger),
		replacer.NewMmapReplacer(procFS, s.engine, s.logger),
	)

	// Step 3: Prepare against (path, path) before the move — matching
	// processes still point at target; the rewrite becomes a same-path
	// no-op rewrite that primes each replacer's /proc walk, per spec.md
	// §4.7 point 3.
	if err := replacers.Prepare(target, target); err != nil {
		return fmt.Errorf("supervisor: prepare replacers pre-move: %w", err)
	}

	if err := ensureFuseDevice(); err != nil {
		return fmt.Errorf("supervisor: ensure /dev/fuse: %w", err)
	}

	if err := os.MkdirAll(shadow, 0755); err != nil {
		return fmt.Errorf("supervisor: create shadow dir: %w", err)
	}

	s.mountSwap = mountswap.New(procFS)
	if err := s.mountSwap.Swap(target, shadow); err != nil {
		return fmt.Errorf("supervisor: mount swap: %w", err)
	}

	fs := passthroughfs.New(shadow, s.pipeline)
	disp := dispatcher.New(fs, s.cfg.MaxBlockingOps, slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))

	mfs, err := fuse.Mount(target, fuseutil.NewFileSystemServer(disp), &fuse.MountConfig{
		FSName:      "toda",
		Options:     map[string]string{"allow_other": "", "default_permissions": ""},
		ErrorLogger: slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	})
	if err != nil {
		s.mountSwap.Reverse()
		return fmt.Errorf("supervisor: mount fuse: %w", err)
	}
	s.mountedServer = mfs

	go func() {
		if err := mfs.Join(context.Background()); err != nil {
			s.setUnhealthy(fmt.Errorf("fuse session ended: %w", err))
			s.RequestShutdown("fuse session ended")
		}
	}()

	if s.cfg.MountOnly {
		s.waitForShutdown(ctx)
		return s.teardown(target)
	}

	// Step 6: run replacers now that the mount is live, redirecting
	// already-open references onto the new mount.
	if err := replacers.Run(); err != nil {
		if teardownErr := s.teardown(target); teardownErr != nil {
			return fmt.Errorf("supervisor: run replacers: %w (teardown also failed: %v)", err, teardownErr)
		}
		return fmt.Errorf("supervisor: run replacers: %w", err)
	}

	// Step 7.
	s.enableInjection()

	if s.cfg.InteractivePath != "" {
		if err := s.startControlSurface(); err != nil {
			if teardownErr := s.teardown(target); teardownErr != nil {
				return fmt.Errorf("supervisor: start control surface: %w (teardown also failed: %v)", err, teardownErr)
			}
			return fmt.Errorf("supervisor: start control surface: %w", err)
		}
	}

	s.waitForShutdown(ctx)

	// Step 9: interrupt in-progress latency waits, re-prepare replacers
	// against (path, shadow_path) to redirect references back, then
	// teardown. The pipeline keeps its injectors until the unmount, so
	// injection is not switched off before the replacers run.
	s.pipeline.Interrupt()
	if err := replacers.Prepare(target, shadow); err == nil {
		replacers.Run()
	} else {
		s.logger.Warn("supervisor: prepare replacers pre-teardown failed", "error", err)
	}

	return s.teardown(target)
}

func (s *Supervisor) enableInjection() {
	// Injection is "enabled" simply by the pipeline already holding the
	// configured injectors; passthroughfs consults it unconditionally.
	// Kept as an explicit step so a future toggle (disable without losing
	// the configured rules) has an obvious home.
}

func (s *Supervisor) startControlSurface() error {
	if err := os.RemoveAll(s.cfg.InteractivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.InteractivePath)
	if err != nil {
		return fmt.Errorf("listen on interactive path: %w", err)
	}
	s.controlLn = ln

	s.control = control.New(s.pipeline, s.Status, s.RequestShutdown, s.logger, s.registry)
	go func() {
		if err := s.control.Serve(ln); err != nil && !isUseOfClosedListener(err) {
			s.logger.Warn("supervisor: control surface stopped", "error", err)
		}
	}()
	return nil
}

func isUseOfClosedListener(err error) bool {
	return err != nil && err.Error() == "use of closed network connection"
}

// waitForShutdown blocks until either an OS termination signal, ctx is
// cancelled, or RequestShutdown fires — the Go analogue of the self-pipe
// read in spec.md §4.7 step 8. SIGCHLD is ignored so FUSE helper processes
// reap cleanly without waking this wait.
func (s *Supervisor) waitForShutdown(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGCHLD)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-s.shutdown:
	case <-ctx.Done():
	}
}

func (s *Supervisor) teardown(target string) error {
	if s.controlLn != nil {
		s.controlLn.Close()
	}
	if s.mountedServer != nil {
		if err := mountswap.RetryUnmount(target, retryUnmountAttempts, retryUnmountDelay); err != nil {
			return fmt.Errorf("supervisor: teardown unmount: %w", err)
		}
		if err := s.mountedServer.Join(context.Background()); err != nil {
			s.logger.Warn("supervisor: fuse session join after unmount", "error", err)
		}
	}
	if s.mountSwap != nil {
		if err := s.mountSwap.Reverse(); err != nil {
			return fmt.Errorf("supervisor: teardown mount swap reverse: %w", err)
		}
	}
	return nil
}

// ensureFuseDevice mknod's /dev/fuse if it is missing from this mount
// namespace, tolerating EEXIST exactly like fuse_device.rs's mkfuse_node.
func ensureFuseDevice() error {
	dev := int(unix.Mkdev(fuseDeviceMajor, fuseDeviceMinor))
	err := unix.Mknod(fuseDevicePath, uint32(unix.S_IFCHR|fuseDeviceMode), dev)
	if err != nil && err != unix.EEXIST {
		return err
	}
	return nil
}
