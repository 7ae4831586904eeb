// Command toda mounts a FUSE passthrough over a target directory and
// injects configurable faults into the operations that cross it, per
// spec.md. Flag and command wiring follows
// GoogleCloudPlatform-gcsfuse/cmd/root.go's cobra shape, adapted from a
// bucket/mount-point CLI to toda's path/injector-config CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/chaos-mesh/toda/internal/control"
	"github.com/chaos-mesh/toda/internal/injector"
	"github.com/chaos-mesh/toda/internal/logger"
	"github.com/chaos-mesh/toda/internal/supervisor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	path            string
	mountOnly       bool
	verbose         int
	interactivePath string
	logFile         string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "toda",
		Short: "Inject filesystem faults through a FUSE passthrough mount",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, os.Stdin)
		},
	}

	cmd.Flags().StringVar(&f.path, "path", "", "directory to mount the passthrough filesystem over")
	cmd.Flags().BoolVar(&f.mountOnly, "mount-only", false, "mount the passthrough filesystem and stop, without running replacers or enabling injection")
	cmd.Flags().IntVar(&f.verbose, "verbose", 0, "log verbosity: 0 warn, 1 info, 2+ debug")
	cmd.Flags().StringVar(&f.interactivePath, "interactive-path", "", "Unix-domain socket path for the control surface (disabled if empty)")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "path to write rotated logs to (stderr if empty)")
	cmd.MarkFlagRequired("path")

	return cmd
}

func run(ctx context.Context, f *flags, stdin io.Reader) error {
	log, closer := logger.New(logger.Config{
		Level:    logger.LevelFromVerbosity(f.verbose),
		FilePath: f.logFile,
	})
	defer closer.Close()

	initialInjectors, err := readInitialInjectors(stdin)
	if err != nil {
		return fmt.Errorf("toda: reading initial injector config from stdin: %w", err)
	}

	registry := prometheus.NewRegistry()
	sup := supervisor.New(supervisor.Config{
		Path:            f.path,
		MountOnly:       f.mountOnly,
		InteractivePath: f.interactivePath,
		Injectors:       initialInjectors,
	}, log, registry)

	return sup.Run(ctx)
}

// readInitialInjectors decodes the startup JSON array of injector configs
// from stdin. An empty stdin (nothing piped in, as when toda is started
// interactively with only --interactive-path given) yields no injectors
// rather than an error — the control surface's first /update then
// populates the pipeline.
func readInitialInjectors(stdin io.Reader) ([]injector.Injector, error) {
	body, err := io.ReadAll(stdin)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return control.ParseBody(body)
}
