package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gobeaver/filescan"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		limits limitFlags
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "scan <file>...",
		Short: "Scan files and print one JSON event per extracted file",
		Long: "scan submits each file to a backend running in this process and\n" +
			"prints every event of its recursion tree as a JSON line.\n\n" +
			"With a shared store (BEAVER_FILESCAN_STORE_DRIVER=postgres) other backends\n" +
			"pull work from the same queue.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := newBackend(a.cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			runCtx, cancelWorkers := context.WithCancel(ctx)
			defer cancelWorkers()
			workers, wctx := errgroup.WithContext(runCtx)
			workers.Go(func() error { return backend.Run(wctx) })

			scanErr := scanFiles(ctx, a.cfg, backend, &limits, args, func(path string, report *filescan.Report) error {
				return writeReport(cmd.OutOrStdout(), path, report, pretty)
			})

			cancelWorkers()
			if err := workers.Wait(); err != nil && scanErr == nil {
				scanErr = err
			}
			return scanErr
		},
	}

	cmd.Flags().AddFlagSet(limits.flagSet())
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}

// scanFiles scans paths one after another. It stops at the first file that
// cannot be read or whose submission fails.
func scanFiles(ctx context.Context, cfg *filescan.Config, backend *filescan.Backend, limits *limitFlags, paths []string, emit func(string, *filescan.Report) error) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sub, err := limits.submission(cfg, path, data)
		if err != nil {
			return err
		}

		report, err := backend.Scan(ctx, sub)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}
		if err := emit(path, report); err != nil {
			return err
		}
	}
	return nil
}
