package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gobeaver/filescan/driver/local"
	"github.com/gobeaver/filescan/logging"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		limits    limitFlags
		pattern   string
		recursive bool
		settle    time.Duration
		parallel  int
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Scan files as they appear in a directory",
		Long: "watch submits every file written into dir once it has stopped\n" +
			"changing, and prints its events as JSON lines.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.New("watch")
			watcher, err := local.NewWatcher(args[0],
				local.WithPattern(pattern),
				local.WithRecursive(recursive),
				local.WithSettle(settle),
				local.WithWatchLogger(logger),
			)
			if err != nil {
				return err
			}

			backend, err := newBackend(a.cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return backend.Run(gctx) })

			scans := &errgroup.Group{}
			scans.SetLimit(max(parallel, 1))
			var out sync.Mutex

			err = watcher.Watch(gctx, func(path string) {
				scans.Go(func() error {
					data, err := os.ReadFile(path)
					if err != nil {
						logger.Warn("read failed", "path", path, "error", err)
						return nil
					}
					sub, err := limits.submission(a.cfg, path, data)
					if err != nil {
						logger.Error("invalid limits", "error", err)
						return nil
					}
					report, err := backend.Scan(gctx, sub)
					if err != nil {
						logger.Error("scan failed", "path", path, "error", err)
						return nil
					}

					out.Lock()
					defer out.Unlock()
					if err := writeReport(cmd.OutOrStdout(), path, report, false); err != nil {
						logger.Error("write failed", "path", path, "error", err)
					}
					return nil
				})
			})
			stop()
			scans.Wait()
			if werr := g.Wait(); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}

	f := cmd.Flags()
	f.AddFlagSet(limits.flagSet())
	f.StringVar(&pattern, "pattern", "", "glob the base name must match (default all files)")
	f.BoolVar(&recursive, "recursive", false, "watch subdirectories too")
	f.DurationVar(&settle, "settle", 500*time.Millisecond, "quiet period before a file is scanned")
	f.IntVar(&parallel, "parallel", 4, "files scanned at once")
	return cmd
}
