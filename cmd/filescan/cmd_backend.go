package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newBackendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backend",
		Short: "Run inspection workers against the shared store",
		Long: "backend pulls work items from the configured coordination store until\n" +
			"interrupted. Run it on as many hosts as needed; they share budgets,\n" +
			"dedup records and results through the store.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, err := newBackend(a.cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
