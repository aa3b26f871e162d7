package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newTasteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "taste <file>...",
		Short: "Print the MIME type and flavors of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taster, err := newTaster(a.cfg)
			if err != nil {
				return err
			}
			router, err := newRouter(a.cfg)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				t := taster.Taste(data, path)

				var inspectors []string
				for _, r := range router.Route(t.Flavors) {
					inspectors = append(inspectors, r.Inspector.Name())
				}
				if err := enc.Encode(map[string]any{
					"source":     path,
					"mime":       t.MIME,
					"flavors":    t.Flavors,
					"inspectors": inspectors,
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
