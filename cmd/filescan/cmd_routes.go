package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRoutesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the active route table as YAML",
		Long: "routes prints the table loaded from BEAVER_FILESCAN_ROUTES_FILE, or the\n" +
			"built-in one. The output is a valid routes file to start from.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := routeTable(a.cfg)
			if err != nil {
				return err
			}
			if _, err := newRouter(a.cfg); err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(table)
		},
	}
}
