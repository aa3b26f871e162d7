package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gobeaver/filescan"
	"github.com/gobeaver/filescan/logging"
)

type globalFlags struct {
	envFile   string
	logLevel  string
	logFormat string
}

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	flags globalFlags
	cfg   *filescan.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "filescan",
		Short: "Recursive file inspection backend",
		Long: "filescan tastes files, routes them to inspectors and recursively\n" +
			"inspects everything they extract, producing one event per file.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.Version = version

	f := root.PersistentFlags()
	f.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded before reading BEAVER_FILESCAN_* variables")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides BEAVER_FILESCAN_LOG_LEVEL")
	f.StringVar(&a.flags.logFormat, "log-format", "", "log format (text, json); overrides BEAVER_FILESCAN_LOG_FORMAT")

	root.AddCommand(
		newScanCmd(a),
		newBackendCmd(a),
		newWatchCmd(a),
		newTasteCmd(a),
		newRoutesCmd(a),
	)
	return root
}

// load reads the dotenv file, the environment and configures logging.
// A missing dotenv file is not an error.
func (a *app) load() error {
	if a.flags.envFile != "" {
		if err := godotenv.Load(a.flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.flags.envFile, err)
		}
	}

	cfg, err := filescan.GetConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		cfg.LogFormat = a.flags.logFormat
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.LogFormat, os.Stderr)

	a.cfg = cfg
	return nil
}
