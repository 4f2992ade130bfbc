package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhuss/chatrelay/pkg/config"
	"github.com/rhuss/chatrelay/pkg/debug"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	envFiles   []string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "chatrelay",
		Short:        "chatrelay - chat relay for hosted model endpoints",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return opts.load()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default: ./config.yaml or /etc/chatrelay/config.yaml)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil,
		"dotenv files to load before reading the environment (default: .env if present)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads dotenv files, then the layered configuration, and configures
// logging from it.
func (o *rootOptions) load() error {
	if err := loadEnvFiles(o.envFiles); err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	o.cfg = cfg
	return nil
}

// loadEnvFiles loads the given dotenv files. Without explicit files an
// optional .env is loaded. Variables already set in the environment win.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}
