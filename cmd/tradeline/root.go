package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/tradeline/internal/config"
	"github.com/rickgao/tradeline/internal/logging"
	"github.com/rickgao/tradeline/internal/version"
)

// dashboardLogFile receives logs while the dashboard owns the terminal and
// no log file is configured.
const dashboardLogFile = ".tradeline/tradeline.log"

// app holds what every subcommand shares.
type app struct {
	cfgFile  string
	envFiles []string

	cfg       *config.ClientConfig
	logger    *slog.Logger
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "tradeline",
		Short:         "Real-time order notifications for a signed-in trading session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd.Name() == "watch")
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "configs/tradeline.yaml", "path to config file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(
		newRunCmd(a),
		newWatchCmd(a),
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads .env and the config and builds the logger. A missing config
// file falls back to defaults.
func (a *app) setup(dashboard bool) error {
	if err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}

	cfg, err := config.LoadAndValidate(a.cfgFile)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		err = cfg.Validate()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logCfg := cfg.Logging
	if dashboard && logCfg.File == "" {
		logCfg.File = dashboardLogFile
	}
	logger, closer, err := logging.New(logCfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)
	a.logger = logger
	a.logCloser = closer

	logger.Debug("configuration loaded",
		"version", version.Version,
		"config", a.cfgFile,
		"api_url", cfg.API.BaseURL,
		"ws_url", cfg.Connection.WSURL,
		"cache", cfg.Cache.Backend,
	)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tradeline", version.String())
		},
	}
}
