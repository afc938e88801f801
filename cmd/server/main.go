package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jnanayoni/internal/config"
	"jnanayoni/internal/utils"
)

// cli holds the state shared by every command once PersistentPreRunE has run.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "jnanayoni",
		Short: "Jñānayoni bilingual library service",
		Long: `Jñānayoni serves the reader and library-society portals, the JSON API and the
background loan sweeper from a single SQLite database.

Configuration comes from jnanayoni.yaml (or --config) and JNY_* environment variables.
The master key is read from MASTER_KEY_HEX or master.key; create one with gensecret.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./jnanayoni.yaml)")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.seedCmd(),
		c.userCmd(),
		c.qrCmd(),
		c.gensecretCmd(),
		c.backupCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
