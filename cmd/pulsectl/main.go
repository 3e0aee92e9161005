// Command pulsectl operates a pulse-diary data directory: sync with the
// remote store, sign in, migrate identities and take or restore backups.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/readbori/pulse-diary/internal/config"
	"github.com/readbori/pulse-diary/internal/logger"
	"github.com/readbori/pulse-diary/internal/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

// cli carries state resolved by the root command for its sub-commands.
type cli struct {
	envFile string
	dataDir string
	owner   string
	debug   bool

	cfg     *config.Config
	log     zerolog.Logger
	logFile io.Closer
	stderr  io.Writer
}

// closeLog releases the log file. Later events go to stderr only.
func (c *cli) closeLog() error {
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	c.log = c.log.Output(c.stderr)
	log.Logger = c.log
	return err
}

// session is the identity the command acts as.
func (c *cli) session() model.Session {
	return model.Session{OwnerID: c.owner, RemoteConfigured: c.cfg.RemoteConfigured()}
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "pulsectl",
		Short:         "Manage a pulse-diary data directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(zerolog.Nop(), c.envFile)
			if err != nil {
				return err
			}
			if c.dataDir != "" {
				cfg.DataDir = c.dataDir
			}
			if c.debug {
				cfg.LogLevel = "debug"
			}
			c.cfg = cfg
			c.stderr = cmd.ErrOrStderr()
			c.log, c.logFile = logger.NewWithOptions("pulsectl", logger.Options{
				Level:  cfg.LogLevel,
				File:   cfg.LogFile,
				Stdout: c.stderr,
			})
			log.Logger = c.log
			c.log.Debug().
				Str("data_dir", cfg.DataDir).
				Str("remote_driver", cfg.RemoteDriver).
				Str("owner", c.owner).
				Msg("configuration loaded")
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Optional dotenv file read before the environment")
	rootCmd.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "Data directory (overrides PULSE_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&c.owner, "owner", model.AnonymousOwner, "Owner identity to act as")
	rootCmd.PersistentFlags().BoolVarP(&c.debug, "debug", "d", false, "Enable verbose debug output")

	rootCmd.AddCommand(newSyncCmd(c))
	rootCmd.AddCommand(newSignInCmd(c))
	rootCmd.AddCommand(newMigrateCmd(c))
	rootCmd.AddCommand(newExportCmd(c))
	rootCmd.AddCommand(newImportCmd(c))
	rootCmd.AddCommand(newRecordsCmd(c))
	rootCmd.AddCommand(newStreakCmd(c))

	return rootCmd
}
