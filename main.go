package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BatmanBruc/mother-bot/internal/config"
)

var Version = "dev"

func main() {
	_ = config.LoadEnvFile("config.env")

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rootCmd := &cobra.Command{
		Use:     "mother-bot",
		Short:   "Telegram bot that sells and provisions shop bots",
		Version:      Version,
		SilenceUsage: true,
	}
	serve := serveCmd(log)
	rootCmd.RunE = serve.RunE
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(migrateCmd(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(log)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, log)
		},
	}
}

func migrateCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(log)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg, log)
		},
	}
}

func loadConfig(log *logrus.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setLogLevel(log, cfg.LogLevel)
	return cfg, nil
}

// setLogLevel applies level, keeping info when it does not parse.
func setLogLevel(log *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("log_level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}
