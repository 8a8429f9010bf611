package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledger-dash/internal/config"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0"
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the loaded configuration from the root command to its
// subcommands.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	var configFile string

	root := &cobra.Command{
		Use:          "ledger-dash",
		Short:        "Monitoring dashboard for a ledger and voting server",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg

			// Configure slog with JSON handler and configured log level
			slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: parseLogLevel(cfg.Log.Level),
			})))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	flags.String("upstream", "", "ledger server base URL (upstream.url)")
	flags.String("log-level", "", "DEBUG, INFO, WARN or ERROR (log.level)")
	for key, name := range map[string]string{"upstream.url": "upstream", "log.level": "log-level"} {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	root.AddCommand(newServeCmd(a), newSnapshotCmd(a), newMineCmd(a))
	return root
}

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
