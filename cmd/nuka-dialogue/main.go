package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "nuka-dialogue",
	Short: "Multi-agent dialogue simulator with reflective memory",
	Long: `nuka-dialogue runs conversations between simulated characters. Each
character keeps a memory stream ranked by recency, importance and relevance,
and reflects on it once enough has happened.

Commands:
  run        Seed the configured agents and run a fixed number of turns
  serve      Expose the simulation over an HTTP control API
  converse   Let two agents talk until one of them says goodbye
  console    Interactive client for a running server
  watch      Follow a run's transcript over Redis`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $CONFIG_PATH or configs/nuka-dialogue.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(converseCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/nuka-dialogue.json"
}

// newLogger builds a development logger at debug level and a production
// logger otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	var cfg zap.Config
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
