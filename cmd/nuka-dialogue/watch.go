package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/bus"
	"github.com/nidhogg/nuka-dialogue/internal/config"
	"github.com/spf13/cobra"
)

var (
	watchRun    string
	watchRedis  string
	watchServer string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a run's transcript over Redis",
	Long: `Prints turns as a running server publishes them. Without --run the
current run ID is read from the server given by --server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(configPath())
		if err != nil {
			return err
		}
		level := cfg.Server.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger, err := newLogger(level)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer logger.Sync()

		redisURL := cfg.Redis.URL
		if watchRedis != "" {
			redisURL = watchRedis
		}
		if redisURL == "" {
			return fmt.Errorf("no redis url: set redis.url or --redis")
		}
		runID := watchRun
		if runID == "" {
			runID, err = currentRunID(ctx, &http.Client{Timeout: 10 * time.Second}, watchServer)
			if err != nil {
				return err
			}
		}

		b, err := bus.Connect(ctx, redisURL, cfg.Redis.StreamPrefix, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "following %s\n", b.Stream(runID))
		followRun(ctx, cmd.OutOrStdout(), b, runID)
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchRun, "run", "", "run ID to follow (default the server's current run)")
	watchCmd.Flags().StringVar(&watchRedis, "redis", "", "override redis.url")
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:8080", "server URL used to look up the current run")
}

// currentRunID asks a running server which run it is on.
func currentRunID(ctx context.Context, client *http.Client, server string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/sim/status", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query server status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server status: %s", resp.Status)
	}
	var status struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("decode server status: %w", err)
	}
	if status.RunID == "" {
		return "", fmt.Errorf("server reported no run id")
	}
	return status.RunID, nil
}

// followRun prints each published turn until ctx is done.
func followRun(ctx context.Context, out io.Writer, b *bus.TranscriptBus, runID string) {
	for m := range b.Subscribe(ctx, runID) {
		fmt.Fprintf(out, "[%s] %s: %s\n", m.WorldTime.Format("15:04"), m.Speaker, m.Content)
	}
}
