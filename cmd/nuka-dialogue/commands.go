package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/api"
	"github.com/nidhogg/nuka-dialogue/internal/app"
	"github.com/nidhogg/nuka-dialogue/internal/config"
	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runTurns     int
	serveSeed    bool
	converseMax  int
	consoleURL   string
	consoleTicks int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a headless simulation and print the transcript",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, logger, err := setup(ctx)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer a.Close()

		if err := a.Seed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		turns := runTurns
		if turns <= 0 {
			turns = a.Config.Simulation.MaxTurns
		}
		_, err = a.Sim.Run(ctx, turns)
		for _, t := range a.History.Turns() {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", t.At.Format("15:04"), t.Speaker, t.Message)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		for _, ag := range a.Agents {
			logger.Info("agent memory",
				zap.String("agent", ag.Name()),
				zap.Int("records", ag.Memory().Stream().Len()),
				zap.Int("reflections", ag.Memory().Passes()))
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, logger, err := setup(ctx)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer a.Close()

		if serveSeed {
			if err := a.Seed(ctx); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}

		port := a.Config.Server.Port
		if port == 0 {
			port = 8080
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.NewHandler(a, logger).Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("nuka-dialogue listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var converseCmd = &cobra.Command{
	Use:   "converse <agent> <agent> <opening line>",
	Short: "Let two configured agents converse",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, logger, err := setup(ctx)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer a.Close()

		first, ok := a.Agent(args[0])
		if !ok {
			return fmt.Errorf("%w: %s", dialogue.ErrUnknownAgent, args[0])
		}
		second, ok := a.Agent(args[1])
		if !ok {
			return fmt.Errorf("%w: %s", dialogue.ErrUnknownAgent, args[1])
		}
		if err := a.Seed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		exchanges, err := dialogue.Converse(ctx, first, second, args[2], converseMax)
		for _, e := range exchanges {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", e.Speaker, e.Utterance)
		}
		return err
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive client for a running server",
	Long: `Lines typed at the prompt are injected as narration, then the
simulation advances by --ticks turns. Commands: /status, /agents, /reset, exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "nuka-dialogue console | server: %s\n", consoleURL)
		fmt.Fprintln(out, "Type 'exit' or 'quit' to leave.")

		client := &http.Client{Timeout: 5 * time.Minute}
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "\n> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			input := strings.TrimSpace(scanner.Text())
			switch input {
			case "":
				continue
			case "exit", "quit":
				fmt.Fprintln(out, "Bye!")
				return nil
			case "/status":
				printResponse(out, client, http.MethodGet, "/api/sim/status", nil)
				continue
			case "/agents":
				printResponse(out, client, http.MethodGet, "/api/agents", nil)
				continue
			case "/reset":
				printResponse(out, client, http.MethodPost, "/api/sim/reset", nil)
				continue
			}
			printResponse(out, client, http.MethodPost, "/api/sim/inject", map[string]string{"message": input})
			printResponse(out, client, http.MethodPost, "/api/sim/tick", map[string]int{"turns": consoleTicks})
		}
	},
}

func init() {
	runCmd.Flags().IntVarP(&runTurns, "turns", "n", 0, "turns to run (default simulation.max_turns)")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", true, "store configured memories and inject the premise on start")
	converseCmd.Flags().IntVar(&converseMax, "max-rounds", 10, "maximum replies after the opening line")
	consoleCmd.Flags().StringVar(&consoleURL, "server", "http://localhost:8080", "server URL")
	consoleCmd.Flags().IntVar(&consoleTicks, "ticks", 2, "turns to run after each injected line")
}

func setup(ctx context.Context) (*app.App, *zap.Logger, error) {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Server.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	logger.Info("config loaded", zap.String("path", path))

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func printResponse(out io.Writer, client *http.Client, method, path string, body interface{}) {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, consoleURL+path, rd)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if path == "/api/sim/tick" && resp.StatusCode == http.StatusOK {
		var turns []dialogue.Turn
		if json.Unmarshal(data, &turns) == nil {
			for _, t := range turns {
				fmt.Fprintf(out, "%s: %s\n", t.Speaker, t.Message)
			}
			return
		}
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	fmt.Fprintf(out, "%s\n", bytes.TrimSpace(data))
}
