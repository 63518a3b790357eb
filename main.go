package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"markestedt/tokenspark/config"
)

var rootCmd = &cobra.Command{
	Use:           "tokenspark",
	Short:         "Transform the selected text of any application with an LLM",
	Long:          `TokenSpark captures the current selection, sends it through the active profile's prompt and pastes or shows the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		setupLogging(debug)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon: hotkeys, tray and dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		noTray, _ := cmd.Flags().GetBool("no-tray")
		return runDaemon(!noTray)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	runCmd.Flags().Bool("no-tray", false, "Run without the system tray icon")
	rootCmd.AddCommand(runCmd)
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

func runDaemon(withTray bool) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	// One daemon per user: two would fight over the clipboard
	lock := flock.New(filepath.Join(dir, "tokenspark.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return errors.New("tokenspark is already running")
	}
	defer lock.Unlock()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("Configuration loaded", "path", cfg.Path())

	agent, err := NewAgent(config.NewStore(cfg), AgentOptions{Dir: dir, Tray: withTray})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	defer agent.Close()

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- agent.Run(ctx)
		cancel()
	}()

	if tray := agent.Tray(); tray != nil {
		go func() {
			select {
			case <-ctx.Done():
				tray.Stop()
			case <-tray.WaitForQuit():
				cancel()
			}
		}()
		// The tray owns the main thread until it quits
		tray.Run()
		cancel()
	}

	<-ctx.Done()
	err = <-runErr
	slog.Info("TokenSpark stopped")
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
