// Package main is the CLI entry point for replayd.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mgrindstad/replayd/internal/buffer"
	"github.com/mgrindstad/replayd/internal/config"
	"github.com/mgrindstad/replayd/internal/daemon"
	"github.com/mgrindstad/replayd/internal/domain"
	"github.com/mgrindstad/replayd/internal/hotkey"
	"github.com/mgrindstad/replayd/internal/infra"
	"github.com/mgrindstad/replayd/internal/status"
	"github.com/mgrindstad/replayd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "replayd",
	Short: "Instant replay daemon - keeps the last seconds of your games on tap",
	Long: `replayd watches for configured applications and, while one runs, keeps a
rolling recording of screen and audio in memory. Pressing the flush hotkey
writes the buffered seconds out as an MP4 clip. Nothing touches disk until
you ask for it.

The daemon is managed by the external control application; this CLI exists
to launch it, inspect it, and clean up its login item.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Runs the capture daemon in the foreground until interrupted. Logs go to
the log file inside the data directory. This is what 'start' and the login
item execute; run it directly for debugging.`,
	RunE: runRun,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Long:  `Spawns the daemon detached from this terminal and prints its PID.`,
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon status",
	Long:  `Prints the daemon's last published state: what it is recording, the most recent clip, and any error.`,
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var unregisterStartupCmd = &cobra.Command{
	Use:   "unregister-startup",
	Short: "Remove the login item",
	Long:  `Removes the login item the daemon registers for itself, so it no longer starts automatically. A running daemon is not stopped.`,
	RunE:  runUnregisterStartup,
}

var (
	dataDir    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory (config, status, logs)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(unregisterStartupCmd)
}

// resolvePaths picks the data directory: the --data-dir flag wins, otherwise
// the per-user default.
func resolvePaths() (infra.Paths, error) {
	if dataDir != "" {
		return infra.Paths{DataDir: dataDir}, nil
	}
	return infra.DefaultPaths()
}

func runRun(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	if err := paths.EnsureDataDir(); err != nil {
		return err
	}

	logger := createLogger(paths)
	defer func() { _ = logger.Sync() }()

	logger.Info("replayd starting",
		zap.String("version", Version),
		zap.String("data_dir", paths.DataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	tracker := status.NewTracker(Version)
	publisher := status.NewPublisher(tracker, paths.StatusFile(), logger)

	// Without a usable H.264 encoder the daemon could never record anything.
	// Leave the failure in the status file for the control application.
	encoderName, err := infra.ProbeH264Encoder(ctx, logger)
	if err != nil {
		logger.Error("encoder probe failed", zap.Error(err))
		tracker.SetError(err)
		publisher.Publish()
		return err
	}

	cfg, err := config.LoadOrCreate(paths.ConfigFile())
	if err != nil {
		logger.Warn("configuration unusable, starting with defaults", zap.Error(err))
		cfg = config.Default()
	}

	// Best effort: the daemon works fine without a login item.
	if execPath, err := os.Executable(); err == nil {
		if err := infra.NewStartupManager(logger).Register(execPath); err != nil {
			logger.Warn("could not register login item", zap.Error(err))
		}
	}

	ring := buffer.New(cfg.BufferLengthSecs)
	factory := daemon.PipelineFactory{
		VideoSource:  func() domain.VideoSource { return infra.NewScreenSource(logger) },
		AudioSource:  func() domain.AudioSource { return infra.NewPortAudioSource(logger) },
		VideoEncoder: func() domain.VideoEncoder { return infra.NewFFmpegVideoEncoder(encoderName, logger) },
		AudioEncoder: func() domain.AudioEncoder { return infra.NewFFmpegAudioEncoder(logger) },
	}
	sessions := daemon.NewManager(factory, ring, logger)
	flusher := usecase.NewFlusher(ring, infra.NewFFmpegMuxer(logger), logger)

	listener := hotkey.NewListener(logger)
	if err := listener.Start(); err != nil {
		logger.Warn("hotkey listener unavailable", zap.Error(err))
	}
	defer listener.Close()

	procWatcher := daemon.NewProcWatcher(infra.NewProcessScanner(), cfg.Applications, logger)
	configWatcher := config.NewWatcher(paths.ConfigFile(), logger)

	controller := daemon.NewController(
		cfg,
		tracker,
		ring,
		sessions,
		flusher,
		listener,
		procWatcher,
		procWatcher.Events(),
		configWatcher.Updates(),
		logger,
	)

	// The publisher outlives the controller so its final write reflects the
	// controller's shutdown state.
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		publisher.Run(pubCtx)
	}()

	go func() { _ = procWatcher.Run(ctx) }()
	go func() { _ = configWatcher.Run(ctx) }()

	runErr := controller.Run(ctx)

	stopPublisher()
	<-pubDone

	logger.Info("replayd stopped")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	pid, err := daemon.StartDetached(dataDir)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	fmt.Printf("replayd daemon started (pid %d)\n", pid)
	fmt.Println("Use 'replayd status' to check on it.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}

	fmt.Println("\n=== replayd Status ===")

	data, err := os.ReadFile(paths.StatusFile())
	if err != nil {
		fmt.Println("Status: NOT RUNNING (no status file)")
		fmt.Println("\nRun 'replayd start' to launch the daemon.")
		return nil
	}

	var snap status.Status
	if err := toml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse status file: %w", err)
	}

	fmt.Printf("State: %s\n", strings.ToUpper(string(snap.State)))
	if snap.ActiveApplication != "" {
		fmt.Printf("Recording: %s\n", snap.ActiveApplication)
	}
	if snap.LastClipPath != "" {
		fmt.Printf("Last clip: %s\n", snap.LastClipPath)
		fmt.Printf("Saved at:  %s\n", snap.LastClipTimestamp)
	}
	if snap.Error != "" {
		fmt.Printf("Last error: %s\n", snap.Error)
	}
	fmt.Printf("Daemon version: %s\n", snap.Version)
	fmt.Println("======================")
	return nil
}

func runUnregisterStartup(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	manager := infra.NewStartupManager(logger)
	if !manager.IsRegistered() {
		fmt.Println("No login item is registered.")
		return nil
	}
	if err := manager.Unregister(); err != nil {
		return fmt.Errorf("failed to remove login item: %w", err)
	}
	fmt.Println("Login item removed. The daemon will no longer start at login.")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("replayd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func createLogger(paths infra.Paths) *zap.Logger {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{paths.LogFile()}
	logCfg.ErrorOutputPaths = []string{paths.LogFile()}
	logCfg.EncoderConfig.TimeKey = "time"
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := logCfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
