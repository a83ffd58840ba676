package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/crev/internal/api"
	"github.com/joescharf/crev/internal/daemon"
	"github.com/joescharf/crev/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review HTTP API",
	Long: `Run the HTTP API in the foreground.

Upload endpoints:
  POST /upload/file/    multipart field "file"
  POST /upload/files/   multipart field "files" (repeatable)
  POST /upload/folder/  multipart field "zip_file" (.zip only)

Use 'crev serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show background API server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8000, "port to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "crev-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "crev-serve.log")
}

func serveRun() error {
	logger := newLogger(os.Stderr)

	p, err := newPipeline(logger, 0)
	if err != nil {
		return err
	}

	var st store.Store
	if s, err := getStore(); err != nil {
		logger.Warn("report storage disabled", "error", err)
	} else {
		st = s
	}

	srv := api.NewServer(p, st, api.Options{
		AllowedOrigins: viper.GetStringSlice("server.allowed_origins"),
		MaxUploadBytes: viper.GetInt64("upload.max_upload_mb") << 20,
		Logger:         logger,
	})

	port := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", "http://localhost"+httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if dataStore != nil {
		_ = dataStore.Close()
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	port := viper.GetInt("server.port")
	if dryRun {
		ui.DryRunMsg("Would start %s serve --port %d (log: %s)", exe, port, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	args := []string{"serve", "--port", strconv.Itoa(port)}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.Acquire(child.Process.Pid); err != nil {
		_ = child.Process.Kill()
		return err
	}
	_ = child.Process.Release()

	ui.Success("Server started (PID %d) at http://localhost:%d", child.Process.Pid, port)
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		if pid != 0 {
			_ = pf.Remove()
		}
		return fmt.Errorf("server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (PID %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if !pf.WaitExit(shutdownTimeout) {
		ui.Warning("Server did not exit in %s, killing", shutdownTimeout)
		if err := pf.Signal(sigKILL()); err != nil {
			return fmt.Errorf("kill server: %w", err)
		}
	}
	_ = pf.Release(pid)

	ui.Success("Server stopped (PID %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	switch {
	case running:
		ui.Success("Server running (PID %d) at http://localhost:%d", pid, viper.GetInt("server.port"))
		ui.Info("Logs: %s", serveLogPath())
	case pid != 0:
		ui.Warning("Server not running (stale PID file for %d removed)", pid)
		_ = pf.Remove()
	default:
		ui.Info("Server not running")
	}
	return nil
}
