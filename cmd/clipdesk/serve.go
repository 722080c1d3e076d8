package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/heimdex/clipdesk/internal/api"
	"github.com/heimdex/clipdesk/internal/backend"
	"github.com/heimdex/clipdesk/internal/config"
	"github.com/heimdex/clipdesk/internal/db"
	"github.com/heimdex/clipdesk/internal/logging"
	"github.com/heimdex/clipdesk/internal/session"
	"github.com/heimdex/clipdesk/internal/store"
	"github.com/heimdex/clipdesk/internal/ui"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session agent with its local API and tray",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, headless || cfg.Headless())
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without the system tray")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, headless bool) error {
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipdesk", "version", config.Version, "data_dir", cfg.DataDir())

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another clipdesk agent is running (lock %s)", cfg.LockPath())
	}
	defer lock.Unlock()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if n, err := database.MarkInterruptedRenders(parent); err != nil {
		logger.Warn("failed to mark interrupted renders", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted renders as failed", "count", n)
	}

	repo := store.NewRepository(database.Conn())

	deviceID, err := store.EnsureDeviceID(parent, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := store.EnsureAuthToken(parent, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	printBanner(os.Stdout, cfg.Port(), authToken, deviceID)

	client := backend.NewClient(cfg.BackendURL(), cfg.BackendToken(), cfg.BackendTimeout(), logging.WithComponent(logger, "backend"))
	client.SetDeviceID(deviceID)
	logger.Info("render backend configured", "base_url", client.BaseURL())

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ctrl := session.NewController(session.Config{
		Backend:        client,
		Opener:         ui.NewBrowserOpener(logger),
		Logger:         logging.WithComponent(logger, "session"),
		MaxUploadBytes: cfg.UploadMaxBytes(),
	})
	go ctrl.Run(ctx)

	recorder := store.NewRecorder(repo, logging.WithComponent(logger, "history"))
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(ctx)
	}()
	ctrl.OnChange(func(s session.State) { recorder.Observe(s.Render) })

	go func() {
		if _, err := ctrl.LoadProjects(ctx); err != nil {
			logger.Warn("initial project load failed", "error", err)
		}
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Session:    ctrl,
		Repository: repo,
		Logger:     logging.WithComponent(logger, "api"),
		StartTime:  startTime,
		DeviceID:   deviceID,
		Version:    config.Version,
		BackendURL: client.BaseURL(),
	})

	quitCh := make(chan struct{})
	var once sync.Once
	quit := func() { once.Do(func() { close(quitCh) }) }

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			quit()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-parent.Done():
			quit()
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Logger: logging.WithComponent(logger, "tray"),
			OnRender: func() error {
				_, err := ctrl.SubmitRender(ctx)
				return err
			},
			OnReload: func() error {
				_, err := ctrl.LoadProjects(ctx)
				return err
			},
			OnOpen: ui.NewBrowserOpener(logger).Open,
			OnQuit: quit,
		})
		ctrl.OnChange(tray.Observe)
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	cancel()
	select {
	case <-recorderDone:
	case <-shutdownCtx.Done():
		logger.Warn("render history did not flush before shutdown")
	}

	if tray != nil {
		tray.Quit()
	}

	logger.Info("shutdown complete")
	return nil
}
