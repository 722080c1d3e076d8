package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/heimdex/clipdesk/internal/backend"
	"github.com/heimdex/clipdesk/internal/config"
	"github.com/heimdex/clipdesk/internal/db"
	"github.com/heimdex/clipdesk/internal/logging"
	"github.com/heimdex/clipdesk/internal/session"
	"github.com/heimdex/clipdesk/internal/store"
)

type commandContext struct {
	envFile *string
	jsonOut *bool

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func newCommandContext(envFile *string, jsonOut *bool) *commandContext {
	return &commandContext{
		envFile: envFile,
		jsonOut: jsonOut,
	}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var files []string
		if c.envFile != nil && strings.TrimSpace(*c.envFile) != "" {
			files = append(files, strings.TrimSpace(*c.envFile))
		}
		c.config, c.configErr = config.New(files...)
	})
	return c.config, c.configErr
}

func (c *commandContext) json() bool {
	return c.jsonOut != nil && *c.jsonOut
}

// cliLogger keeps stdout free for command output.
func (c *commandContext) cliLogger(cmd *cobra.Command) *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logging.Discard()
	}
	return logging.WithComponent(logging.New(cmd.ErrOrStderr(), cfg.LogLevel()), "cli")
}

func (c *commandContext) newBackend(logger *slog.Logger) (*backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return backend.NewClient(cfg.BackendURL(), cfg.BackendToken(), cfg.BackendTimeout(), logger), nil
}

// withSession runs fn against a controller whose loop lives for the
// duration of the call.
func (c *commandContext) withSession(cmd *cobra.Command, opener session.Opener, fn func(context.Context, *session.Controller) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := c.cliLogger(cmd)
	client, err := c.newBackend(logger)
	if err != nil {
		return err
	}

	ctrl := session.NewController(session.Config{
		Backend:        client,
		Opener:         opener,
		Logger:         logger,
		MaxUploadBytes: cfg.UploadMaxBytes(),
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go ctrl.Run(ctx)

	return fn(ctx, ctrl)
}

// withStore opens the local database. It does not take the instance lock, so
// it must not run recovery that belongs to the serving process.
func (c *commandContext) withStore(fn func(*store.SQLiteRepository) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	database, err := db.New(cfg.DBPath(), nil)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	return fn(store.NewRepository(database.Conn()))
}
