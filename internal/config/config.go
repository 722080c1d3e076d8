// Package config provides configuration management for clipdesk.
// Configuration is loaded from environment variables with sensible defaults.
// A .env file in the working directory is read first and never overrides
// variables already set in the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort           = 8797
	DefaultLogLevel       = "info"
	DefaultDataDir        = ".clipdesk"
	DefaultBackendURL     = "http://localhost:8000"
	DefaultBackendTimeout = 600 // seconds; renders are slow
	DefaultUploadMaxBytes = 2 * 1024 * 1024 * 1024

	// Environment variable names
	EnvPort           = "CLIPDESK_PORT"
	EnvLogLevel       = "CLIPDESK_LOG_LEVEL"
	EnvDataDir        = "CLIPDESK_DATA_DIR"
	EnvBackendURL     = "CLIPDESK_BACKEND_URL"
	EnvBackendToken   = "CLIPDESK_BACKEND_TOKEN"
	EnvBackendTimeout = "CLIPDESK_BACKEND_TIMEOUT"
	EnvUploadMaxBytes = "CLIPDESK_UPLOAD_MAX_BYTES"
	EnvHeadless       = "CLIPDESK_HEADLESS"

	DotEnvFile = ".env"
	DBFilename = "clipdesk.db"
	LockFile   = "clipdesk.lock"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	BackendURL() string
	BackendToken() string
	BackendTimeout() time.Duration
	UploadMaxBytes() int64
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port           int
	logLevel       string
	dataDir        string
	backendURL     string
	backendToken   string
	backendTimeout time.Duration
	uploadMaxBytes int64
	headless       bool
}

// New loads envFiles (default: .env) and creates an EnvConfig with defaults
// and environment variable overrides. Missing env files are skipped.
func New(envFiles ...string) (*EnvConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DotEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		backendURL:     DefaultBackendURL,
		backendTimeout: DefaultBackendTimeout * time.Second,
		uploadMaxBytes: DefaultUploadMaxBytes,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if u := strings.TrimSpace(os.Getenv(EnvBackendURL)); u != "" {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return nil, fmt.Errorf("invalid %s: must start with http:// or https://", EnvBackendURL)
		}
		cfg.backendURL = strings.TrimRight(u, "/")
	}

	cfg.backendToken = strings.TrimSpace(os.Getenv(EnvBackendToken))

	if s := os.Getenv(EnvBackendTimeout); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive number of seconds", EnvBackendTimeout)
		}
		cfg.backendTimeout = time.Duration(secs) * time.Second
	}

	if s := os.Getenv(EnvUploadMaxBytes); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative byte count", EnvUploadMaxBytes)
		}
		cfg.uploadMaxBytes = n
	}

	if s := os.Getenv(EnvHeadless); s != "" {
		h, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = h
	}

	return cfg, nil
}

// Port returns the control API port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite settings database
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the path of the single-instance lock file
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFile)
}

func (c *EnvConfig) BackendURL() string {
	return c.backendURL
}

func (c *EnvConfig) BackendToken() string {
	return c.backendToken
}

func (c *EnvConfig) BackendTimeout() time.Duration {
	return c.backendTimeout
}

// UploadMaxBytes is the largest file accepted for upload. Zero disables
// the limit.
func (c *EnvConfig) UploadMaxBytes() int64 {
	return c.uploadMaxBytes
}

// Headless reports whether the tray should be skipped.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
