package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/heimdex/clipdesk/internal/edit"
	"github.com/heimdex/clipdesk/internal/session"
	"github.com/heimdex/clipdesk/internal/store"
)

// Session is the part of the session controller the API drives.
type Session interface {
	Snapshot(ctx context.Context) (session.State, error)
	LoadProjects(ctx context.Context) (session.State, error)
	CreateProject(ctx context.Context, title, description string) (session.State, error)
	SelectProject(ctx context.Context, id string) (session.State, error)
	ClearProject(ctx context.Context) (session.State, error)
	RefreshAssets(ctx context.Context) (session.State, error)
	SelectAsset(ctx context.Context, id string) (session.State, error)
	UpdateParams(ctx context.Context, u edit.Update) (session.State, error)
	ResetParams(ctx context.Context) (session.State, error)
	Upload(ctx context.Context, f session.UploadFile) (session.State, error)
	SubmitRender(ctx context.Context) (session.State, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Session    Session
	Repository store.Repository
	Logger     *slog.Logger
	StartTime  time.Time
	DeviceID   string
	Version    string
	BackendURL string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// uploads stream for as long as they take
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
