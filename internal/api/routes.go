package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/clipdesk/internal/backend"
	"github.com/heimdex/clipdesk/internal/edit"
	"github.com/heimdex/clipdesk/internal/ident"
	"github.com/heimdex/clipdesk/internal/render"
	"github.com/heimdex/clipdesk/internal/session"
)

const maxParamsBody = 64 << 10

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/session", sessionHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Post("/projects/reload", reloadProjectsHandler(cfg))
		r.Post("/projects/{id}/select", selectProjectHandler(cfg))
		r.Delete("/projects/active", clearProjectHandler(cfg))

		r.Get("/assets", listAssetsHandler(cfg))
		r.Post("/assets/refresh", refreshAssetsHandler(cfg))
		r.Post("/assets/upload", uploadAssetHandler(cfg))
		r.Post("/assets/{id}/select", selectAssetHandler(cfg))

		r.Patch("/params", updateParamsHandler(cfg))
		r.Delete("/params", resetParamsHandler(cfg))

		r.Post("/render", submitRenderHandler(cfg))
		r.Get("/renders", listRendersHandler(cfg))
		r.Get("/renders/{id}", getRenderHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
			Backend:  cfg.BackendURL,
		})
	}
}

func sessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := cfg.Session.Snapshot(r.Context())
		if err != nil {
			writeSessionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := cfg.Session.Snapshot(r.Context())
		if err != nil {
			writeSessionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, ProjectsToResponse(s))
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(io.LimitReader(r.Body, maxParamsBody)).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}

		s, err := cfg.Session.CreateProject(r.Context(), req.Title, req.Description)
		if err != nil {
			writeSessionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, s)
	}
}

func reloadProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return stateHandler(cfg, http.StatusOK, func(ctx context.Context, _ *http.Request) (session.State, error) {
		return cfg.Session.LoadProjects(ctx)
	})
}

func selectProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return stateHandler(cfg, http.StatusOK, func(ctx context.Context, r *http.Request) (session.State, error) {
		return cfg.Session.SelectProject(ctx, chi.URLParam(r, "id"))
	})
}

func clearProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return stateHandler(cfg, http.StatusOK, func(ctx context.Context, _ *http.Request) (session.State, error) {
		return cfg.Session.ClearProject(ctx)
	})
}

func listAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := cfg.Session.Snapshot(r.Context())
		if err != nil {
			writeSessionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, AssetsToResponse(s))
	}
}

func refreshAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return stateHandler(cfg, http.StatusAccepted, func(ctx context.Context, _ *http.Request) (session.State, error) {
		return cfg.Session.RefreshAssets(ctx)
	})
}

// uploadAssetHandler streams the "file" part of a multipart body to the
// backend without buffering it.
func uploadAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "multipart body required", "VALIDATION_ERROR")
			return
		}

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				WriteError(w, http.StatusBadRequest, "file field is required", "VALIDATION_ERROR")
				return
			}
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid multipart body", "VALIDATION_ERROR")
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}

			size := int64(-1)
			if v := r.Header.Get("X-Clipdesk-File-Size"); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
					size = n
				}
			}

			s, err := cfg.Session.Upload(r.Context(), session.UploadFile{
				Filename: part.FileName(),
				Size:     size,
				Content:  part,
			})
			part.Close()
			if err != nil {
				writeSessionError(w, cfg, err)
				return
			}
			WriteJSON(w, http.StatusCreated, s)
			return
		}
	}
}

func selectAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return stateHandler(cfg, http.StatusOK, func(ctx context.Context, r *http.Request) (session.State, error) {
		return cfg.Session.SelectAsset(ctx, chi.URLParam(r, "id"))
	})
}

func updateParamsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxParamsBody))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		u, err := decodeParamsUpdate(body)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		s, err := cfg.Session.UpdateParams(r.Context(), u)
		if err != nil {
			writeSessionError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, s)
	}
}

func resetParamsHandler(cfg ServerConfig) http.HandlerFunc {
	return stateHandler(cfg, http.StatusOK, func(ctx context.Context, _ *http.Request) (session.State, error) {
		return cfg.Session.ResetParams(ctx)
	})
}

func submitRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return stateHandler(cfg, http.StatusAccepted, func(ctx context.Context, _ *http.Request) (session.State, error) {
		return cfg.Session.SubmitRender(ctx)
	})
}

func listRendersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", "BAD_REQUEST")
				return
			}
			limit = n
		}

		jobs, err := cfg.Repository.ListRenders(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error("failed to list renders", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list renders", "INTERNAL_ERROR")
			return
		}
		if jobs == nil {
			jobs = []*render.Job{}
		}
		WriteJSON(w, http.StatusOK, RendersResponse{Renders: jobs})
	}
}

func getRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := cfg.Repository.GetRender(r.Context(), id)
		if err != nil {
			cfg.Logger.Error("failed to get render", "error", err, "job_id", id)
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

// stateHandler adapts a session operation that returns the new state.
func stateHandler(cfg ServerConfig, status int, op func(context.Context, *http.Request) (session.State, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := op(r.Context(), r)
		if err != nil {
			writeSessionError(w, cfg, err)
			return
		}
		WriteJSON(w, status, s)
	}
}

// writeSessionError maps session errors onto HTTP statuses and codes.
func writeSessionError(w http.ResponseWriter, cfg ServerConfig, err error) {
	var (
		validation  *edit.ValidationError
		notFound    *session.NotFoundError
		noProject   *session.NoActiveProjectError
		noAsset     *session.NoSelectedAssetError
		missingID   *ident.MissingIdentifierError
		malformed   *session.MalformedAssetError
		creation    *session.CreationError
		uploadFail  *session.UploadFailedError
		renderFail  *session.RenderFailedError
		backendFail *backend.APIError
	)

	switch {
	case errors.As(err, &validation):
		WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.As(err, &notFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.As(err, &noProject), errors.As(err, &noAsset):
		WriteError(w, http.StatusConflict, err.Error(), "PRECONDITION_FAILED")
	case errors.Is(err, render.ErrInFlight):
		WriteError(w, http.StatusConflict, err.Error(), "RENDER_IN_FLIGHT")
	case errors.As(err, &missingID), errors.As(err, &malformed):
		WriteError(w, http.StatusBadGateway, err.Error(), "MALFORMED_RECORD")
	case errors.As(err, &creation), errors.As(err, &uploadFail), errors.As(err, &renderFail), errors.As(err, &backendFail):
		WriteError(w, http.StatusBadGateway, err.Error(), "BACKEND_ERROR")
	case errors.Is(err, session.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusServiceUnavailable, "session unavailable", "UNAVAILABLE")
	default:
		cfg.Logger.Error("unhandled session error", "error", err)
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
