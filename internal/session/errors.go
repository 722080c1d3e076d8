package session

import (
	"errors"
	"fmt"

	"github.com/heimdex/clipdesk/internal/backend"
)

const (
	genericCreateFailure = "Project creation failed"
	genericUploadFailure = "Upload failed"
	genericRenderFailure = "Render failed"
)

// ErrStopped is returned by operations issued after the controller loop
// has exited.
var ErrStopped = errors.New("session controller stopped")

type NoActiveProjectError struct {
	Op string
}

func (e *NoActiveProjectError) Error() string {
	return fmt.Sprintf("%s: create or select a project first", e.Op)
}

type NoSelectedAssetError struct {
	Op string
}

func (e *NoSelectedAssetError) Error() string {
	return fmt.Sprintf("%s: select or upload an asset first", e.Op)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// CreationError, UploadFailedError and RenderFailedError carry the message
// shown to the user (backend detail when present) and the underlying error.

type CreationError struct {
	Detail string
	Err    error
}

func (e *CreationError) Error() string { return e.Detail }
func (e *CreationError) Unwrap() error { return e.Err }

type UploadFailedError struct {
	Detail string
	Err    error
}

func (e *UploadFailedError) Error() string { return e.Detail }
func (e *UploadFailedError) Unwrap() error { return e.Err }

type RenderFailedError struct {
	Detail string
	Err    error
}

func (e *RenderFailedError) Error() string { return e.Detail }
func (e *RenderFailedError) Unwrap() error { return e.Err }

// detailOr prefers the backend-supplied detail of err.
func detailOr(err error, fallback string) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}
