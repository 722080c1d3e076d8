package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/heimdex/clipdesk/internal/edit"
	"github.com/heimdex/clipdesk/internal/render"
	"github.com/heimdex/clipdesk/internal/session"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
	Backend  string `json:"backend"`
}

type CreateProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ProjectsResponse struct {
	Projects      []session.Project `json:"projects"`
	ActiveProject *session.Project  `json:"active_project"`
}

type AssetResponse struct {
	session.Asset
	Label string `json:"label"`
}

type AssetsResponse struct {
	Assets        []AssetResponse `json:"assets"`
	SelectedAsset *session.Asset  `json:"selected_asset"`
	Loading       bool            `json:"loading"`
}

type RendersResponse struct {
	Renders []*render.Job `json:"renders"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectsToResponse(s session.State) ProjectsResponse {
	return ProjectsResponse{Projects: s.Projects, ActiveProject: s.ActiveProject}
}

func AssetsToResponse(s session.State) AssetsResponse {
	resp := AssetsResponse{
		Assets:        make([]AssetResponse, len(s.Assets)),
		SelectedAsset: s.SelectedAsset,
		Loading:       s.AssetsLoading,
	}
	for i, a := range s.Assets {
		resp.Assets[i] = AssetResponse{Asset: a, Label: a.DurationLabel()}
	}
	return resp
}

var paramFields = []string{
	edit.FieldTrimStart, edit.FieldTrimEnd, edit.FieldSpeed, edit.FieldVolume,
	edit.FieldRotation, edit.FieldWidth, edit.FieldHeight,
}

// decodeParamsUpdate reads a PATCH /params body. Values may be strings or
// numbers; null clears an optional field. Absent fields are left alone.
func decodeParamsUpdate(body []byte) (edit.Update, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return edit.Update{}, fmt.Errorf("invalid request body: %w", err)
	}

	var u edit.Update
	for field, value := range raw {
		if !slices.Contains(paramFields, field) {
			return edit.Update{}, fmt.Errorf("unknown parameter %q", field)
		}
		s, err := paramInput(value)
		if err != nil {
			return edit.Update{}, fmt.Errorf("parameter %s: %w", field, err)
		}
		switch field {
		case edit.FieldTrimStart:
			u.TrimStart = &s
		case edit.FieldTrimEnd:
			u.TrimEnd = &s
		case edit.FieldSpeed:
			u.Speed = &s
		case edit.FieldVolume:
			u.Volume = &s
		case edit.FieldRotation:
			u.Rotation = &s
		case edit.FieldWidth:
			u.Width = &s
		case edit.FieldHeight:
			u.Height = &s
		}
	}
	return u, nil
}

func paramInput(value json.RawMessage) (string, error) {
	v := bytes.TrimSpace(value)
	switch {
	case bytes.Equal(v, []byte("null")):
		return "", nil
	case len(v) > 0 && v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", fmt.Errorf("must be a string, number or null")
	}
	return n.String(), nil
}
