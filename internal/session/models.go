package session

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/heimdex/clipdesk/internal/ident"
)

const (
	untitledProject  = "Untitled project"
	maxFilenameRunes = 255
)

type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type AssetKind string

const (
	KindVideo AssetKind = "video"
	KindAudio AssetKind = "audio"
	KindImage AssetKind = "image"
)

// TimeBased reports whether assets of this kind carry a duration.
func (k AssetKind) TimeBased() bool {
	return k == KindVideo || k == KindAudio
}

var kindExtensions = map[string]AssetKind{
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
	".webm": KindVideo,
	".avi":  KindVideo,
	".m4v":  KindVideo,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".aac":  KindAudio,
	".m4a":  KindAudio,
	".flac": KindAudio,
	".ogg":  KindAudio,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".gif":  KindImage,
	".webp": KindImage,
}

// CleanFilename reduces an upload name to its base name. Control characters
// are dropped and runes outside a conservative set become '_'. Long names are
// shortened without losing the extension.
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	cleaned := strings.TrimSpace(b.String())

	runes := []rune(cleaned)
	if len(runes) <= maxFilenameRunes {
		return cleaned
	}
	ext := []rune(filepath.Ext(cleaned))
	if len(ext) >= maxFilenameRunes {
		return string(runes[:maxFilenameRunes])
	}
	stem := runes[:len(runes)-len(ext)]
	return strings.TrimSpace(string(stem[:maxFilenameRunes-len(ext)])) + string(ext)
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')', '[', ']', '\'', '&', '+':
		return true
	}
	return false
}

// KindForFilename infers the asset kind from the file extension.
func KindForFilename(filename string) (AssetKind, bool) {
	k, ok := kindExtensions[strings.ToLower(filepath.Ext(filename))]
	return k, ok
}

func parseKind(s string) (AssetKind, bool) {
	switch k := AssetKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindVideo, KindAudio, KindImage:
		return k, true
	}
	return "", false
}

type Asset struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Filename   string    `json:"filename"`
	Kind       AssetKind `json:"kind"`
	Duration   *float64  `json:"duration_seconds,omitempty"`
	PreviewURL string    `json:"preview_url,omitempty"`
}

// DurationLabel formats the duration for list display, e.g. "video • 12.5s".
func (a Asset) DurationLabel() string {
	if a.Duration == nil || *a.Duration == 0 {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s • %ss", a.Kind, strconv.FormatFloat(*a.Duration, 'f', 1, 64))
}

func (a Asset) clone() Asset {
	c := a
	if a.Duration != nil {
		d := *a.Duration
		c.Duration = &d
	}
	return c
}

func projectFromRecord(rec ident.Record) (Project, error) {
	id, err := ident.Resolve(rec, ident.KindProject)
	if err != nil {
		return Project{}, err
	}
	title := rec.String("title")
	if title == "" {
		title = untitledProject
	}
	return Project{ID: id, Title: title, Description: rec.String("description")}, nil
}

// MalformedAssetError is returned for asset records that resolve to an ID but
// cannot be used.
type MalformedAssetError struct {
	AssetID string
	Reason  string
}

func (e *MalformedAssetError) Error() string {
	return fmt.Sprintf("asset %s: %s", e.AssetID, e.Reason)
}

// assetFromRecord builds an Asset fetched or uploaded for projectID.
func assetFromRecord(rec ident.Record, projectID string) (Asset, error) {
	id, err := ident.Resolve(rec, ident.KindAsset)
	if err != nil {
		return Asset{}, err
	}

	owner := rec.String("project_id")
	if owner == "" {
		owner = projectID
	} else if owner != projectID {
		return Asset{}, &MalformedAssetError{AssetID: id, Reason: fmt.Sprintf("belongs to project %s, not %s", owner, projectID)}
	}

	filename := rec.String("filename")
	kind, ok := parseKind(rec.String("kind"))
	if !ok {
		kind, ok = KindForFilename(filename)
	}
	if !ok {
		return Asset{}, &MalformedAssetError{AssetID: id, Reason: fmt.Sprintf("unknown kind %q", rec.String("kind"))}
	}

	a := Asset{
		ID:         id,
		ProjectID:  owner,
		Filename:   filename,
		Kind:       kind,
		PreviewURL: rec.String("url"),
	}
	if a.PreviewURL == "" {
		a.PreviewURL = rec.String("preview_url")
	}
	if kind.TimeBased() {
		if d, ok := rec.Float("duration"); ok && d >= 0 {
			a.Duration = &d
		}
	}
	return a, nil
}
