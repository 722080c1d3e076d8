package session

import (
	"slices"

	"github.com/heimdex/clipdesk/internal/edit"
	"github.com/heimdex/clipdesk/internal/render"
)

// Status line texts.
const (
	StatusUploading     = "Uploading..."
	StatusUploaded      = "Uploaded"
	StatusCreated       = "Project created"
	StatusRendering     = "Rendering... this may take a while"
	StatusRenderDone    = "Render complete"
	StatusNeedProject   = "Create or select a project first"
	StatusNeedAsset     = "Select or upload an asset first"
	StatusLoadingAssets = "Loading assets..."
)

// State is a read-only snapshot of the session. Nothing in it aliases the
// controller's live state.
type State struct {
	Projects      []Project   `json:"projects"`
	ActiveProject *Project    `json:"active_project"`
	Assets        []Asset     `json:"assets"`
	SelectedAsset *Asset      `json:"selected_asset"`
	AssetsLoading bool        `json:"assets_loading"`
	Params        edit.Params `json:"params"`
	Render        render.Job  `json:"render"`
	Status        string      `json:"status"`
}

func (c *Controller) snapshot() State {
	s := State{
		Projects:      slices.Collect(c.catalog.All()),
		Assets:        slices.Collect(c.library.All()),
		AssetsLoading: c.library.Loading(),
		Params:        c.params.Params(),
		Render:        c.renders.Job(),
		Status:        c.status,
	}
	if s.Projects == nil {
		s.Projects = []Project{}
	}
	if s.Assets == nil {
		s.Assets = []Asset{}
	}
	if p, ok := c.catalog.Active(); ok {
		s.ActiveProject = &p
	}
	if a, ok := c.library.Selected(); ok {
		s.SelectedAsset = &a
	}
	return s
}
