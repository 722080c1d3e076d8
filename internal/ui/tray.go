package ui

import (
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/heimdex/clipdesk/internal/render"
	"github.com/heimdex/clipdesk/internal/session"
)

type Tray struct {
	logger *slog.Logger

	statusItem  *systray.MenuItem
	projectItem *systray.MenuItem
	assetItem   *systray.MenuItem
	renderItem  *systray.MenuItem
	openItem    *systray.MenuItem

	updates chan session.State

	mu        sync.Mutex
	outputURL string

	onRender func() error
	onReload func() error
	onOpen   func(url string) error
	onQuit   func()
}

type TrayConfig struct {
	Logger   *slog.Logger
	OnRender func() error
	OnReload func() error
	OnOpen   func(url string) error
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		logger:   cfg.Logger,
		updates:  make(chan session.State, 1),
		onRender: cfg.OnRender,
		onReload: cfg.OnReload,
		onOpen:   cfg.OnOpen,
		onQuit:   cfg.OnQuit,
	}
}

// Run blocks running the native tray loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Observe hands the tray the latest session state. It never blocks; only the
// newest pending state is kept. Must be called from a single goroutine.
func (t *Tray) Observe(s session.State) {
	select {
	case t.updates <- s:
		return
	default:
	}
	select {
	case <-t.updates:
	default:
	}
	select {
	case t.updates <- s:
	default:
	}
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Clipdesk")
	systray.SetTooltip("Clipdesk")

	t.statusItem = systray.AddMenuItem("Status: Ready", "Last session event")
	t.statusItem.Disable()

	t.projectItem = systray.AddMenuItem("Project: none", "Active project")
	t.projectItem.Disable()

	t.assetItem = systray.AddMenuItem("Asset: none", "Selected asset")
	t.assetItem.Disable()

	systray.AddSeparator()

	t.renderItem = systray.AddMenuItem("Render", "Render the selected asset")
	t.renderItem.Disable()

	t.openItem = systray.AddMenuItem("Open Last Render", "Open the last finished render")
	t.openItem.Disable()

	reloadItem := systray.AddMenuItem("Reload Projects", "Fetch the project list again")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Clipdesk")

	go t.applyUpdates()

	go func() {
		for {
			select {
			case <-t.renderItem.ClickedCh:
				t.invoke("render", t.onRender)
			case <-t.openItem.ClickedCh:
				t.handleOpen()
			case <-reloadItem.ClickedCh:
				t.invoke("reload projects", t.onReload)
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) applyUpdates() {
	for s := range t.updates {
		m := menuFor(s)

		t.mu.Lock()
		t.outputURL = m.outputURL
		t.mu.Unlock()

		t.statusItem.SetTitle(m.status)
		t.projectItem.SetTitle(m.project)
		t.assetItem.SetTitle(m.asset)
		t.renderItem.SetTitle(m.renderTitle)
		setEnabled(t.renderItem, m.canRender)
		setEnabled(t.openItem, m.outputURL != "")
	}
}

func (t *Tray) invoke(name string, fn func() error) {
	if fn == nil {
		return
	}
	// session calls block on the controller loop
	go func() {
		if err := fn(); err != nil {
			t.logger.Warn("tray action failed", "action", name, "error", err)
		}
	}()
}

func (t *Tray) handleOpen() {
	t.mu.Lock()
	url := t.outputURL
	t.mu.Unlock()

	if url == "" || t.onOpen == nil {
		return
	}
	if err := t.onOpen(url); err != nil {
		t.logger.Error("failed to open render output", "error", err, "output_url", url)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

func setEnabled(item *systray.MenuItem, enabled bool) {
	if enabled {
		item.Enable()
	} else {
		item.Disable()
	}
}

type menu struct {
	status      string
	project     string
	asset       string
	renderTitle string
	canRender   bool
	outputURL   string
}

func menuFor(s session.State) menu {
	m := menu{
		status:      "Status: Ready",
		project:     "Project: none",
		asset:       "Asset: none",
		renderTitle: "Render",
	}
	if s.Status != "" {
		m.status = "Status: " + s.Status
	}
	if s.ActiveProject != nil {
		m.project = "Project: " + s.ActiveProject.Title
	}
	switch {
	case s.SelectedAsset != nil:
		m.asset = "Asset: " + s.SelectedAsset.Filename + " (" + s.SelectedAsset.DurationLabel() + ")"
	case s.AssetsLoading:
		m.asset = "Asset: " + session.StatusLoadingAssets
	}

	if s.Render.Status.Active() {
		m.renderTitle = "Rendering..."
	}
	m.canRender = s.ActiveProject != nil && s.SelectedAsset != nil && !s.Render.Status.Active()
	if s.Render.Status == render.StatusSucceeded {
		m.outputURL = s.Render.OutputURL
	}
	return m
}
