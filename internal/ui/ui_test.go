package ui

import (
	"errors"
	"slices"
	"testing"

	"github.com/heimdex/clipdesk/internal/logging"
	"github.com/heimdex/clipdesk/internal/render"
	"github.com/heimdex/clipdesk/internal/session"
)

func TestMenuForEmptySession(t *testing.T) {
	m := menuFor(session.State{})

	if m.status != "Status: Ready" {
		t.Fatalf("status = %q, want %q", m.status, "Status: Ready")
	}
	if m.project != "Project: none" || m.asset != "Asset: none" {
		t.Fatalf("project/asset = %q/%q", m.project, m.asset)
	}
	if m.canRender {
		t.Fatal("render enabled without a selection")
	}
	if m.outputURL != "" {
		t.Fatalf("outputURL = %q, want empty", m.outputURL)
	}
}

func TestMenuForSelection(t *testing.T) {
	d := 12.5
	s := session.State{
		ActiveProject: &session.Project{ID: "p1", Title: "Trailer"},
		SelectedAsset: &session.Asset{ID: "a1", ProjectID: "p1", Filename: "clip.mp4", Kind: session.KindVideo, Duration: &d},
		Status:        session.StatusUploaded,
	}

	m := menuFor(s)
	if m.project != "Project: Trailer" {
		t.Fatalf("project = %q", m.project)
	}
	if m.asset != "Asset: clip.mp4 (video • 12.5s)" {
		t.Fatalf("asset = %q", m.asset)
	}
	if m.status != "Status: Uploaded" {
		t.Fatalf("status = %q", m.status)
	}
	if !m.canRender {
		t.Fatal("render disabled with a selection")
	}
}

func TestMenuForRenderLifecycle(t *testing.T) {
	base := session.State{
		ActiveProject: &session.Project{ID: "p1", Title: "Trailer"},
		SelectedAsset: &session.Asset{ID: "a1", ProjectID: "p1", Filename: "clip.mp4", Kind: session.KindVideo},
	}

	inFlight := base
	inFlight.Render = render.Job{ID: "j1", Status: render.StatusInProgress}
	m := menuFor(inFlight)
	if m.canRender || m.renderTitle != "Rendering..." {
		t.Fatalf("in flight: canRender=%v title=%q", m.canRender, m.renderTitle)
	}

	done := base
	done.Render = render.Job{ID: "j1", Status: render.StatusSucceeded, OutputURL: "https://cdn.example/out.mp4"}
	m = menuFor(done)
	if !m.canRender || m.outputURL != "https://cdn.example/out.mp4" {
		t.Fatalf("done: canRender=%v outputURL=%q", m.canRender, m.outputURL)
	}

	failed := base
	failed.Render = render.Job{ID: "j1", Status: render.StatusFailed, OutputURL: "https://cdn.example/old.mp4"}
	if m := menuFor(failed); m.outputURL != "" {
		t.Fatalf("failed: outputURL = %q, want empty", m.outputURL)
	}
}

func TestMenuForLoadingAssets(t *testing.T) {
	m := menuFor(session.State{
		ActiveProject: &session.Project{ID: "p1", Title: "Trailer"},
		AssetsLoading: true,
	})
	if m.asset != "Asset: "+session.StatusLoadingAssets {
		t.Fatalf("asset = %q", m.asset)
	}
}

func TestObserveKeepsNewest(t *testing.T) {
	tr := NewTray(TrayConfig{Logger: logging.Discard()})

	tr.Observe(session.State{Status: "first"})
	tr.Observe(session.State{Status: "second"})
	tr.Observe(session.State{Status: "third"})

	got := <-tr.updates
	if got.Status != "third" {
		t.Fatalf("pending status = %q, want %q", got.Status, "third")
	}
	select {
	case s := <-tr.updates:
		t.Fatalf("unexpected extra update %q", s.Status)
	default:
	}
}

func TestBrowserOpener(t *testing.T) {
	var gotName string
	var gotArgs []string
	o := &BrowserOpener{
		Logger: logging.Discard(),
		command: func(name string, args ...string) error {
			gotName, gotArgs = name, args
			return nil
		},
	}

	if err := o.Open("https://cdn.example/out.mp4"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotName == "" || !slices.Contains(gotArgs, "https://cdn.example/out.mp4") {
		t.Fatalf("command = %q %v", gotName, gotArgs)
	}
}

func TestBrowserOpenerRejects(t *testing.T) {
	called := false
	o := &BrowserOpener{command: func(string, ...string) error {
		called = true
		return nil
	}}

	for _, raw := range []string{"file:///etc/passwd", "javascript:alert(1)", "://bad"} {
		if err := o.Open(raw); err == nil {
			t.Fatalf("Open(%q) succeeded, want error", raw)
		}
	}
	if called {
		t.Fatal("command ran for a rejected url")
	}
}

func TestBrowserOpenerCommandError(t *testing.T) {
	o := &BrowserOpener{command: func(string, ...string) error {
		return errors.New("no handler")
	}}
	if err := o.Open("http://localhost:9000/out.mp4"); err == nil {
		t.Fatal("Open succeeded, want error")
	}
}

func TestOpenCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"darwin", "open"},
		{"windows", "rundll32"},
		{"linux", "xdg-open"},
		{"freebsd", "xdg-open"},
	}
	for _, tt := range tests {
		name, args := openCommand(tt.goos, "https://x.test/")
		if name != tt.want {
			t.Errorf("openCommand(%q) = %q, want %q", tt.goos, name, tt.want)
		}
		if args[len(args)-1] != "https://x.test/" {
			t.Errorf("openCommand(%q) target = %q", tt.goos, args[len(args)-1])
		}
	}
}
