package session

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/heimdex/clipdesk/internal/ident"
)

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clip.mp4", "clip.mp4"},
		{"../../etc/clip.mp4", "clip.mp4"},
		{`C:\Users\me\voice memo.wav`, "voice memo.wav"},
		{"bad\x00name\n.png", "badname.png"},
		{"take*1?.mov", "take_1_.mov"},
		{"  spaced.mp3  ", "spaced.mp3"},
		{"카메라 (1).mp4", "카메라 (1).mp4"},
	}
	for _, tt := range tests {
		if got := CleanFilename(tt.in); got != tt.want {
			t.Errorf("CleanFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanFilenameKeepsExtension(t *testing.T) {
	got := CleanFilename(strings.Repeat("a", 400) + ".webm")

	if n := utf8.RuneCountInString(got); n != maxFilenameRunes {
		t.Fatalf("length = %d, want %d", n, maxFilenameRunes)
	}
	if !strings.HasSuffix(got, ".webm") {
		t.Fatalf("CleanFilename dropped the extension: %q", got[len(got)-10:])
	}
}

func TestAssetFromRecord(t *testing.T) {
	tests := []struct {
		name      string
		rec       ident.Record
		wantKind  AssetKind
		wantLabel string
		wantErr   bool
	}{
		{"explicit kind", ident.Record{"id": "a1", "filename": "x.bin", "kind": "VIDEO", "duration": 3.0}, KindVideo, "video • 3.0s", false},
		{"kind from extension", ident.Record{"asset_id": "a2", "filename": "y.flac"}, KindAudio, "audio", false},
		{"image ignores duration", ident.Record{"id": "a3", "filename": "z.png", "duration": 9.0}, KindImage, "image", false},
		{"unknown kind", ident.Record{"id": "a4", "filename": "notes.txt"}, "", "", true},
		{"other project", ident.Record{"id": "a5", "filename": "c.mp4", "project_id": "p9"}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := assetFromRecord(tt.rec, "p1")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("assetFromRecord = %+v, want error", a)
				}
				return
			}
			if err != nil {
				t.Fatalf("assetFromRecord: %v", err)
			}
			if a.Kind != tt.wantKind || a.DurationLabel() != tt.wantLabel || a.ProjectID != "p1" {
				t.Fatalf("asset = %+v (label %q)", a, a.DurationLabel())
			}
		})
	}
}

func TestAssetFromRecord_NumericProjectIDs(t *testing.T) {
	var recs []ident.Record
	body := `[{"id": 42.0, "title": "Numbers"}, {"id": "a1", "project_id": 42, "filename": "c.mp4"}, {"id": "a2", "project_id": 4.2e1, "filename": "d.mp4"}]`
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&recs); err != nil {
		t.Fatalf("decode: %v", err)
	}

	p, err := projectFromRecord(recs[0])
	if err != nil {
		t.Fatalf("projectFromRecord: %v", err)
	}
	if p.ID != "42" {
		t.Fatalf("project ID = %q, want %q", p.ID, "42")
	}
	for _, rec := range recs[1:] {
		a, err := assetFromRecord(rec, p.ID)
		if err != nil {
			t.Fatalf("assetFromRecord(%v): %v", rec, err)
		}
		if a.ProjectID != "42" {
			t.Fatalf("asset %s ProjectID = %q, want %q", a.ID, a.ProjectID, "42")
		}
	}
}
