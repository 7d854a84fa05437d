package manifestingester

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gradeworks/scanreview/batch"
	"github.com/gradeworks/scanreview/pipeline"
	"github.com/gradeworks/scanreview/review"
)

func setupTestComponent(t *testing.T) (*Component, *pipeline.Core) {
	t.Helper()
	core := pipeline.New(nil)
	c := &Component{
		name:   "manifest-ingester",
		config: DefaultConfig(),
		core:   core,
		logger: slog.Default(),
	}
	return c, core
}

func writeManifest(t *testing.T, dir, name string, m batch.Manifest) string {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestIngestManifest(t *testing.T) {
	c, core := setupTestComponent(t)

	path := writeManifest(t, t.TempDir(), "batch-1.manifest.json", batch.Manifest{
		Files: []batch.FileEntry{
			{FileID: "REG-001_p1.png", Size: 100},
			{FileID: "REG-001_p2.png", Size: 100},
			{FileID: "REG-002_p1.png", Size: 100},
		},
	})

	if err := c.ingestManifest(context.Background(), path); err != nil {
		t.Fatalf("ingestManifest: %v", err)
	}

	subs := core.Registry.List()
	if len(subs) != 2 {
		t.Fatalf("registry has %d submissions, want 2", len(subs))
	}
	if subs[0].RegistrationID != "REG-001" || subs[1].RegistrationID != "REG-002" {
		t.Errorf("grouping keys = %q, %q", subs[0].RegistrationID, subs[1].RegistrationID)
	}
	if len(subs[0].Pages) != 2 || subs[0].Pages[0].ImageRef != "REG-001_p1.png" {
		t.Errorf("pages not grouped in order: %+v", subs[0].Pages)
	}
	for _, p := range review.Phases {
		if subs[0].StatusOf(p) != review.StatusYetToStart {
			t.Errorf("phase %s = %q, want yet_to_start", p, subs[0].StatusOf(p))
		}
	}
}

func TestIngestManifest_CapTruncates(t *testing.T) {
	c, core := setupTestComponent(t)

	var m batch.Manifest
	for i := 0; i < 130; i++ {
		key := fmt.Sprintf("REG-%03d", i)
		m.Files = append(m.Files, batch.FileEntry{
			FileID:   key + "_p1.png",
			GroupKey: key,
		})
	}

	path := writeManifest(t, t.TempDir(), "big.manifest.json", m)
	if err := c.ingestManifest(context.Background(), path); err != nil {
		t.Fatalf("truncated ingest should not fail the manifest: %v", err)
	}

	if got := core.Registry.Count(); got != batch.DefaultMaxCandidates {
		t.Errorf("registry has %d submissions, want %d", got, batch.DefaultMaxCandidates)
	}
	if c.candidatesExcluded.Load() != 5 {
		t.Errorf("excluded counter = %d, want 5", c.candidatesExcluded.Load())
	}
}

func TestIngestManifest_BadJSON(t *testing.T) {
	c, core := setupTestComponent(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.manifest.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := c.ingestManifest(context.Background(), path); err == nil {
		t.Fatal("expected parse error")
	}
	if core.Registry.Count() != 0 {
		t.Error("submissions registered from unparseable manifest")
	}
}

func TestGroupKeyFromFileID(t *testing.T) {
	tests := []struct {
		fileID string
		want   string
	}{
		{"REG-001_p1.png", "REG-001"},
		{"REG-001_page_03.png", "REG-001_page"},
		{"scans/batch7/REG-002_p2.tiff", "REG-002"},
		{"single.png", "single"},
		{"noext", "noext"},
	}

	for _, tt := range tests {
		t.Run(tt.fileID, func(t *testing.T) {
			if got := groupKeyFromFileID(tt.fileID); got != tt.want {
				t.Errorf("groupKeyFromFileID(%q) = %q, want %q", tt.fileID, got, tt.want)
			}
		})
	}
}

func TestManifestWatcher_Accepts(t *testing.T) {
	w := &ManifestWatcher{pattern: "**/*.manifest.json"}

	tests := []struct {
		path string
		want bool
	}{
		{"batch-1.manifest.json", true},
		{"2026/aug/batch-2.manifest.json", true},
		{"batch-1.json", false},
		{"notes.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := w.accepts(tt.path); got != tt.want {
				t.Errorf("accepts(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
