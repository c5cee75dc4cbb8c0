package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/picturebook/internal/pipeline"
	"github.com/lehigh-university-libraries/picturebook/internal/storage"
)

func TestBuildRequest(t *testing.T) {
	flags := &storyFlags{style: "fable", length: 100, lightweight: true}

	req, err := buildRequest("https://example.com/cat.png", flags)
	if err != nil {
		t.Fatal(err)
	}
	if req.URL != "https://example.com/cat.png" || req.Image != nil {
		t.Errorf("expected URL request, got %+v", req)
	}
	if req.Style != "fable" || req.Length != 100 || !req.Lightweight {
		t.Errorf("flags not carried over: %+v", req)
	}

	path := filepath.Join(t.TempDir(), "cat.jpg")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	req, err = buildRequest(path, flags)
	if err != nil {
		t.Fatal(err)
	}
	if req.URL != "" || string(req.Image) != "data" || req.Filename != "cat.jpg" {
		t.Errorf("expected file request, got %+v", req)
	}

	if _, err := buildRequest(filepath.Join(t.TempDir(), "missing.jpg"), flags); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConsoleCommands(t *testing.T) {
	var out bytes.Buffer
	c := &console{
		app:     &pipeline.App{History: storage.NewMemoryStore(0)},
		out:     &out,
		display: 3,
		flags:   storyFlags{style: "adventure", length: 150},
	}
	cmd := &cobra.Command{}
	cmd.SetContext(t.Context())

	tests := []struct {
		line     string
		keepOn   bool
		contains string
	}{
		{":style sci-fi", true, "Science Fiction"},
		{":length 200", true, "length: 200"},
		{":length 210", true, "steps of 50"},
		{":light on", true, "lightweight: true"},
		{":history", true, "no stories yet"},
		{":bogus", true, "unknown command"},
		{":quit", false, ""},
	}
	for _, tt := range tests {
		out.Reset()
		if got := c.handle(cmd, tt.line); got != tt.keepOn {
			t.Errorf("handle(%q) = %t, want %t", tt.line, got, tt.keepOn)
		}
		if !strings.Contains(out.String(), tt.contains) {
			t.Errorf("handle(%q) output %q does not contain %q", tt.line, out.String(), tt.contains)
		}
	}

	if c.flags.style != "scifi" || c.flags.length != 200 || !c.flags.lightweight {
		t.Errorf("unexpected console state %+v", c.flags)
	}
}
