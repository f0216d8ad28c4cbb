package chart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/insightlab/analyst/models"
)

func TestRender_WritesPNG(t *testing.T) {
	dir := t.TempDir()
	r := Renderer{OutputDir: dir}

	series := models.Series{
		"Q1 2024": {"Revenue": 10.5, "Profit": 2.1},
		"Q2 2024": {"Revenue": 12.0, "Profit": 2.4},
	}
	name, err := r.Render("Acme", series)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(name, "chart-") || !strings.HasSuffix(name, ".png") {
		t.Fatalf("unexpected file name: %q", name)
	}
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("chart file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("chart file is empty")
	}
}

func TestRender_EmptySeries(t *testing.T) {
	r := Renderer{OutputDir: t.TempDir()}
	if _, err := r.Render("Acme", models.Series{}); err == nil {
		t.Fatal("expected error for empty series")
	}
}
