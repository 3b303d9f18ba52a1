package training

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScalarWriterSeries(t *testing.T) {
	dir := t.TempDir()
	w, err := NewScalarWriter(dir)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	if err := w.Add("train_loss", 100, 0.5); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := w.Add("train_loss", 200, 0.25); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := w.Add("train_lr_0", 100, 0.00025); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "train_loss.csv"))
	if err != nil {
		t.Fatalf("failed to read series: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(lines))
	}
	if lines[0] != "100 0.5" {
		t.Errorf("unexpected first row %q", lines[0])
	}
	if lines[1] != "200 0.25" {
		t.Errorf("unexpected second row %q", lines[1])
	}

	if _, err := os.Stat(filepath.Join(dir, "train_lr_0.csv")); err != nil {
		t.Errorf("learning rate series missing: %v", err)
	}
}

func TestScalarWriterCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	w, err := NewScalarWriter(dir)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.Add("x", 1, 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
