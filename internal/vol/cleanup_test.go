package vol

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestSweepRemovesAgedArtifacts(t *testing.T) {
	roots := Roots{Output: t.TempDir()}
	sweeper := NewSweeper(roots, 7*24*time.Hour, zerolog.Nop())

	old := filepath.Join(roots.OutputFor("clash"), "run1", "old.json")
	fresh := filepath.Join(roots.OutputFor("clash"), "fresh.json")
	oldDiff := filepath.Join(roots.OutputFor("diff"), "old.json")
	untouched := filepath.Join(roots.OutputFor("converted"), "old.glb")

	writeAged(t, old, 8*24*time.Hour)
	writeAged(t, fresh, time.Hour)
	writeAged(t, oldDiff, 30*24*time.Hour)
	writeAged(t, untouched, 30*24*time.Hour)

	removed, err := sweeper.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Sweep() removed %d files, want 2", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("aged clash artifact survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh artifact was removed")
	}
	if _, err := os.Stat(oldDiff); !os.IsNotExist(err) {
		t.Error("aged diff artifact survived the sweep")
	}
	// Only clash and diff are swept; other kinds keep their outputs.
	if _, err := os.Stat(untouched); err != nil {
		t.Error("converted artifact was removed")
	}

	// The run1 subdirectory is empty now and must be pruned.
	if _, err := os.Stat(filepath.Dir(old)); !os.IsNotExist(err) {
		t.Error("empty subdirectory was not pruned")
	}
	// The swept root itself stays.
	if _, err := os.Stat(roots.OutputFor("clash")); err != nil {
		t.Error("clash root was pruned")
	}
}

func TestSweepMissingDirectories(t *testing.T) {
	roots := Roots{Output: filepath.Join(t.TempDir(), "does-not-exist")}
	sweeper := NewSweeper(roots, time.Hour, zerolog.Nop())

	removed, err := sweeper.Sweep()
	if err != nil {
		t.Fatalf("Sweep() on missing dirs error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Sweep() removed %d, want 0", removed)
	}
}

func TestSweeperDefaultMaxAge(t *testing.T) {
	sweeper := NewSweeper(Roots{}, 0, zerolog.Nop())
	if sweeper.MaxAge != 7*24*time.Hour {
		t.Errorf("MaxAge = %v, want 168h", sweeper.MaxAge)
	}
}
