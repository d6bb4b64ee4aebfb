package vol

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes aged artifacts from the heavyweight output
// directories and prunes subdirectories left empty. Clash and diff
// results are the largest artifacts the pipeline produces, and clients
// are expected to have downloaded them well within the retention
// window.
type Sweeper struct {
	Roots  Roots
	MaxAge time.Duration
	Log    zerolog.Logger

	// Subdirs are the output subdirectories to sweep.
	Subdirs []string
}

// NewSweeper creates a sweeper over the default clash and diff outputs.
func NewSweeper(roots Roots, maxAge time.Duration, log zerolog.Logger) *Sweeper {
	if maxAge == 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return &Sweeper{
		Roots:   roots,
		MaxAge:  maxAge,
		Log:     log,
		Subdirs: []string{"clash", "diff"},
	}
}

// Sweep removes entries older than MaxAge and returns how many files
// were deleted. A missing output subdirectory is not an error.
func (s *Sweeper) Sweep() (int, error) {
	cutoff := time.Now().Add(-s.MaxAge)
	removed := 0

	for _, sub := range s.Subdirs {
		dir := s.Roots.OutputFor(sub)
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err != nil {
					s.Log.Warn().Err(err).Str("path", path).Msg("failed to remove aged artifact")
					return nil
				}
				removed++
				s.Log.Info().Str("path", path).Msg("removed aged artifact")
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		s.pruneEmptyDirs(dir)
	}
	return removed, nil
}

// pruneEmptyDirs removes empty subdirectories below dir, leaving dir
// itself in place.
func (s *Sweeper) pruneEmptyDirs(dir string) {
	var dirs []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() && path != dir {
			dirs = append(dirs, path)
		}
		return nil
	})
	// Deepest first so nested empties collapse in one pass.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			os.Remove(dirs[i])
		}
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.Sweep(); err != nil {
			s.Log.Error().Err(err).Msg("cleanup sweep failed")
		} else if n > 0 {
			s.Log.Info().Int("removed", n).Msg("cleanup sweep complete")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
