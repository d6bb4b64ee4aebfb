// Package vol implements the shared-volume contract between the gateway
// and the worker pools. Three roots are mounted identically across every
// process: the uploads root (client inputs), the output root with one
// subdirectory per job kind, and the examples root (static samples).
//
// All client-provided file references are bare filenames, optionally
// with a subdirectory segment. SafeJoin is the single place where they
// are turned into absolute paths.
package vol

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for client-supplied names that escape the
// root or contain control characters.
var ErrUnsafePath = errors.New("unsafe path")

// Roots holds the three shared filesystem roots.
type Roots struct {
	Uploads  string
	Output   string
	Examples string
}

// DefaultRoots returns the conventional container mount points.
func DefaultRoots() Roots {
	return Roots{
		Uploads:  "/uploads",
		Output:   "/output",
		Examples: "/examples",
	}
}

// OutputFor returns the output directory for a job kind subdirectory
// (e.g. "converted", "clash").
func (r Roots) OutputFor(subdir string) string {
	return filepath.Join(r.Output, subdir)
}

// CheckName validates a client-supplied relative file reference.
// Absolute paths, parent traversal, empty names, names resolving to the
// root itself, NUL and other control characters are rejected.
func CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnsafePath)
	}
	if filepath.Clean(name) == "." {
		return fmt.Errorf("%w: name %q resolves to the root", ErrUnsafePath, name)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return fmt.Errorf("%w: absolute path %q", ErrUnsafePath, name)
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("%w: parent traversal in %q", ErrUnsafePath, name)
		}
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character in name", ErrUnsafePath)
		}
	}
	return nil
}

// SafeJoin joins a validated client name onto a root and verifies the
// result cannot escape it.
func SafeJoin(root, name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	path := filepath.Join(root, filepath.Clean(name))
	cleanRoot := filepath.Clean(root)
	if path != cleanRoot && !strings.HasPrefix(path, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes root", ErrUnsafePath, name)
	}
	return path, nil
}

// Within reports whether an absolute path lies under root.
func Within(root, path string) bool {
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(path)
	return cleanPath == cleanRoot || strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator))
}

// AtomicWrite writes r to path via a temporary file in the same
// directory and a rename, so concurrent readers never observe a partial
// file. Parent directories are created as needed.
func AtomicWrite(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to rename into place: %w", err)
	}
	return n, nil
}

// ContentTypeFor derives a download content type from the file
// extension. Unknown extensions fall back to octet-stream.
func ContentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ifc":
		return "application/x-step"
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	case ".bcf", ".bcfzip":
		return "application/octet-stream"
	case ".ids":
		return "application/xml"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
