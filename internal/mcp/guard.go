// Package mcp wires memctl into the Model Context Protocol: a fixed
// guard -> session -> rate-limit -> execute -> audit middleware chain in
// front of a small set of tools (spec.md section 4.14).
package mcp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/memctl/memctl/internal/errs"
)

// Guard enforces filesystem and write-size boundaries before any tool
// handler runs.
type Guard struct {
	Root           string // canonical absolute root every db path must stay under
	MaxWriteBytes  int
	MaxImportBatch int
}

// ValidateDBPath rejects ".." path segments before resolving, then
// checks the resolved path stays within Root (spec.md section 4.14's
// path containment rule).
func (g *Guard) ValidateDBPath(path string) (string, error) {
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == ".." {
			return "", fmt.Errorf("path %q contains a %q segment", path, "..")
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		// the directory may not exist yet (first `memctl init`); fall
		// back to the unresolved absolute path for containment checks.
		resolved = filepath.Dir(abs)
	}
	resolved = filepath.Join(resolved, filepath.Base(abs))

	rootAbs, err := filepath.Abs(g.Root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootAbs, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes root %q", path, g.Root)
	}
	return resolved, nil
}

// RelativeDBPath returns path relative to Root, for display in tool
// responses that should never leak absolute filesystem layout.
func (g *Guard) RelativeDBPath(path string) string {
	rootAbs, err := filepath.Abs(g.Root)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(rootAbs, path)
	if err != nil {
		return path
	}
	return rel
}

// CheckWriteSize rejects a single write payload larger than
// MaxWriteBytes.
func (g *Guard) CheckWriteSize(n int) error {
	if g.MaxWriteBytes > 0 && n > g.MaxWriteBytes {
		return errs.Validationf("write of %d bytes exceeds the %d byte cap", n, g.MaxWriteBytes)
	}
	return nil
}

// CheckImportBatch rejects an import batch larger than MaxImportBatch
// items in one call.
func (g *Guard) CheckImportBatch(n int) error {
	if g.MaxImportBatch > 0 && n > g.MaxImportBatch {
		return errs.Validationf("import batch of %d items exceeds the %d item cap", n, g.MaxImportBatch)
	}
	return nil
}
