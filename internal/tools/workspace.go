package tools

import "path/filepath"

// Workspace resolves tool path arguments against a root directory. It is
// constructed per turn and passed through every tool execution, so the
// active root is never shared process state.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at root. An empty root means
// relative paths resolve against the process working directory.
func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

// Root returns the configured root path, or "" when none is set.
func (w *Workspace) Root() string {
	if w == nil {
		return ""
	}
	return w.root
}

// Resolve maps a tool-supplied path to a filesystem path: absolute paths
// are used verbatim; otherwise the path is joined under the root when one
// is configured, and used as-is when not.
func (w *Workspace) Resolve(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if w.Root() != "" {
		return filepath.Join(w.root, path)
	}
	return filepath.Clean(path)
}
