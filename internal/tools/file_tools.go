package tools

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// listedExtensions is the extension allow-list for listFiles.
var listedExtensions = map[string]bool{
	".js":   true,
	".jsx":  true,
	".ts":   true,
	".tsx":  true,
	".html": true,
	".css":  true,
}

// skippedDirs are dependency caches, build output, and VCS metadata that
// listFiles never descends into.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".git":         true,
}

func (r *Registry) handleReadFile(ctx context.Context, ws *Workspace, args map[string]any) map[string]any {
	path := stringArg(args, "file_path")
	if path == "" {
		return errorPayload("File path is required")
	}

	resolved := ws.Resolve(path)

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return errorPayload("File not found: %s", resolved)
		}
		return errorPayload("Failed to read file: %v", err)
	}
	if info.IsDir() {
		return errorPayload("Path is not a file: %s", resolved)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return errorPayload("Failed to read file: %v", err)
	}

	content := string(data)
	r.logger.Debug("read file", "path", resolved, "bytes", len(content))
	return map[string]any{
		"content":  content,
		"fileName": filepath.Base(resolved),
		"filePath": resolved,
		"lines":    countLines(content),
		"bytes":    len(content),
	}
}

func (r *Registry) handleWriteFile(ctx context.Context, ws *Workspace, args map[string]any) map[string]any {
	path := stringArg(args, "file_path")
	if path == "" {
		return errorPayload("File path is required")
	}
	content, ok := args["content"].(string)
	if !ok {
		return errorPayload("Content is required")
	}

	resolved := ws.Resolve(path)

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return errorPayload("Failed to write file: %v", err)
	}

	// Report created vs overwritten so the model can tell the user which.
	action := "created"
	if _, err := os.Stat(resolved); err == nil {
		action = "updated"
	}

	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return errorPayload("Failed to write file: %v", err)
	}

	r.logger.Debug("wrote file", "path", resolved, "action", action, "bytes", len(content))
	return map[string]any{
		"success":  true,
		"fileName": filepath.Base(resolved),
		"path":     resolved,
		"lines":    countLines(content),
		"bytes":    len(content),
		"action":   action,
	}
}

func (r *Registry) handleListFiles(ctx context.Context, ws *Workspace, args map[string]any) map[string]any {
	dir := stringArg(args, "directory")
	if dir == "" {
		dir = "."
	}

	resolved := ws.Resolve(dir)

	if info, err := os.Stat(resolved); err != nil || !info.IsDir() {
		return errorPayload("Directory not found: %s", resolved)
	}

	files := []string{}
	err := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if listedExtensions[filepath.Ext(d.Name())] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return errorPayload("Failed to list files: %v", err)
	}

	r.logger.Debug("listed files", "dir", resolved, "count", len(files))
	return map[string]any{
		"files":     files,
		"count":     len(files),
		"workspace": ws.Root(),
	}
}

func countLines(content string) int {
	return strings.Count(content, "\n") + 1
}
