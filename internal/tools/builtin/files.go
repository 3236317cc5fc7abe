package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/files"
)

const defaultMaxReadBytes = 200_000

// FileReadTool implements the spec §4.7 file_read built-in: session-scoped
// workspace, path canonicalization via files.Resolver, deny symlink escape.
type FileReadTool struct {
	resolver files.Resolver
}

func NewFileReadTool(workspace string) *FileReadTool {
	return &FileReadTool{resolver: files.Resolver{Root: workspace}}
}

func (t *FileReadTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "file_read", Description: "Read a file from the session workspace.", Category: "builtin", SessionAware: true}
}

func (t *FileReadTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "path", Type: tools.ParamString, Required: true, Description: "Path relative to the session workspace"},
		{Name: "max_bytes", Type: tools.ParamInteger, Required: false, Description: "Maximum bytes to read", Min: floatPtr(0)},
	}
}

func (t *FileReadTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	resolver := t.resolver
	if sess != nil && sess.WorkspaceDir != "" {
		resolver = files.Resolver{Root: sess.WorkspaceDir}
	}
	path, _ := params["path"].(string)
	resolved, err := resolveNoSymlinkEscape(resolver, path)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}

	limit := defaultMaxReadBytes
	if mb, ok := params["max_bytes"].(int); ok && mb > 0 && mb < limit {
		limit = mb
	}

	f, err := os.Open(resolved)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	truncated := len(data) > limit
	if truncated {
		data = data[:limit]
	}
	return tools.Result{Success: true, Output: map[string]any{
		"path":      path,
		"content":   string(data),
		"bytes":     len(data),
		"truncated": truncated,
	}}, nil
}

// FileWriteTool implements the spec §4.7 file_write built-in.
type FileWriteTool struct {
	resolver files.Resolver
}

func NewFileWriteTool(workspace string) *FileWriteTool {
	return &FileWriteTool{resolver: files.Resolver{Root: workspace}}
}

func (t *FileWriteTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "file_write", Description: "Write a file in the session workspace.", Category: "builtin", SessionAware: true, Dangerous: true}
}

func (t *FileWriteTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "path", Type: tools.ParamString, Required: true, Description: "Path relative to the session workspace"},
		{Name: "content", Type: tools.ParamString, Required: true, Description: "Content to write"},
		{Name: "append", Type: tools.ParamBoolean, Required: false, Description: "Append instead of overwrite"},
	}
}

func (t *FileWriteTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	resolver := t.resolver
	if sess != nil && sess.WorkspaceDir != "" {
		resolver = files.Resolver{Root: sess.WorkspaceDir}
	}
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)
	appendMode, _ := params["append"].(bool)

	resolved, err := resolveNoSymlinkEscape(resolver, path)
	if err != nil {
		// resolveNoSymlinkEscape requires the file to already exist; for a
		// fresh write, fall back to the plain (non-symlink-aware) resolve.
		resolved, err = resolver.Resolve(path)
		if err != nil {
			return tools.Result{Success: false, Error: err.Error()}, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	defer f.Close()
	n, err := f.WriteString(content)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	return tools.Result{Success: true, Output: map[string]any{"path": path, "bytes_written": n, "append": appendMode}}, nil
}

// FileListTool implements the spec §4.7 file_list built-in (not present in
// the teacher's internal/tools/files package, which only had read/write/
// edit/patch — added here following the same Resolver-based confinement).
type FileListTool struct {
	resolver files.Resolver
}

func NewFileListTool(workspace string) *FileListTool {
	return &FileListTool{resolver: files.Resolver{Root: workspace}}
}

func (t *FileListTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "file_list", Description: "List files in a directory of the session workspace.", Category: "builtin", SessionAware: true}
}

func (t *FileListTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "path", Type: tools.ParamString, Required: false, Default: ".", Description: "Directory relative to the session workspace"},
	}
}

func (t *FileListTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	resolver := t.resolver
	if sess != nil && sess.WorkspaceDir != "" {
		resolver = files.Resolver{Root: sess.WorkspaceDir}
	}
	path, _ := params["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolver.Resolve(path)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return tools.Result{Success: true, Output: map[string]any{"path": path, "entries": names}}, nil
}

// FileEditTool implements a find/replace file_edit built-in, supplementing
// spec §4.7's fixed file_read/file_write/file_list set with the workspace
// editing operation the teacher's files package already had.
type FileEditTool struct {
	resolver files.Resolver
}

func NewFileEditTool(workspace string) *FileEditTool {
	return &FileEditTool{resolver: files.Resolver{Root: workspace}}
}

func (t *FileEditTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "file_edit", Description: "Apply find/replace edits to a file in the session workspace.", Category: "builtin", SessionAware: true, Dangerous: true}
}

func (t *FileEditTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "path", Type: tools.ParamString, Required: true, Description: "Path relative to the session workspace"},
		{Name: "old_text", Type: tools.ParamString, Required: true, Description: "Text to replace"},
		{Name: "new_text", Type: tools.ParamString, Required: true, Description: "Replacement text"},
		{Name: "replace_all", Type: tools.ParamBoolean, Required: false, Description: "Replace every occurrence (default: first only)"},
	}
}

func (t *FileEditTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	resolver := t.resolver
	if sess != nil && sess.WorkspaceDir != "" {
		resolver = files.Resolver{Root: sess.WorkspaceDir}
	}
	path, _ := params["path"].(string)
	oldText, _ := params["old_text"].(string)
	newText, _ := params["new_text"].(string)
	replaceAll, _ := params["replace_all"].(bool)

	resolved, err := resolveNoSymlinkEscape(resolver, path)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return tools.Result{Success: false, Error: "old_text not found"}, nil
	}
	replacements := 1
	if replaceAll {
		replacements = strings.Count(content, oldText)
		content = strings.ReplaceAll(content, oldText, newText)
	} else {
		content = strings.Replace(content, oldText, newText, 1)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	return tools.Result{Success: true, Output: map[string]any{"path": path, "replacements": replacements}}, nil
}

// resolveNoSymlinkEscape resolves path within the workspace and rejects it
// if any symlink component leads outside the workspace root.
func resolveNoSymlinkEscape(resolver files.Resolver, path string) (string, error) {
	resolved, err := resolver.Resolve(path)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve symlinks: %w", err)
	}
	rootAbs, err := filepath.Abs(resolver.Root)
	if err != nil {
		return "", err
	}
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		rootReal = rootAbs
	}
	rel, err := filepath.Rel(rootReal, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace via symlink")
	}
	return real, nil
}
