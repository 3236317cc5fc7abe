package builtin

import (
	"context"
	"encoding/json"

	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/files"
)

// FilePatchTool wraps the teacher's files.ApplyPatchTool (unified-diff
// application) as a registry-native file_patch built-in, supplementing
// spec §4.7's fixed file set. The diff-parsing logic is complex enough
// that it is reused via files.ApplyPatchTool.Execute rather than
// reimplemented against the new Tool interface.
type FilePatchTool struct {
	delegate *files.ApplyPatchTool
}

func NewFilePatchTool(workspace string) *FilePatchTool {
	return &FilePatchTool{delegate: files.NewApplyPatchTool(files.Config{Workspace: workspace})}
}

func (t *FilePatchTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "file_patch", Description: "Apply a unified diff patch to files in the session workspace.", Category: "builtin", SessionAware: true, Dangerous: true}
}

func (t *FilePatchTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "patch", Type: tools.ParamString, Required: true, Description: "Unified diff patch (---/+++ headers required)"},
	}
}

func (t *FilePatchTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	delegate := t.delegate
	if sess != nil && sess.WorkspaceDir != "" {
		delegate = files.NewApplyPatchTool(files.Config{Workspace: sess.WorkspaceDir})
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return tools.Result{}, err
	}
	result, err := delegate.Execute(ctx, raw)
	if err != nil {
		return tools.Result{}, err
	}
	if result.IsError {
		return tools.Result{Success: false, Error: result.Content}, nil
	}
	var out any
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		return tools.Result{Success: true, Output: result.Content}, nil
	}
	return tools.Result{Success: true, Output: out}, nil
}
