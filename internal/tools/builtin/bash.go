package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	execsafety "github.com/shannon-run/llm-gateway/internal/exec"
	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/files"
)

// BashTool implements the spec §4.7 bash built-in: argv allowlist, no
// shell interpreter, session-scoped workspace, hard 30s cap. Unlike the
// teacher's shell=true exec.ExecTool (dropped — see DESIGN.md), this
// built-in execs argv[0] directly via exec.CommandContext, matching the
// no-shell-injection contract the spec requires for tool-registry dispatch.
type BashTool struct {
	allowedCommands map[string]bool
	workspace       string
	maxDuration     time.Duration
}

// BashOptions configures the bash built-in.
type BashOptions struct {
	AllowedCommands []string
	Workspace       string
	MaxDuration     time.Duration
}

// NewBashTool constructs the bash built-in. An empty AllowedCommands list
// allows nothing — the allowlist must be configured explicitly.
func NewBashTool(opts BashOptions) *BashTool {
	allowed := make(map[string]bool, len(opts.AllowedCommands))
	for _, c := range opts.AllowedCommands {
		allowed[c] = true
	}
	maxDuration := opts.MaxDuration
	if maxDuration <= 0 || maxDuration > 30*time.Second {
		maxDuration = 30 * time.Second
	}
	return &BashTool{allowedCommands: allowed, workspace: opts.Workspace, maxDuration: maxDuration}
}

func (b *BashTool) Metadata() tools.Metadata {
	return tools.Metadata{
		Name:           "bash",
		Description:    "Run an allowlisted command (no shell) in the session workspace with a 30s cap.",
		Category:       "builtin",
		Dangerous:      true,
		TimeoutSeconds: 30,
		SessionAware:   true,
	}
}

func (b *BashTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "command", Type: tools.ParamArray, ItemsType: tools.ParamString, Required: true, Description: "argv: command followed by its arguments, no shell interpretation"},
	}
}

func (b *BashTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	raw, _ := params["command"].([]any)
	if len(raw) == 0 {
		return tools.Result{Success: false, Error: "command must be a non-empty argv array"}, nil
	}
	argv := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return tools.Result{Success: false, Error: "command entries must be strings"}, nil
		}
		if i == 0 {
			if _, err := execsafety.SanitizeExecutableValue(s); err != nil {
				return tools.Result{Success: false, Error: fmt.Sprintf("command %q is unsafe: %v", s, err)}, nil
			}
		} else if _, err := execsafety.SanitizeArgument(s); err != nil {
			return tools.Result{Success: false, Error: fmt.Sprintf("argument %q is unsafe: %v", s, err)}, nil
		}
		argv = append(argv, s)
	}
	if !b.allowedCommands[argv[0]] {
		return tools.Result{Success: false, Error: fmt.Sprintf("command %q is not allowlisted", argv[0])}, nil
	}

	workspace := b.workspace
	if sess != nil && sess.WorkspaceDir != "" {
		workspace = sess.WorkspaceDir
	}
	if workspace == "" {
		return tools.Result{Success: false, Error: "bash requires a session workspace"}, nil
	}
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	if absWorkspace == filepath.Clean("/tmp") {
		return tools.Result{Success: false, Error: "/tmp is blocked by default"}, nil
	}
	resolver := files.Resolver{Root: absWorkspace}
	for _, arg := range argv[1:] {
		if execsafety.IsLikelyPath(arg) {
			if _, err := resolver.Resolve(arg); err != nil {
				return tools.Result{Success: false, Error: fmt.Sprintf("argument %q escapes the session workspace: %v", arg, err)}, nil
			}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, b.maxDuration)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = absWorkspace
	cmd.Env = allowlistedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return tools.Result{Success: false, Error: runErr.Error()}, nil
		}
	}

	return tools.Result{
		Success: exitCode == 0,
		Output: map[string]any{
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": exitCode,
		},
	}, nil
}

// allowlistedEnv restricts the child process to a minimal, predictable
// environment instead of inheriting the gateway process's full env.
func allowlistedEnv() []string {
	return []string{"PATH=/usr/bin:/bin", "LANG=C.UTF-8"}
}
