package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shannon-run/llm-gateway/internal/tools"
)

// maxPythonSessions and pythonSessionTTL mirror spec §4.7 python_executor:
// "max 100 concurrent sessions, 1hr TTL".
const maxPythonSessions = 100
const pythonSessionTTL = time.Hour

// PythonExecutorTool dispatches code to the downstream agent-core sandbox
// (spec §4.7: "downstream agent-core gRPC endpoint, WASI CPython").
//
// The example pack's only gRPC usage (the teacher's internal/edge.Client)
// depends on generated protobuf stubs (pkg/proto/edge) that cannot be
// hand-authored without fabricating generated code, so this talks to
// AGENT_CORE_ADDR over plain HTTP+JSON instead — see DESIGN.md.
type PythonExecutorTool struct {
	addr       string
	httpClient *http.Client

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewPythonExecutorTool(addr string) *PythonExecutorTool {
	return &PythonExecutorTool{
		addr:       addr,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sessions:   make(map[string]time.Time),
	}
}

func (t *PythonExecutorTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "python_executor", Description: "Execute Python code in a sandboxed interpreter session.", Category: "builtin", SessionAware: true, TimeoutSeconds: 60}
}

func (t *PythonExecutorTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "code", Type: tools.ParamString, Required: true, Description: "Python source to execute"},
	}
}

func (t *PythonExecutorTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	code, _ := params["code"].(string)
	sessionKey := "default"
	if sess != nil && sess.SessionID != "" {
		sessionKey = sess.SessionID
	}

	if err := t.trackSession(sessionKey); err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}

	payload, err := json.Marshal(map[string]any{"session_id": sessionKey, "code": code})
	if err != nil {
		return tools.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.addr+"/v1/python/execute", bytes.NewReader(payload))
	if err != nil {
		return tools.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return tools.Result{Success: false, Error: fmt.Sprintf("agent-core request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return tools.Result{}, err
	}
	if resp.StatusCode >= 300 {
		return tools.Result{Success: false, Error: fmt.Sprintf("agent-core returned status %d", resp.StatusCode)}, nil
	}

	var out struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return tools.Result{Success: true, Output: string(data)}, nil
	}
	return tools.Result{Success: true, Output: map[string]any{
		"stdout": out.Stdout,
		"stderr": out.Stderr,
		"result": out.Result,
	}}, nil
}

// trackSession enforces the session cap and TTL-based eviction: a sentinel
// in agent-core keeps interpreter state alive between calls, so this side
// only needs to bound how many such sessions the gateway will address.
func (t *PythonExecutorTool) trackSession(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for k, last := range t.sessions {
		if now.Sub(last) > pythonSessionTTL {
			delete(t.sessions, k)
		}
	}
	if _, exists := t.sessions[key]; !exists && len(t.sessions) >= maxPythonSessions {
		return fmt.Errorf("python executor session limit reached (%d)", maxPythonSessions)
	}
	t.sessions[key] = now
	return nil
}
