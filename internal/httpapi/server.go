// Package httpapi implements the spec §4.6 HTTP surface: one
// http.ServeMux binding every gateway operation to internal/router,
// internal/tools, and their mcp/openapi factories. Routing follows the
// teacher's cmd/nexus/internal/gateway convention of wiring a plain
// http.ServeMux rather than a third-party router — see DESIGN.md.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/gwtypes"
	"github.com/shannon-run/llm-gateway/internal/router"
	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/mcp"
	"github.com/shannon-run/llm-gateway/internal/tools/openapi"
)

// Server wires the router manager and the tool registry/selector into HTTP
// handlers.
type Server struct {
	Router   *router.Manager
	Registry *tools.Registry
	Selector *tools.Selector
	MCP      *mcp.Factory
	OpenAPI  *openapi.Factory
	Logger   *slog.Logger
}

// Mount returns the populated mux (spec §4.6 operation list).
func (s *Server) Mount() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/completions", s.handleCompletions)
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/analyze_task", s.handleAnalyzeTask)
	mux.HandleFunc("/context/compress", s.handleContextCompress)
	mux.HandleFunc("/agent/evaluate", s.handleAgentEvaluate)
	mux.HandleFunc("/providers/models", s.handleProvidersModels)
	mux.HandleFunc("/tools/execute", s.handleToolsExecute)
	mux.HandleFunc("/tools/list", s.handleToolsList)
	mux.HandleFunc("/tools/select", s.handleToolsSelect)
	mux.HandleFunc("/tools/mcp/register", s.handleMCPRegister)
	mux.HandleFunc("/tools/openapi/register", s.handleOpenAPIRegister)
	mux.HandleFunc("/tools/", s.handleToolSchema) // /tools/{name}/schema
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// handleCompletions implements spec §4.5/§4.6's /completions: decode a
// CompletionRequest, run it through the router's provider/failover/cache
// pipeline, and return the normalised CompletionResponse.
func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req gwtypes.CompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	resp, err := s.Router.Complete(r.Context(), &req)
	if err != nil {
		writeError(w, s.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Summary string `json:"summary"`
}

// handleAnalyze implements spec §4.6's /analyze: a small-tier single-turn
// heuristic over arbitrary text, falling back to a naive truncation when
// the small tier is unavailable.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	summary, err := s.Router.CompleteText(r.Context(), "Summarize the following text in two sentences.", req.Text)
	if err != nil {
		summary = heuristicTruncate(req.Text, 240)
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Summary: summary})
}

type analyzeTaskRequest struct {
	Task string `json:"task"`
}

type analyzeTaskResponse struct {
	Complexity string `json:"complexity"`
}

// handleAnalyzeTask implements spec §4.6's /analyze_task: classify a task
// description's complexity, falling back to a length/keyword heuristic.
func (s *Server) handleAnalyzeTask(w http.ResponseWriter, r *http.Request) {
	var req analyzeTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	complexity, err := s.Router.CompleteText(r.Context(),
		"Classify the complexity of the following task as exactly one word: simple, moderate, or complex.", req.Task)
	if err != nil {
		complexity = heuristicComplexity(req.Task)
	}
	writeJSON(w, http.StatusOK, analyzeTaskResponse{Complexity: strings.TrimSpace(strings.ToLower(complexity))})
}

type contextCompressRequest struct {
	Messages []gwtypes.Message `json:"messages"`
}

type contextCompressResponse struct {
	Summary string `json:"summary"`
}

// handleContextCompress implements spec §4.6's /context/compress:
// summarize a message history into a single carry-forward summary.
func (s *Server) handleContextCompress(w http.ResponseWriter, r *http.Request) {
	var req contextCompressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	transcript := flattenMessages(req.Messages)
	summary, err := s.Router.CompleteText(r.Context(),
		"Compress the following conversation into a short summary an agent can use as context.", transcript)
	if err != nil {
		summary = heuristicTruncate(transcript, 500)
	}
	writeJSON(w, http.StatusOK, contextCompressResponse{Summary: summary})
}

type agentEvaluateRequest struct {
	Goal   string `json:"goal"`
	Result string `json:"result"`
}

type agentEvaluateResponse struct {
	Verdict string `json:"verdict"`
}

// handleAgentEvaluate implements spec §4.6's /agent/evaluate: judge
// whether an agent's result satisfies its goal.
func (s *Server) handleAgentEvaluate(w http.ResponseWriter, r *http.Request) {
	var req agentEvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	prompt := "Goal: " + req.Goal + "\n\nResult: " + req.Result
	verdict, err := s.Router.CompleteText(r.Context(),
		"Answer exactly one word: satisfied or unsatisfied.", prompt)
	if err != nil {
		verdict = "unsatisfied"
	}
	writeJSON(w, http.StatusOK, agentEvaluateResponse{Verdict: strings.TrimSpace(strings.ToLower(verdict))})
}

// handleProvidersModels implements spec §4.6's /providers/models: list
// configured models, optionally filtered to one tier via ?tier=.
func (s *Server) handleProvidersModels(w http.ResponseWriter, r *http.Request) {
	tier := gwtypes.ModelTier(r.URL.Query().Get("tier"))
	writeJSON(w, http.StatusOK, s.Router.ListModels(tier))
}

type toolsExecuteRequest struct {
	ToolName  string         `json:"tool_name"`
	SessionID string         `json:"session_id,omitempty"`
	Workspace string         `json:"workspace,omitempty"`
	Params    map[string]any `json:"params"`
}

// handleToolsExecute implements spec §4.7's /tools/execute: run one
// registered tool's five-step pipeline (coerce/validate/rate-limit/
// dispatch/finalize, all inside Registry.Execute) and return its Result.
func (s *Server) handleToolsExecute(w http.ResponseWriter, r *http.Request) {
	var req toolsExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tool_name is required"})
		return
	}
	sess := sessionContextFrom(req.SessionID, req.Workspace)
	sessionKey := req.SessionID
	if sessionKey == "" {
		sessionKey = req.ToolName
	}
	result, err := s.Registry.Execute(r.Context(), req.ToolName, sessionKey, sess, tools.NopObserver{}, req.Params)
	if err != nil {
		writeError(w, s.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleToolsList implements spec §4.7's /tools/list: every registered
// tool's OpenAI-function-style schema.
func (s *Server) handleToolsList(w http.ResponseWriter, r *http.Request) {
	metas := s.Registry.List()
	schemas := make([]tools.FunctionSchema, 0, len(metas))
	for _, meta := range metas {
		tool, ok := s.Registry.Get(meta.Name)
		if !ok {
			continue
		}
		schemas = append(schemas, tools.Schema(tool))
	}
	writeJSON(w, http.StatusOK, schemas)
}

type toolsSelectRequest struct {
	Task             string   `json:"task"`
	Allowed          []string `json:"allowed"`
	ExcludeDangerous bool     `json:"exclude_dangerous"`
	MaxTools         int      `json:"max_tools"`
}

// handleToolsSelect implements spec §4.7's /tools/select.
func (s *Server) handleToolsSelect(w http.ResponseWriter, r *http.Request) {
	var req toolsSelectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sel := s.Selector.Select(r.Context(), s.Router, req.Task, req.Allowed, req.ExcludeDangerous, req.MaxTools)
	writeJSON(w, http.StatusOK, sel)
}

// handleMCPRegister implements spec §4.7's /tools/mcp/register: build one
// MCP-backed tool from an entry and register it.
func (s *Server) handleMCPRegister(w http.ResponseWriter, r *http.Request) {
	var entry mcp.Entry
	if err := decodeJSON(r, &entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tool, err := s.MCP.Build(entry)
	if err != nil {
		writeError(w, s.logger(), err)
		return
	}
	if err := s.Registry.Register(tool, true); err != nil {
		writeError(w, s.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"registered": entry.Name})
}

// handleOpenAPIRegister implements spec §4.7's /tools/openapi/register:
// build one tool per retained operation of an OpenAPI document and
// register each.
func (s *Server) handleOpenAPIRegister(w http.ResponseWriter, r *http.Request) {
	var entry openapi.Entry
	if err := decodeJSON(r, &entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	built, err := s.OpenAPI.Build(entry)
	if err != nil {
		writeError(w, s.logger(), err)
		return
	}
	names := make([]string, 0, len(built))
	for _, t := range built {
		if err := s.Registry.Register(t, true); err != nil {
			writeError(w, s.logger(), err)
			return
		}
		names = append(names, t.Metadata().Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"registered": names})
}

// handleToolSchema implements spec §4.7's /tools/{name}/schema.
func (s *Server) handleToolSchema(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tools/"), "/schema")
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}
	tool, ok := s.Registry.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tool: " + name})
		return
	}
	writeJSON(w, http.StatusOK, tools.Schema(tool))
}

func heuristicTruncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

func heuristicComplexity(task string) string {
	words := len(strings.Fields(task))
	switch {
	case words > 80:
		return "complex"
	case words > 20:
		return "moderate"
	default:
		return "simple"
	}
}

func flattenMessages(messages []gwtypes.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content.AsText())
		b.WriteString("\n")
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	if gwErr, ok := err.(*gwerrors.Error); ok {
		status = gwErr.HTTPStatus()
		msg = gwerrors.Sanitize(gwErr.Error())
	} else {
		msg = gwerrors.Sanitize(msg)
	}
	logger.Error("request failed", "error", msg, "status", status)
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func sessionContextFrom(sessionID, workspace string) *tools.SessionContext {
	if sessionID == "" && workspace == "" {
		return nil
	}
	return &tools.SessionContext{SessionID: sessionID, WorkspaceDir: workspace}
}
