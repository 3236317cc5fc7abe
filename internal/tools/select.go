package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Completer is the subset of router.Manager's Complete operation the
// selector needs, kept as a local interface so this package does not
// import internal/router (which itself will depend on internal/tools for
// the built-in tool registry wired into completions).
type Completer interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SelectionCall is one tool invocation the model proposed.
type SelectionCall struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// Selection is the /tools/select response shape (spec §4.7).
type Selection struct {
	SelectedTools []string        `json:"selected_tools"`
	Calls         []SelectionCall `json:"calls"`
}

type toolSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

type selectionCacheEntry struct {
	selection Selection
	expiresAt time.Time
}

// selectionCacheTTL matches spec §4.7 "cache results for 5 minutes".
const selectionCacheTTL = 5 * time.Minute

// Selector implements /tools/select: ask a small-tier model which of the
// allowed tools to use for a task, clamp its answer to the allowed list
// and max_tools, and cache by (task, exclude_dangerous, max_tools).
type Selector struct {
	registry *Registry

	mu    sync.Mutex
	cache map[string]selectionCacheEntry
	now   func() time.Time
}

func NewSelector(registry *Registry) *Selector {
	return &Selector{
		registry: registry,
		cache:    make(map[string]selectionCacheEntry),
		now:      time.Now,
	}
}

// Select runs the selection described in spec §4.7. On any failure
// (model call, JSON parse, empty allowed list) it returns an empty
// Selection rather than fabricating calls.
func (s *Selector) Select(ctx context.Context, completer Completer, task string, allowed []string, excludeDangerous bool, maxTools int) Selection {
	if maxTools <= 0 {
		maxTools = len(allowed)
	}
	cacheKey := fmt.Sprintf("%s|%v|%t|%d", task, allowed, excludeDangerous, maxTools)

	if cached, ok := s.lookupCache(cacheKey); ok {
		return cached
	}

	allowedSet := make(map[string]bool, len(allowed))
	summaries := make([]toolSummary, 0, len(allowed))
	for _, name := range allowed {
		tool, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		meta := tool.Metadata()
		if excludeDangerous && meta.Dangerous {
			continue
		}
		allowedSet[name] = true
		params := make([]string, 0, len(tool.Parameters()))
		for _, p := range tool.Parameters() {
			params = append(params, p.Name)
		}
		summaries = append(summaries, toolSummary{Name: name, Description: meta.Description, Parameters: params})
	}

	if completer == nil || len(summaries) == 0 {
		empty := Selection{}
		s.storeCache(cacheKey, empty)
		return empty
	}

	summaryJSON, err := json.Marshal(summaries)
	if err != nil {
		return Selection{}
	}

	systemPrompt := "You select which tools (if any) should be used to accomplish a task. " +
		"Respond with strict JSON only: {\"selected_tools\": [string], \"calls\": [{\"tool_name\": string, \"parameters\": object}]}. " +
		"Only choose from the tools listed. Do not invent tool names or parameters."
	userPrompt := fmt.Sprintf("Task: %s\n\nAvailable tools:\n%s", task, string(summaryJSON))

	raw, err := completer.CompleteText(ctx, systemPrompt, userPrompt)
	if err != nil {
		empty := Selection{}
		s.storeCache(cacheKey, empty)
		return empty
	}

	var selection Selection
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &selection); err != nil {
		empty := Selection{}
		s.storeCache(cacheKey, empty)
		return empty
	}

	selection = clampSelection(selection, allowedSet, maxTools)
	s.storeCache(cacheKey, selection)
	return selection
}

func clampSelection(sel Selection, allowed map[string]bool, maxTools int) Selection {
	out := Selection{}
	for _, name := range sel.SelectedTools {
		if !allowed[name] {
			continue
		}
		if len(out.SelectedTools) >= maxTools {
			break
		}
		out.SelectedTools = append(out.SelectedTools, name)
	}
	selectedSet := make(map[string]bool, len(out.SelectedTools))
	for _, n := range out.SelectedTools {
		selectedSet[n] = true
	}
	for _, call := range sel.Calls {
		if !selectedSet[call.ToolName] {
			continue
		}
		out.Calls = append(out.Calls, call)
	}
	return out
}

// extractJSONObject trims surrounding prose a small model sometimes wraps
// its JSON answer in, returning the first balanced {...} span.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

func (s *Selector) lookupCache(key string) (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || s.now().After(entry.expiresAt) {
		return Selection{}, false
	}
	return entry.selection, true
}

func (s *Selector) storeCache(key string, sel Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = selectionCacheEntry{selection: sel, expiresAt: s.now().Add(selectionCacheTTL)}
}
