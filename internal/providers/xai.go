package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// xAILiveSearchCostPer1K is the flat per-1k-token surcharge xAI applies when
// Live Search is engaged, added on top of the model's normal output price
// (spec §4.1 xAI vendor rules). The Responses-API-vs-chat-completions
// precedence question is resolved in DESIGN.md: this adapter always talks
// to the chat completions endpoint, since xAI's Responses API has no
// documented behavioral difference for non-agentic single-turn completions.
const xAILiveSearchCostPer1K = 0.025

// XAIProvider implements Provider for xAI's Grok models. It is grounded on
// the same chat-completions wire format as CompatibleProvider but adds the
// xAI-specific message sanitization and Live Search cost surcharge called
// out in spec §4.1, so it is kept as its own adapter rather than a thin
// CompatibleProvider wrapper.
type XAIProvider struct {
	Base
	client     *openai.Client
	models     []gwtypes.ModelConfig
	liveSearch bool
}

type XAIConfig struct {
	APIKey     string
	BaseURL    string
	LiveSearch bool
	Models     []gwtypes.ModelConfig
}

func NewXAIProvider(cfg XAIConfig) (*XAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("xai: api key is required")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("xai: at least one model must be configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL
	for i := range cfg.Models {
		cfg.Models[i].Provider = "xai"
		if err := cfg.Models[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &XAIProvider{
		Base:       NewBase("xai"),
		client:     openai.NewClientWithConfig(clientCfg),
		models:     cfg.Models,
		liveSearch: cfg.LiveSearch,
	}, nil
}

func (p *XAIProvider) ListModels() []gwtypes.ModelConfig { return p.models }

func (p *XAIProvider) CountTokens(req *gwtypes.CompletionRequest) int {
	return EstimateTokens(req)
}

// EstimateCost adds the Live Search surcharge on top of the default per-1k
// pricing whenever Live Search is engaged for this provider instance.
func (p *XAIProvider) EstimateCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64 {
	cost := DefaultCost(usage, model)
	if p.liveSearch {
		cost += float64(usage.OutputTokens) / 1000 * xAILiveSearchCostPer1K
	}
	return cost
}

// sanitizeMessage strips control characters xAI's endpoint is known to
// reject from otherwise-valid UTF-8 message content (spec §4.1).
func sanitizeXAIMessage(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func (p *XAIProvider) Complete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (*gwtypes.CompletionResponse, error) {
	chatReq, err := p.buildRequest(req, model, false)
	if err != nil {
		return nil, err
	}
	result, err := Retry(ctx, &p.Base, func(attempt int) (openai.ChatCompletionResponse, error) {
		r, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return openai.ChatCompletionResponse{}, gwerrors.New("xai", model.ModelID, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, gwerrors.New("xai", model.ModelID, errors.New("empty choices in completion response")).WithKind(gwerrors.KindParse)
	}
	choice := result.Choices[0]
	resp := &gwtypes.CompletionResponse{
		Model:        model.ModelID,
		Provider:     "xai",
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		RequestID:    result.ID,
	}
	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		resp.FunctionCall = &gwtypes.FunctionCall{Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments)}
	}
	resp.Usage = gwtypes.NewTokenUsage(result.Usage.PromptTokens, result.Usage.CompletionTokens, 0)
	resp.Usage.EstimatedCost = p.EstimateCost(resp.Usage, model)
	return resp, nil
}

func (p *XAIProvider) StreamComplete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (<-chan gwtypes.StreamDelta, error) {
	chatReq, err := p.buildRequest(req, model, true)
	if err != nil {
		return nil, err
	}
	out := make(chan gwtypes.StreamDelta)
	go func() {
		defer close(out)
		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			out <- gwtypes.StreamDelta{Err: gwerrors.New("xai", model.ModelID, err), Done: true}
			return
		}
		defer stream.Close()
		var promptTokens, completionTokens int
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				out <- gwtypes.StreamDelta{Err: gwerrors.New("xai", model.ModelID, err), Done: true}
				return
			}
			if chunk.Usage != nil {
				promptTokens = chunk.Usage.PromptTokens
				completionTokens = chunk.Usage.CompletionTokens
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				out <- gwtypes.StreamDelta{Text: delta}
			}
		}
		usage := gwtypes.NewTokenUsage(promptTokens, completionTokens, 0)
		usage.EstimatedCost = p.EstimateCost(usage, model)
		out <- gwtypes.StreamDelta{Usage: &usage, Done: true}
	}()
	return out, nil
}

func (p *XAIProvider) buildRequest(req *gwtypes.CompletionRequest, model gwtypes.ModelConfig, stream bool) (openai.ChatCompletionRequest, error) {
	promptEstimate := EstimateTokens(req)
	maxTokens, err := ClampMaxTokens(req.MaxTokens, model, promptEstimate)
	if err != nil {
		return openai.ChatCompletionRequest{}, gwerrors.New("xai", model.ModelID, err).WithKind(gwerrors.KindContextOverflow)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		text := sanitizeXAIMessage(m.Content.AsText())
		switch m.Role {
		case gwtypes.RoleSystem:
			// xAI's chat endpoint treats "system" as a second-class role on
			// some Grok models; fold it into a prefixed user turn instead.
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "System: " + text})
		case gwtypes.RoleFunction:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: text})
		case gwtypes.RoleAssistant:
			if text == "" {
				// Empty assistant turns (e.g. a tool-call-only turn with no
				// accompanying text) are rejected by xAI; drop rather than send.
				continue
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text})
		default:
			messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: text})
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model.ModelID,
		Messages:  messages,
		Stream:    stream,
		MaxTokens: maxTokens,
	}
	if stream {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Functions) > 0 {
		tools := make([]openai.Tool, 0, len(req.Functions))
		for _, fn := range req.Functions {
			var params map[string]any
			_ = json.Unmarshal(fn.Parameters, &params)
			tools = append(tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        fn.Name,
					Description: fn.Description,
					Parameters:  params,
				},
			})
		}
		chatReq.Tools = tools
	}
	return chatReq, nil
}
