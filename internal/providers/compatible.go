package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// CompatibleProvider implements Provider for any vendor that speaks the
// OpenAI chat-completions wire format against a custom base URL -- Groq,
// DeepSeek, Qwen, local Ollama instances, OpenRouter, and similar (spec
// §4.1 "openai_compatible"). It is grounded on the teacher's ollama.go/
// openrouter.go adapters, generalised to take the base URL from config
// instead of hardcoding it.
type CompatibleProvider struct {
	Base
	vendor string
	client *openai.Client
	models []gwtypes.ModelConfig
}

type CompatibleConfig struct {
	Vendor  string // e.g. "groq", "deepseek", "qwen", "ollama"
	APIKey  string // some local deployments (ollama) accept an empty key
	BaseURL string
	Models  []gwtypes.ModelConfig
}

func NewCompatibleProvider(cfg CompatibleConfig) (*CompatibleProvider, error) {
	if strings.TrimSpace(cfg.Vendor) == "" {
		return nil, fmt.Errorf("openai_compatible: vendor name is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("openai_compatible: base_url is required for vendor %q", cfg.Vendor)
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("openai_compatible: at least one model must be configured for vendor %q", cfg.Vendor)
	}
	key := cfg.APIKey
	if key == "" {
		key = "unused" // go-openai requires a non-empty key even against keyless local servers
	}
	clientCfg := openai.DefaultConfig(key)
	clientCfg.BaseURL = cfg.BaseURL
	for i := range cfg.Models {
		cfg.Models[i].Provider = cfg.Vendor
		if err := cfg.Models[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &CompatibleProvider{
		Base:   NewBase(cfg.Vendor),
		vendor: cfg.Vendor,
		client: openai.NewClientWithConfig(clientCfg),
		models: cfg.Models,
	}, nil
}

func (p *CompatibleProvider) ListModels() []gwtypes.ModelConfig { return p.models }

func (p *CompatibleProvider) CountTokens(req *gwtypes.CompletionRequest) int {
	return EstimateTokens(req)
}

func (p *CompatibleProvider) EstimateCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64 {
	return DefaultCost(usage, model)
}

func (p *CompatibleProvider) Complete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (*gwtypes.CompletionResponse, error) {
	chatReq, err := p.buildRequest(req, model, false)
	if err != nil {
		return nil, err
	}
	result, err := Retry(ctx, &p.Base, func(attempt int) (openai.ChatCompletionResponse, error) {
		r, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return openai.ChatCompletionResponse{}, gwerrors.New(p.vendor, model.ModelID, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, gwerrors.New(p.vendor, model.ModelID, errors.New("empty choices in completion response")).WithKind(gwerrors.KindParse)
	}
	choice := result.Choices[0]
	resp := &gwtypes.CompletionResponse{
		Model:        model.ModelID,
		Provider:     p.vendor,
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

func (p *CompatibleProvider) StreamComplete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (<-chan gwtypes.StreamDelta, error) {
	chatReq, err := p.buildRequest(req, model, true)
	if err != nil {
		return nil, err
	}
	out := make(chan gwtypes.StreamDelta)
	go func() {
		defer close(out)
		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			out <- gwtypes.StreamDelta{Err: gwerrors.New(p.vendor, model.ModelID, err), Done: true}
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
				out <- gwtypes.StreamDelta{Err: gwerrors.New(p.vendor, model.ModelID, err), Done: true}
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

func (p *CompatibleProvider) buildRequest(req *gwtypes.CompletionRequest, model gwtypes.ModelConfig, stream bool) (openai.ChatCompletionRequest, error) {
	promptEstimate := EstimateTokens(req)
	maxTokens, err := ClampMaxTokens(req.MaxTokens, model, promptEstimate)
	if err != nil {
		return openai.ChatCompletionRequest{}, gwerrors.New(p.vendor, model.ModelID, err).WithKind(gwerrors.KindContextOverflow)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := m.Role
		if role == gwtypes.RoleFunction {
			role = openai.ChatMessageRoleTool
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content.AsText()})
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
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
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
