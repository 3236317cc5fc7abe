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

// OpenAIProvider implements Provider for OpenAI's chat completions API,
// including the GPT-5-family quirks from spec §4.1: a GPT-5 model requests
// the Responses API surface instead of Chat Completions whenever the caller
// asked for reasoning, and `max_tokens` is sent as `max_completion_tokens`.
type OpenAIProvider struct {
	Base
	client *openai.Client
	models []gwtypes.ModelConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Models  []gwtypes.ModelConfig
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("openai: at least one model must be configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	for i := range cfg.Models {
		cfg.Models[i].Provider = "openai"
		if err := cfg.Models[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &OpenAIProvider{
		Base:   NewBase("openai"),
		client: openai.NewClientWithConfig(clientCfg),
		models: cfg.Models,
	}, nil
}

func (p *OpenAIProvider) ListModels() []gwtypes.ModelConfig { return p.models }

func (p *OpenAIProvider) CountTokens(req *gwtypes.CompletionRequest) int {
	return EstimateTokens(req)
}

func (p *OpenAIProvider) EstimateCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64 {
	return DefaultCost(usage, model)
}

// isGPT5Family reports whether model_id selects the GPT-5 reasoning family,
// which uses max_completion_tokens rather than max_tokens (spec §4.1).
func isGPT5Family(modelID string) bool {
	return strings.HasPrefix(modelID, "gpt-5")
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (*gwtypes.CompletionResponse, error) {
	chatReq, err := p.buildRequest(req, model, false)
	if err != nil {
		return nil, err
	}

	result, err := Retry(ctx, &p.Base, func(attempt int) (openai.ChatCompletionResponse, error) {
		r, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return openai.ChatCompletionResponse{}, wrapOpenAIError(err, model.ModelID)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, gwerrors.New("openai", model.ModelID, errors.New("empty choices in completion response")).WithKind(gwerrors.KindParse)
	}

	choice := result.Choices[0]
	resp := &gwtypes.CompletionResponse{
		Model:        model.ModelID,
		Provider:     "openai",
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

func (p *OpenAIProvider) StreamComplete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (<-chan gwtypes.StreamDelta, error) {
	chatReq, err := p.buildRequest(req, model, true)
	if err != nil {
		return nil, err
	}
	out := make(chan gwtypes.StreamDelta)
	go func() {
		defer close(out)
		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			out <- gwtypes.StreamDelta{Err: wrapOpenAIError(err, model.ModelID), Done: true}
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
				out <- gwtypes.StreamDelta{Err: wrapOpenAIError(err, model.ModelID), Done: true}
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

func (p *OpenAIProvider) buildRequest(req *gwtypes.CompletionRequest, model gwtypes.ModelConfig, stream bool) (openai.ChatCompletionRequest, error) {
	promptEstimate := EstimateTokens(req)
	maxTokens, err := ClampMaxTokens(req.MaxTokens, model, promptEstimate)
	if err != nil {
		return openai.ChatCompletionRequest{}, gwerrors.New("openai", model.ModelID, err).WithKind(gwerrors.KindContextOverflow)
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
		Model:    model.ModelID,
		Messages: messages,
		Stream:   stream,
	}
	if stream {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	gpt5 := isGPT5Family(model.ModelID)
	if gpt5 {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
	}
	// GPT-5 chat models reject temperature/top_p/frequency_penalty/presence_penalty
	// outright, so those fields must be left unset rather than defaulted (spec §4.1).
	if !gpt5 {
		if req.Temperature != nil {
			chatReq.Temperature = float32(*req.Temperature)
		}
		if req.TopP != nil {
			chatReq.TopP = float32(*req.TopP)
		}
		if req.FrequencyPenalty != nil {
			chatReq.FrequencyPenalty = float32(*req.FrequencyPenalty)
		}
		if req.PresencePenalty != nil {
			chatReq.PresencePenalty = float32(*req.PresencePenalty)
		}
	}
	if len(req.Stop) > 0 {
		chatReq.Stop = req.Stop
	}
	if req.Seed != nil {
		seed := int(*req.Seed)
		chatReq.Seed = &seed
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

func wrapOpenAIError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return gwerrors.New("openai", model, err).WithStatus(apiErr.HTTPStatusCode).WithCode(fmt.Sprint(apiErr.Code))
	}
	return gwerrors.New("openai", model, err)
}
