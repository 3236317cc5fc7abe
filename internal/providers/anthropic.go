package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// AnthropicProvider implements Provider for Anthropic's Messages API,
// applying the Anthropic-family vendor rules from spec §4.1: the system
// message is lifted into a dedicated field, `function` role turns into a
// user message prefixed "Function result:", and when both temperature and
// top_p are present only temperature survives.
type AnthropicProvider struct {
	Base
	client anthropic.Client
	models []gwtypes.ModelConfig
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Models  []gwtypes.ModelConfig
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("anthropic: at least one model must be configured")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for i := range cfg.Models {
		cfg.Models[i].Provider = "anthropic"
		if err := cfg.Models[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &AnthropicProvider{
		Base:   NewBase("anthropic"),
		client: anthropic.NewClient(opts...),
		models: cfg.Models,
	}, nil
}

func (p *AnthropicProvider) ListModels() []gwtypes.ModelConfig { return p.models }

func (p *AnthropicProvider) CountTokens(req *gwtypes.CompletionRequest) int {
	return EstimateTokens(req)
}

func (p *AnthropicProvider) EstimateCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64 {
	return DefaultCost(usage, model)
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (*gwtypes.CompletionResponse, error) {
	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, err
	}

	msg, err := Retry(ctx, &p.Base, func(attempt int) (*anthropic.Message, error) {
		m, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, wrapAnthropicError(err, model.ModelID)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	resp := &gwtypes.CompletionResponse{
		Model:        model.ModelID,
		Provider:     "anthropic",
		FinishReason: string(msg.StopReason),
		RequestID:    msg.ID,
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			resp.FunctionCall = &gwtypes.FunctionCall{Name: variant.Name, Arguments: json.RawMessage(variant.Input)}
		}
	}
	resp.Usage = gwtypes.NewTokenUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), 0)
	resp.Usage.EstimatedCost = p.EstimateCost(resp.Usage, model)
	return resp, nil
}

func (p *AnthropicProvider) StreamComplete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (<-chan gwtypes.StreamDelta, error) {
	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, err
	}
	out := make(chan gwtypes.StreamDelta)
	go func() {
		defer close(out)
		stream := p.client.Messages.NewStreaming(ctx, params)
		var inputTokens, outputTokens int64
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				inputTokens = variant.Message.Usage.InputTokens
			case anthropic.ContentBlockDeltaEvent:
				if textDelta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok {
					out <- gwtypes.StreamDelta{Text: textDelta.Text}
				}
			case anthropic.MessageDeltaEvent:
				outputTokens = variant.Usage.OutputTokens
			}
		}
		if err := stream.Err(); err != nil {
			out <- gwtypes.StreamDelta{Err: wrapAnthropicError(err, model.ModelID), Done: true}
			return
		}
		usage := gwtypes.NewTokenUsage(int(inputTokens), int(outputTokens), 0)
		usage.EstimatedCost = p.EstimateCost(usage, model)
		out <- gwtypes.StreamDelta{Usage: &usage, Done: true}
	}()
	return out, nil
}

func (p *AnthropicProvider) buildParams(req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (anthropic.MessageNewParams, error) {
	promptEstimate := EstimateTokens(req)
	maxTokens, err := ClampMaxTokens(req.MaxTokens, model, promptEstimate)
	if err != nil {
		return anthropic.MessageNewParams{}, gwerrors.New("anthropic", model.ModelID, err).WithKind(gwerrors.KindContextOverflow)
	}

	var system string
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case gwtypes.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content.AsText()
		case gwtypes.RoleFunction:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock("Function result: "+m.Content.AsText())))
		case gwtypes.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content.AsText())))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content.AsText())))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model.ModelID),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	// Anthropic tolerates only one of temperature/top_p: when both are set,
	// keep temperature and drop top_p (spec §4.1).
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	} else if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	if len(req.Functions) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Functions))
		for _, fn := range req.Functions {
			var schema anthropic.ToolInputSchemaParam
			if err := json.Unmarshal(fn.Parameters, &schema); err != nil {
				schema = anthropic.ToolInputSchemaParam{}
			}
			tool := anthropic.ToolUnionParamOfTool(schema, fn.Name)
			tool.OfTool.Description = anthropic.String(fn.Description)
			tools = append(tools, tool)
		}
		params.Tools = tools
	}

	return params, nil
}

func wrapAnthropicError(err error, model string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return gwerrors.New("anthropic", model, err).WithStatus(apiErr.StatusCode)
	}
	return gwerrors.New("anthropic", model, err)
}
