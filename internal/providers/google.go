package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// GoogleProvider implements Provider for Gemini, applying the Google-family
// vendor rules from spec §4.1: assistant messages map to the "model" role,
// and the system message is prepended to the first user message rather than
// carried as a distinct role (Gemini's SystemInstruction is used instead
// when present, which is the more direct equivalent of the same rule).
type GoogleProvider struct {
	Base
	client *genai.Client
	models []gwtypes.ModelConfig
}

type GoogleConfig struct {
	APIKey string
	Models []gwtypes.ModelConfig
}

func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("google: api key is required")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("google: at least one model must be configured")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	for i := range cfg.Models {
		cfg.Models[i].Provider = "google"
		if err := cfg.Models[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &GoogleProvider{
		Base:   NewBase("google"),
		client: client,
		models: cfg.Models,
	}, nil
}

func (p *GoogleProvider) ListModels() []gwtypes.ModelConfig { return p.models }

func (p *GoogleProvider) CountTokens(req *gwtypes.CompletionRequest) int {
	return EstimateTokens(req)
}

func (p *GoogleProvider) EstimateCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64 {
	return DefaultCost(usage, model)
}

func (p *GoogleProvider) Complete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (*gwtypes.CompletionResponse, error) {
	contents, config, err := p.buildRequest(req, model)
	if err != nil {
		return nil, err
	}

	result, err := Retry(ctx, &p.Base, func(attempt int) (*genai.GenerateContentResponse, error) {
		r, err := p.client.Models.GenerateContent(ctx, model.ModelID, contents, config)
		if err != nil {
			return nil, gwerrors.New("google", model.ModelID, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	resp := &gwtypes.CompletionResponse{
		Model:    model.ModelID,
		Provider: "google",
	}
	if len(result.Candidates) > 0 {
		cand := result.Candidates[0]
		resp.FinishReason = string(cand.FinishReason)
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					resp.Content += part.Text
				}
				if part.FunctionCall != nil {
					args, _ := marshalGenaiArgs(part.FunctionCall.Args)
					resp.FunctionCall = &gwtypes.FunctionCall{Name: part.FunctionCall.Name, Arguments: args}
				}
			}
		}
	}
	if result.UsageMetadata != nil {
		resp.Usage = gwtypes.NewTokenUsage(int(result.UsageMetadata.PromptTokenCount), int(result.UsageMetadata.CandidatesTokenCount), 0)
	}
	resp.Usage.EstimatedCost = p.EstimateCost(resp.Usage, model)
	return resp, nil
}

func (p *GoogleProvider) StreamComplete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (<-chan gwtypes.StreamDelta, error) {
	contents, config, err := p.buildRequest(req, model)
	if err != nil {
		return nil, err
	}
	out := make(chan gwtypes.StreamDelta)
	go func() {
		defer close(out)
		var promptTokens, outputTokens int
		for chunk, err := range p.client.Models.GenerateContentStream(ctx, model.ModelID, contents, config) {
			if err != nil {
				out <- gwtypes.StreamDelta{Err: gwerrors.New("google", model.ModelID, err), Done: true}
				return
			}
			if chunk.UsageMetadata != nil {
				promptTokens = int(chunk.UsageMetadata.PromptTokenCount)
				outputTokens = int(chunk.UsageMetadata.CandidatesTokenCount)
			}
			for _, cand := range chunk.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if part.Text != "" {
						out <- gwtypes.StreamDelta{Text: part.Text}
					}
				}
			}
		}
		usage := gwtypes.NewTokenUsage(promptTokens, outputTokens, 0)
		usage.EstimatedCost = p.EstimateCost(usage, model)
		out <- gwtypes.StreamDelta{Usage: &usage, Done: true}
	}()
	return out, nil
}

// buildRequest converts a CompletionRequest into Gemini's Contents/Config
// shape, applying the role-mapping rule: assistant -> "model", system ->
// SystemInstruction (falling back to prepending it to the first user
// message when the request carries no distinct system entry), function ->
// user (Gemini has no dedicated function-result role on the request side).
func (p *GoogleProvider) buildRequest(req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	promptEstimate := EstimateTokens(req)
	maxTokens, err := ClampMaxTokens(req.MaxTokens, model, promptEstimate)
	if err != nil {
		return nil, nil, gwerrors.New("google", model.ModelID, err).WithKind(gwerrors.KindContextOverflow)
	}

	config := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}

	var system string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case gwtypes.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content.AsText()
			continue
		case gwtypes.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content.AsText()}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content.AsText()}}})
		}
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	if len(req.Functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Functions))
		for _, fn := range req.Functions {
			decls = append(decls, &genai.FunctionDeclaration{Name: fn.Name, Description: fn.Description})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return contents, config, nil
}

func marshalGenaiArgs(args map[string]any) ([]byte, error) {
	if args == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(args)
}
