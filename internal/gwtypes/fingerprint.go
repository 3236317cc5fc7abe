package gwtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprintView is the subset of a CompletionRequest the cache key is
// computed over. session_id/task_id/agent_id/workflow_id are deliberately
// excluded so that identical prompts from different sessions share a cache
// entry (spec §3, GLOSSARY "Fingerprint").
type fingerprintView struct {
	Messages       []Message         `json:"messages"`
	ModelTier      ModelTier         `json:"model_tier"`
	Model          string            `json:"model"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Functions      []FunctionSchema  `json:"functions,omitempty"`
	Seed           *int64            `json:"seed,omitempty"`
}

// Fingerprint computes the deterministic cache key for a CompletionRequest.
// Messages are hashed in order: reordering them changes the key.
func Fingerprint(req *CompletionRequest) string {
	view := fingerprintView{
		Messages:    req.Messages,
		ModelTier:   req.EffectiveTier(),
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Functions:   req.Functions,
		Seed:        req.Seed,
	}
	// json.Marshal of a struct is field-order-stable, which keeps the hash
	// reproducible across runs without needing a canonicalization pass.
	payload, err := json.Marshal(view)
	if err != nil {
		// Marshal of this struct cannot fail in practice (no channels/funcs/cycles);
		// fall back to a fixed key so a corrupt request still misses the cache
		// rather than panicking the request path.
		return "fingerprint-error"
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
