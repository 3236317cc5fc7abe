package gwtypes

import "testing"

func TestFingerprintIsDeterministic(t *testing.T) {
	req := &CompletionRequest{
		Messages:  []Message{{Role: RoleUser, Content: NewTextContent("hi")}},
		ModelTier: TierSmall,
		Model:     "fast",
	}
	if Fingerprint(req) != Fingerprint(req) {
		t.Error("expected fingerprint to be deterministic for identical input")
	}
}

func TestFingerprintIgnoresSessionAndTaskIDs(t *testing.T) {
	base := &CompletionRequest{
		Messages:  []Message{{Role: RoleUser, Content: NewTextContent("hi")}},
		ModelTier: TierSmall,
	}
	withIDs := &CompletionRequest{
		Messages:   base.Messages,
		ModelTier:  base.ModelTier,
		SessionID:  "session-1",
		TaskID:     "task-1",
		AgentID:    "agent-1",
		WorkflowID: "workflow-1",
	}
	if Fingerprint(base) != Fingerprint(withIDs) {
		t.Error("expected session/task/agent/workflow IDs to be excluded from the fingerprint")
	}
}

func TestFingerprintChangesWithMessageOrder(t *testing.T) {
	a := &CompletionRequest{Messages: []Message{
		{Role: RoleUser, Content: NewTextContent("first")},
		{Role: RoleUser, Content: NewTextContent("second")},
	}}
	b := &CompletionRequest{Messages: []Message{
		{Role: RoleUser, Content: NewTextContent("second")},
		{Role: RoleUser, Content: NewTextContent("first")},
	}}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("expected reordered messages to change the fingerprint")
	}
}

func TestFingerprintChangesWithModelTier(t *testing.T) {
	a := &CompletionRequest{Messages: []Message{{Role: RoleUser, Content: NewTextContent("hi")}}, ModelTier: TierSmall}
	b := &CompletionRequest{Messages: []Message{{Role: RoleUser, Content: NewTextContent("hi")}}, ModelTier: TierLarge}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("expected different model tiers to produce different fingerprints")
	}
}
