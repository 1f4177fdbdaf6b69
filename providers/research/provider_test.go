package research

import (
	"testing"

	"github.com/goliatone/go-dispatch/core"
)

func TestSpec_OperationEnum(t *testing.T) {
	spec, err := Spec(Config{})
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if spec.ID != ProviderID {
		t.Fatalf("expected id %q, got %q", ProviderID, spec.ID)
	}
	if spec.Async {
		t.Fatalf("text analysis is synchronous")
	}

	for _, operation := range []string{OperationSummarize, OperationSentiment, OperationEntities, OperationLanguage} {
		if _, err := core.BuildPayload(spec.Schema, map[string]any{
			"operation": operation,
			"text":      "the quick brown fox",
		}); err != nil {
			t.Fatalf("operation %q: %v", operation, err)
		}
	}

	if _, err := core.BuildPayload(spec.Schema, map[string]any{
		"operation": "translate",
		"text":      "the quick brown fox",
	}); !core.IsValidationError(err) {
		t.Fatalf("expected enum rejection, got %v", err)
	}
}

func TestSpec_Defaults(t *testing.T) {
	spec, err := Spec(Config{})
	if err != nil {
		t.Fatalf("spec: %v", err)
	}

	payload, err := core.BuildPayload(spec.Schema, map[string]any{
		"operation": OperationSummarize,
		"text":      "a long article body",
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	sentences, _ := payload.Get("max_sentences")
	if sentences != 3 {
		t.Fatalf("expected default sentence budget, got %v", sentences)
	}
	if _, exists := payload.Get("language"); exists {
		t.Fatalf("expected optional field omitted when absent")
	}
}

func TestSpec_TextIsRequired(t *testing.T) {
	spec, err := Spec(Config{})
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if _, err := core.BuildPayload(spec.Schema, map[string]any{"operation": OperationSentiment}); !core.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
