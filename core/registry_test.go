package core

import "testing"

func TestAdapterRegistry_RejectsDuplicateAndInvalidSpecs(t *testing.T) {
	registry := NewAdapterRegistry()

	spec := testAdapterSpec()
	if err := registry.Register(spec); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(spec); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
	if err := registry.Register(AdapterSpec{ID: "no-base-url", CredentialEnvVar: "X"}); err == nil {
		t.Fatalf("expected invalid spec rejection")
	}

	// Async adapters need a status vocabulary to drive the poll loop.
	async := testAdapterSpec()
	async.ID = "runway"
	async.Async = true
	if err := registry.Register(async); err == nil {
		t.Fatalf("expected async spec without statuses rejection")
	}
}

func TestAdapterRegistry_ListDeterministicOrder(t *testing.T) {
	registry := NewAdapterRegistry()
	for _, id := range []string{"runway", "openai-chat", "replicate"} {
		spec := testAdapterSpec()
		spec.ID = id
		if err := registry.Register(spec); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	listed := registry.List()
	want := []string{"openai-chat", "replicate", "runway"}
	if len(listed) != len(want) {
		t.Fatalf("expected %d specs, got %d", len(want), len(listed))
	}
	for idx, id := range want {
		if listed[idx].ID != id {
			t.Fatalf("position %d: expected %s, got %s", idx, id, listed[idx].ID)
		}
	}
}

func TestAdapterSpec_URLTemplates(t *testing.T) {
	spec := testAdapterSpec()
	spec.BaseURL = "https://api.example.com/v1/"

	if got := spec.CreateURL(); got != "https://api.example.com/v1/tasks" {
		t.Fatalf("create url: %s", got)
	}
	if got := spec.StatusURL("run_1"); got != "https://api.example.com/v1/tasks/run_1" {
		t.Fatalf("status url: %s", got)
	}
	if got := spec.ResultURL("run_1"); got != "https://api.example.com/v1/tasks/run_1/result" {
		t.Fatalf("result url: %s", got)
	}
}

func TestAdapterSpec_RemoteIDProbeOrder(t *testing.T) {
	spec := testAdapterSpec()
	spec.RemoteIDKeys = []string{"task_id", "id"}

	payload := map[string]any{"id": "fallback", "task_id": "primary"}
	if got := spec.RemoteID(payload); got != "primary" {
		t.Fatalf("expected first probe key to win, got %q", got)
	}
	if got := spec.RemoteID(map[string]any{"id": "fallback"}); got != "fallback" {
		t.Fatalf("expected fallback key, got %q", got)
	}
	if got := spec.RemoteID(map[string]any{}); got != "" {
		t.Fatalf("expected empty remote id, got %q", got)
	}
}

func TestAdapterSpec_ErrorTextVerbatim(t *testing.T) {
	spec := testAdapterSpec()
	text := spec.ErrorText(map[string]any{"error": "NSFW content detected in output"})
	if text != "NSFW content detected in output" {
		t.Fatalf("expected provider prose verbatim, got %q", text)
	}
	if spec.ErrorText(map[string]any{"error": 42}) != "" {
		t.Fatalf("expected non-string error ignored")
	}
}
