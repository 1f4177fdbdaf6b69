package openai

import (
	"strings"

	"github.com/goliatone/go-dispatch/core"
)

const (
	ChatProviderID     = "openai-chat"
	ResearchProviderID = "openai-deep-research"
	BaseURL            = "https://api.openai.com/v1"
	CredentialEnvVar   = "OPENAI_API_KEY"
)

type Config struct {
	BaseURL          string
	CredentialEnvVar string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:          BaseURL,
		CredentialEnvVar: CredentialEnvVar,
	}
}

// ChatSpec is the synchronous completion backend: one round trip, result
// extracted from the response body.
func ChatSpec(cfg Config) (core.AdapterSpec, error) {
	cfg = withDefaults(cfg)
	spec := core.AdapterSpec{
		ID:               ChatProviderID,
		BaseURL:          cfg.BaseURL,
		CredentialEnvVar: cfg.CredentialEnvVar,
		Async:            false,
		Schema: []core.FieldDef{
			{Name: "model", Type: core.FieldTypeString, Required: true, Default: "gpt-4o"},
			{Name: "prompt", Type: core.FieldTypeString, Required: true},
			{Name: "temperature", Type: core.FieldTypeNumber},
			{Name: "max_tokens", Type: core.FieldTypeInteger},
		},
		RemoteIDKeys: []string{"id"},
		ErrorKeys:    []string{"error", "message"},
	}
	if err := spec.Validate(); err != nil {
		return core.AdapterSpec{}, err
	}
	return spec, nil
}

// ResearchSpec is the asynchronous deep research backend. Jobs run for
// minutes, so the status vocabulary drives the poll loop.
func ResearchSpec(cfg Config) (core.AdapterSpec, error) {
	cfg = withDefaults(cfg)
	statuses, err := core.NewStatusMapping(map[string]core.TaskState{
		"queued":      core.TaskStatePending,
		"in_progress": core.TaskStateRunning,
		"completed":   core.TaskStateCompleted,
		"failed":      core.TaskStateFailed,
		"cancelled":   core.TaskStateCancelled,
		"expired":     core.TaskStateFailed,
	})
	if err != nil {
		return core.AdapterSpec{}, err
	}
	spec := core.AdapterSpec{
		ID:               ResearchProviderID,
		BaseURL:          cfg.BaseURL,
		CredentialEnvVar: cfg.CredentialEnvVar,
		Async:            true,
		Statuses:         statuses,
		Schema: []core.FieldDef{
			{
				Name:     "model",
				Type:     core.FieldTypeEnum,
				Required: true,
				Default:  "o4-mini-deep-research",
				Enum:     []string{"o3-deep-research", "o4-mini-deep-research"},
			},
			{Name: "prompt", Type: core.FieldTypeString, Required: true},
			{Name: "max_tool_calls", Type: core.FieldTypeInteger},
		},
		RemoteIDKeys: []string{"id"},
		ErrorKeys:    []string{"error", "incomplete_reason", "message"},
		WarningKeys:  []string{"warnings"},
	}
	if err := spec.Validate(); err != nil {
		return core.AdapterSpec{}, err
	}
	return spec, nil
}

func withDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(cfg.CredentialEnvVar) == "" {
		cfg.CredentialEnvVar = defaults.CredentialEnvVar
	}
	return cfg
}
