package replicate

import (
	"strings"

	"github.com/goliatone/go-dispatch/core"
)

const (
	ProviderID       = "replicate"
	BaseURL          = "https://api.replicate.com/v1"
	CredentialEnvVar = "REPLICATE_API_TOKEN"
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

// Spec is the asynchronous image generation backend.
func Spec(cfg Config) (core.AdapterSpec, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(cfg.CredentialEnvVar) == "" {
		cfg.CredentialEnvVar = defaults.CredentialEnvVar
	}

	statuses, err := core.NewStatusMapping(map[string]core.TaskState{
		"starting":   core.TaskStatePending,
		"queued":     core.TaskStatePending,
		"processing": core.TaskStateRunning,
		"succeeded":  core.TaskStateCompleted,
		"failed":     core.TaskStateFailed,
		"canceled":   core.TaskStateCancelled,
	})
	if err != nil {
		return core.AdapterSpec{}, err
	}

	spec := core.AdapterSpec{
		ID:               ProviderID,
		BaseURL:          cfg.BaseURL,
		CredentialEnvVar: cfg.CredentialEnvVar,
		Async:            true,
		Statuses:         statuses,
		Schema: []core.FieldDef{
			{Name: "version", Type: core.FieldTypeString, Required: true},
			{Name: "prompt", Type: core.FieldTypeString, Required: true},
			{Name: "width", Type: core.FieldTypeInteger, Default: 1024},
			{Name: "height", Type: core.FieldTypeInteger, Default: 1024},
			{Name: "num_outputs", Type: core.FieldTypeInteger, Default: 1},
			{Name: "image", Type: core.FieldTypeFile},
		},
		RemoteIDKeys: []string{"id"},
		ErrorKeys:    []string{"error", "detail"},
		WarningKeys:  []string{"warnings"},
	}
	if err := spec.Validate(); err != nil {
		return core.AdapterSpec{}, err
	}
	return spec, nil
}
