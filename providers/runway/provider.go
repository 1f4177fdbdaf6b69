package runway

import (
	"strings"

	"github.com/goliatone/go-dispatch/core"
)

const (
	ProviderID       = "runway"
	BaseURL          = "https://api.dev.runwayml.com/v1"
	CredentialEnvVar = "RUNWAYML_API_SECRET"
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

// Spec is the asynchronous video generation backend. Runway reports status
// in upper case; the status mapping lowercases on both sides.
func Spec(cfg Config) (core.AdapterSpec, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(cfg.CredentialEnvVar) == "" {
		cfg.CredentialEnvVar = defaults.CredentialEnvVar
	}

	statuses, err := core.NewStatusMapping(map[string]core.TaskState{
		"pending":   core.TaskStatePending,
		"throttled": core.TaskStatePending,
		"running":   core.TaskStateRunning,
		"succeeded": core.TaskStateCompleted,
		"failed":    core.TaskStateFailed,
		"cancelled": core.TaskStateCancelled,
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
			{
				Name:     "model",
				Type:     core.FieldTypeEnum,
				Required: true,
				Default:  "gen4_turbo",
				Enum:     []string{"gen3a_turbo", "gen4_turbo"},
			},
			{Name: "prompt_text", Type: core.FieldTypeString, Required: true},
			{Name: "prompt_image", Type: core.FieldTypeFile},
			{Name: "duration", Type: core.FieldTypeInteger, Default: 5},
			{
				Name:    "ratio",
				Type:    core.FieldTypeEnum,
				Default: "1280:720",
				Enum:    []string{"1280:720", "720:1280", "960:960"},
			},
		},
		RemoteIDKeys: []string{"id", "task_id"},
		ErrorKeys:    []string{"failure_reason", "failure", "error"},
		WarningKeys:  []string{"warnings"},
	}
	if err := spec.Validate(); err != nil {
		return core.AdapterSpec{}, err
	}
	return spec, nil
}
