package research

import (
	"strings"

	"github.com/goliatone/go-dispatch/core"
)

const (
	ProviderID       = "research"
	BaseURL          = "https://research.internal.example.com/api/v1"
	CredentialEnvVar = "RESEARCH_API_KEY"
)

const (
	OperationSummarize = "summarize"
	OperationSentiment = "sentiment"
	OperationEntities  = "entities"
	OperationLanguage  = "language"
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

// Spec is the synchronous text analysis backend. The operation enum selects
// which analysis runs; results come back in the dispatch response body.
func Spec(cfg Config) (core.AdapterSpec, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(cfg.CredentialEnvVar) == "" {
		cfg.CredentialEnvVar = defaults.CredentialEnvVar
	}

	spec := core.AdapterSpec{
		ID:               ProviderID,
		BaseURL:          cfg.BaseURL,
		CredentialEnvVar: cfg.CredentialEnvVar,
		Async:            false,
		Schema: []core.FieldDef{
			{
				Name:     "operation",
				Type:     core.FieldTypeEnum,
				Required: true,
				Enum: []string{
					OperationSummarize,
					OperationSentiment,
					OperationEntities,
					OperationLanguage,
				},
			},
			{Name: "text", Type: core.FieldTypeString, Required: true},
			{Name: "language", Type: core.FieldTypeString},
			{Name: "max_sentences", Type: core.FieldTypeInteger, Default: 3},
		},
		RemoteIDKeys: []string{"id"},
		ErrorKeys:    []string{"error", "detail", "message"},
		WarningKeys:  []string{"warnings"},
	}
	if err := spec.Validate(); err != nil {
		return core.AdapterSpec{}, err
	}
	return spec, nil
}
