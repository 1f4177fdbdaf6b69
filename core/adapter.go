package core

import (
	"fmt"
	"strings"
)

// FieldType enumerates the declarative schema types accepted by payload
// normalization.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeFile    FieldType = "file"
	FieldTypeEnum    FieldType = "enum"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeNumber, FieldTypeBoolean, FieldTypeFile, FieldTypeEnum:
		return true
	}
	return false
}

// FieldDef declares one field of a provider request schema. Declaration order
// is significant: normalized payloads preserve it for field-order-sensitive
// providers.
type FieldDef struct {
	Name     string
	Type     FieldType
	Required bool
	Default  any
	Enum     []string
}

// AdapterSpec is the full data-driven description of one provider backend:
// schema, status vocabulary, endpoint template, and dispatch mode. Adding a
// provider is adding a value, not a type. Immutable once registered.
type AdapterSpec struct {
	ID               string
	BaseURL          string
	Schema           []FieldDef
	Statuses         StatusMapping
	Async            bool
	CredentialEnvVar string

	// RemoteIDKeys lists the response keys that may carry the provider's job
	// identifier on a successful create, probed in order.
	RemoteIDKeys []string

	// ErrorKeys and WarningKeys name the payload fields carrying provider
	// error/warning prose, probed in order.
	ErrorKeys   []string
	WarningKeys []string

	Metadata map[string]any
}

func (s AdapterSpec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("core: adapter id is required")
	}
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("core: adapter %q requires a base url", s.ID)
	}
	if strings.TrimSpace(s.CredentialEnvVar) == "" {
		return fmt.Errorf("core: adapter %q requires a credential env var", s.ID)
	}
	if s.Async && s.Statuses.Len() == 0 {
		return fmt.Errorf("core: async adapter %q requires a status mapping", s.ID)
	}
	seen := map[string]struct{}{}
	for _, field := range s.Schema {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("core: adapter %q has a schema field without a name", s.ID)
		}
		if !field.Type.Valid() {
			return fmt.Errorf("core: adapter %q field %q has unknown type %q", s.ID, name, field.Type)
		}
		if field.Type == FieldTypeEnum && len(field.Enum) == 0 {
			return fmt.Errorf("core: adapter %q field %q declares enum type without values", s.ID, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("core: adapter %q declares field %q twice", s.ID, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// CreateURL, StatusURL and ResultURL expand the adapter's endpoint template
// into the three remote calls every provider exposes.
func (s AdapterSpec) CreateURL() string {
	return strings.TrimRight(strings.TrimSpace(s.BaseURL), "/") + "/tasks"
}

func (s AdapterSpec) StatusURL(remoteID string) string {
	return s.CreateURL() + "/" + strings.TrimSpace(remoteID)
}

func (s AdapterSpec) ResultURL(remoteID string) string {
	return s.StatusURL(remoteID) + "/result"
}

// RemoteID probes the create-response payload for the provider job id.
func (s AdapterSpec) RemoteID(payload map[string]any) string {
	keys := s.RemoteIDKeys
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// ErrorText probes the status/result payload for provider error prose. The
// provider's wording is surfaced verbatim; this layer never invents prose.
func (s AdapterSpec) ErrorText(payload map[string]any) string {
	keys := s.ErrorKeys
	if len(keys) == 0 {
		keys = []string{"error", "failure_reason", "message"}
	}
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// WarningText collects provider warning prose from the payload.
func (s AdapterSpec) WarningText(payload map[string]any) []string {
	keys := s.WarningKeys
	if len(keys) == 0 {
		keys = []string{"warning", "warnings"}
	}
	var out []string
	for _, key := range keys {
		switch value := payload[key].(type) {
		case string:
			if strings.TrimSpace(value) != "" {
				out = append(out, strings.TrimSpace(value))
			}
		case []any:
			for _, item := range value {
				if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
					out = append(out, strings.TrimSpace(text))
				}
			}
		}
	}
	return out
}
