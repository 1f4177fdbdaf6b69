package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Payload is a normalized provider request body that preserves schema
// declaration order. Some providers are field-order sensitive, so the JSON
// encoding emits fields in the order they were declared.
type Payload struct {
	names  []string
	values map[string]any
}

func (p Payload) Len() int {
	return len(p.names)
}

func (p Payload) Get(name string) (any, bool) {
	value, ok := p.values[name]
	return value, ok
}

func (p Payload) Names() []string {
	return append([]string(nil), p.names...)
}

func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for idx, name := range p.names {
		if idx > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(p.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Payload) set(name string, value any) {
	if p.values == nil {
		p.values = map[string]any{}
	}
	if _, exists := p.values[name]; !exists {
		p.names = append(p.names, name)
	}
	p.values[name] = value
}

// BuildPayload maps a generic request into a provider payload using the
// declared schema. The schema is an allow-list: undeclared request keys are
// dropped, never forwarded. Nil values are omitted entirely so providers see
// absence, not null. Pure; no network or credential access.
func BuildPayload(schema []FieldDef, request map[string]any) (Payload, error) {
	var payload Payload
	for _, field := range schema {
		name := strings.TrimSpace(field.Name)
		value, supplied := request[name]
		if !supplied || value == nil {
			if field.Default != nil {
				payload.set(name, field.Default)
				continue
			}
			if field.Required {
				return Payload{}, NewValidationError(name, fmt.Sprintf("required field %q is missing", name))
			}
			continue
		}
		coerced, err := coerceFieldValue(field, value)
		if err != nil {
			return Payload{}, err
		}
		payload.set(name, coerced)
	}
	return payload, nil
}

func coerceFieldValue(field FieldDef, value any) (any, error) {
	name := strings.TrimSpace(field.Name)
	switch field.Type {
	case FieldTypeString, FieldTypeFile:
		text, ok := value.(string)
		if !ok {
			return nil, NewValidationError(name, fmt.Sprintf("field %q expects a string, got %T", name, value))
		}
		return text, nil
	case FieldTypeEnum:
		text, ok := value.(string)
		if !ok {
			return nil, NewValidationError(name, fmt.Sprintf("field %q expects an enum string, got %T", name, value))
		}
		for _, member := range field.Enum {
			if member == text {
				return text, nil
			}
		}
		return nil, NewValidationError(name, fmt.Sprintf("value %q is not a member of enum %v", text, field.Enum))
	case FieldTypeInteger:
		switch typed := value.(type) {
		case int:
			return typed, nil
		case int64:
			return typed, nil
		case float64:
			// JSON decoding hands integers over as float64.
			if typed != math.Trunc(typed) {
				return nil, NewValidationError(name, fmt.Sprintf("field %q expects an integer, got %v", name, typed))
			}
			return int64(typed), nil
		default:
			return nil, NewValidationError(name, fmt.Sprintf("field %q expects an integer, got %T", name, value))
		}
	case FieldTypeNumber:
		switch typed := value.(type) {
		case int:
			return float64(typed), nil
		case int64:
			return float64(typed), nil
		case float64:
			return typed, nil
		default:
			return nil, NewValidationError(name, fmt.Sprintf("field %q expects a number, got %T", name, value))
		}
	case FieldTypeBoolean:
		flag, ok := value.(bool)
		if !ok {
			return nil, NewValidationError(name, fmt.Sprintf("field %q expects a boolean, got %T", name, value))
		}
		return flag, nil
	}
	return nil, NewValidationError(name, fmt.Sprintf("field %q has unknown type %q", name, field.Type))
}
