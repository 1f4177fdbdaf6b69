package core

import "strings"

// extractMetadataSkip lists top-level keys consumed by extraction itself;
// everything else scalar lands in the result metadata.
var extractMetadataSkip = map[string]struct{}{
	"attachments": {},
	"url":         {},
	"output":      {},
	"key":         {},
}

// ExtractResult normalizes a provider success payload into a CanonicalResult.
// Dispatch order, first match wins: an attachments array, a top-level url
// string, a top-level output string, then an output array whose first element
// is a url string or a {url,key} object. No match yields an empty result
// rather than an error: providers shape success payloads too differently for
// extraction to be strict, and callers decide whether empty is fatal.
func ExtractResult(raw map[string]any) CanonicalResult {
	result := CanonicalResult{
		Metadata: map[string]any{},
		Raw:      copyAnyMap(raw),
	}
	if len(raw) == 0 {
		return result
	}

	switch {
	case extractFromAttachments(raw, &result):
	case extractFromURL(raw, &result):
	case extractFromOutput(raw, &result):
	}

	for key, value := range raw {
		if _, skip := extractMetadataSkip[key]; skip {
			continue
		}
		switch value.(type) {
		case string, bool, float64, int, int64:
			result.Metadata[key] = value
		}
	}
	return result
}

func extractFromAttachments(raw map[string]any, result *CanonicalResult) bool {
	attachments, ok := raw["attachments"].([]any)
	if !ok || len(attachments) == 0 {
		return false
	}
	first, ok := attachments[0].(map[string]any)
	if !ok {
		return false
	}
	result.URL = stringField(first, "url")
	result.Key = stringField(first, "key")
	return result.URL != "" || result.Key != ""
}

func extractFromURL(raw map[string]any, result *CanonicalResult) bool {
	url := stringField(raw, "url")
	if url == "" {
		return false
	}
	result.URL = url
	result.Key = stringField(raw, "key")
	return true
}

func extractFromOutput(raw map[string]any, result *CanonicalResult) bool {
	switch output := raw["output"].(type) {
	case string:
		if strings.TrimSpace(output) == "" {
			return false
		}
		result.URL = strings.TrimSpace(output)
		return true
	case []any:
		if len(output) == 0 {
			return false
		}
		switch first := output[0].(type) {
		case string:
			result.URL = strings.TrimSpace(first)
			return result.URL != ""
		case map[string]any:
			result.URL = stringField(first, "url")
			result.Key = stringField(first, "key")
			return result.URL != "" || result.Key != ""
		}
	}
	return false
}

func stringField(payload map[string]any, key string) string {
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
