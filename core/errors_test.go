package core

import (
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		predicate func(error) bool
	}{
		{"validation", NewValidationError("prompt", "required field is missing"), IsValidationError},
		{"configuration", NewConfigurationError("OPENAI_API_KEY is not set"), IsConfigurationError},
		{"submission", NewSubmissionError("replicate", 422, "invalid version"), IsSubmissionError},
		{"terminal", NewTerminalError("replicate", TaskStateFailed, "NSFW content detected"), IsTerminalError},
		{"timeout", NewTimeoutError("replicate", 120), IsTimeoutError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.predicate(tc.err) {
				t.Fatalf("expected predicate match for %v", tc.err)
			}
			for _, other := range cases {
				if other.name == tc.name {
					continue
				}
				if other.predicate(tc.err) {
					t.Fatalf("%s predicate matched %s error", other.name, tc.name)
				}
			}
		})
	}
}

func TestProviderErrorTextIsVerbatim(t *testing.T) {
	prose := "Your prompt was flagged by our moderation system."
	if got := ProviderErrorText(NewTerminalError("openai-deep-research", TaskStateFailed, prose)); got != prose {
		t.Fatalf("expected verbatim provider text, got %q", got)
	}
	if got := ProviderErrorText(NewSubmissionError("replicate", 400, "version not found")); got != "version not found" {
		t.Fatalf("expected verbatim submission body, got %q", got)
	}
	if got := ProviderErrorText(NewConfigurationError("nope")); got != "" {
		t.Fatalf("expected empty text for non-provider error, got %q", got)
	}
}

func TestDispatchErrorMapper_EnvelopesPlainErrors(t *testing.T) {
	mapped := dispatchErrorMapper(NewProviderNotFoundError("acme"))
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != DispatchErrorProviderNotFound {
		t.Fatalf("expected provider not found code, got %s", mapped.TextCode)
	}
	if mapped.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", mapped.Code)
	}
}

func TestEnsureDispatchErrorEnvelopeFillsDefaults(t *testing.T) {
	err := goerrors.New("boom", goerrors.CategoryExternal)
	enveloped := ensureDispatchErrorEnvelope(err)
	if enveloped.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 default, got %d", enveloped.Code)
	}
	if enveloped.TextCode != DispatchErrorTaskFailed {
		t.Fatalf("expected external default text code, got %s", enveloped.TextCode)
	}
}
