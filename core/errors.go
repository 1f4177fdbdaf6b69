package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DispatchErrorBadInput            = "DISPATCH_BAD_INPUT"
	DispatchErrorConfiguration       = "DISPATCH_CONFIGURATION"
	DispatchErrorProviderNotFound    = "DISPATCH_PROVIDER_NOT_FOUND"
	DispatchErrorSubmissionRejected  = "DISPATCH_SUBMISSION_REJECTED"
	DispatchErrorTaskFailed          = "DISPATCH_TASK_FAILED"
	DispatchErrorPollExhausted       = "DISPATCH_POLL_EXHAUSTED"
	DispatchErrorConflict            = "DISPATCH_CONFLICT"
	DispatchErrorTransportUnreliable = "DISPATCH_TRANSPORT_UNRELIABLE"
	DispatchErrorInternal            = "DISPATCH_INTERNAL"
)

// NewValidationError reports a payload schema violation naming exactly the
// offending field. Fatal, surfaced before any network call.
func NewValidationError(field string, message string) error {
	return goerrors.NewValidation("core: payload validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(DispatchErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// NewConfigurationError reports a missing credential or adapter
// misconfiguration. Fatal, never retried.
func NewConfigurationError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(DispatchErrorConfiguration)
}

// NewSubmissionError reports the remote rejecting job creation; it carries
// the provider's raw error body verbatim.
func NewSubmissionError(providerID string, statusCode int, rawBody string) error {
	return goerrors.New(strings.TrimSpace(rawBody), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(DispatchErrorSubmissionRejected).
		WithMetadata(map[string]any{
			"provider_id": providerID,
			"status_code": statusCode,
		})
}

// NewTerminalError reports a failure-equivalent remote status, carrying the
// provider's error text untouched.
func NewTerminalError(providerID string, state TaskState, providerText string) error {
	return goerrors.New(strings.TrimSpace(providerText), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(DispatchErrorTaskFailed).
		WithMetadata(map[string]any{
			"provider_id": providerID,
			"state":       string(state),
		})
}

// NewTimeoutError reports an exhausted poll budget. The remote job may still
// be alive; only this poll attempt is over.
func NewTimeoutError(providerID string, attempts int) error {
	return goerrors.New("core: poll attempts exhausted", goerrors.CategoryOperation).
		WithCode(http.StatusGatewayTimeout).
		WithTextCode(DispatchErrorPollExhausted).
		WithMetadata(map[string]any{
			"provider_id": providerID,
			"attempts":    attempts,
		})
}

func NewProviderNotFoundError(providerID string) error {
	return goerrors.New("core: provider not registered: "+providerID, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(DispatchErrorProviderNotFound)
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func IsValidationError(err error) bool    { return hasTextCode(err, DispatchErrorBadInput) }
func IsConfigurationError(err error) bool { return hasTextCode(err, DispatchErrorConfiguration) }
func IsSubmissionError(err error) bool    { return hasTextCode(err, DispatchErrorSubmissionRejected) }
func IsTerminalError(err error) bool      { return hasTextCode(err, DispatchErrorTaskFailed) }
func IsTimeoutError(err error) bool       { return hasTextCode(err, DispatchErrorPollExhausted) }

// ProviderErrorText recovers the verbatim provider prose carried by a
// submission or terminal error.
func ProviderErrorText(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ""
	}
	switch richErr.TextCode {
	case DispatchErrorSubmissionRejected, DispatchErrorTaskFailed:
		return richErr.Message
	}
	return ""
}

func dispatchErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureDispatchErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newDispatchError(err.Error(), goerrors.CategoryNotFound, DispatchErrorProviderNotFound)
	case strings.Contains(msg, "is not set"), strings.Contains(msg, "misconfigured"):
		return newDispatchError(err.Error(), goerrors.CategoryInternal, DispatchErrorConfiguration)
	case strings.Contains(msg, "already terminal"), strings.Contains(msg, "already in flight"):
		return newDispatchError(err.Error(), goerrors.CategoryConflict, DispatchErrorConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "not a member"):
		return newDispatchError(err.Error(), goerrors.CategoryBadInput, DispatchErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureDispatchErrorEnvelope(mapped)
}

func newDispatchError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureDispatchErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureDispatchErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = dispatchHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultDispatchTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultDispatchTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return DispatchErrorBadInput
	case goerrors.CategoryNotFound:
		return DispatchErrorProviderNotFound
	case goerrors.CategoryConflict:
		return DispatchErrorConflict
	case goerrors.CategoryExternal:
		return DispatchErrorTaskFailed
	case goerrors.CategoryOperation:
		return DispatchErrorPollExhausted
	default:
		return DispatchErrorInternal
	}
}

func dispatchHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
