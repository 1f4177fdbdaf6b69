package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-dispatch/core"
)

const errorTextCode = core.DispatchErrorTransportUnreliable

func transportError(message string, category goerrors.Category, status int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithTextCode(errorTextCode).
		WithCode(status)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(cause error, category goerrors.Category, message string, status int, metadata map[string]any) error {
	err := goerrors.Wrap(cause, category, message).
		WithTextCode(errorTextCode).
		WithCode(status)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}
