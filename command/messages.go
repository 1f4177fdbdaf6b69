package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-dispatch/core"
	"github.com/goliatone/go-dispatch/tasks"
	"github.com/goliatone/go-dispatch/webhooks"
)

const (
	TypeDispatch          = "dispatch.command.dispatch"
	TypeSubmitTask        = "dispatch.command.task.submit"
	TypePollTask          = "dispatch.command.task.poll"
	TypeCancelTask        = "dispatch.command.task.cancel"
	TypeReconcileCallback = "dispatch.command.callback.reconcile"
)

type DispatchMessage struct {
	Request core.DispatchRequest
}

func (DispatchMessage) Type() string { return TypeDispatch }

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	return nil
}

type SubmitTaskMessage struct {
	Request tasks.SubmitRequest
}

func (SubmitTaskMessage) Type() string { return TypeSubmitTask }

func (m SubmitTaskMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	return nil
}

type PollTaskMessage struct {
	JobID   string
	Options core.PollConfig
}

func (PollTaskMessage) Type() string { return TypePollTask }

func (m PollTaskMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("command: job id is required")
	}
	return nil
}

type CancelTaskMessage struct {
	JobID  string
	Reason string
}

func (CancelTaskMessage) Type() string { return TypeCancelTask }

func (m CancelTaskMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("command: job id is required")
	}
	return nil
}

type ReconcileCallbackMessage struct {
	Delivery webhooks.Delivery
}

func (ReconcileCallbackMessage) Type() string { return TypeReconcileCallback }

func (m ReconcileCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Delivery.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Delivery.CorrelationID) == "" {
		return fmt.Errorf("command: correlation id is required")
	}
	return nil
}
