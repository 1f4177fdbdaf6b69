package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dispatch/core"
	"github.com/goliatone/go-dispatch/tasks"
	"github.com/goliatone/go-dispatch/webhooks"
)

// DispatchingService is the synchronous path: validate, credential, call,
// extract in one round trip.
type DispatchingService interface {
	Dispatch(ctx context.Context, req core.DispatchRequest) (core.DispatchResult, error)
}

// TaskService is the asynchronous path over submitted jobs.
type TaskService interface {
	Submit(ctx context.Context, req tasks.SubmitRequest) (core.Job, error)
	Poll(ctx context.Context, jobID string, options core.PollConfig) (core.CanonicalResult, error)
	Cancel(ctx context.Context, jobID string, reason string) (core.Job, error)
}

// CallbackService applies provider callbacks to stored jobs.
type CallbackService interface {
	Reconcile(ctx context.Context, delivery webhooks.Delivery) (webhooks.Outcome, error)
}

type DispatchCommand struct {
	service DispatchingService
}

func NewDispatchCommand(service DispatchingService) *DispatchCommand {
	return &DispatchCommand{service: service}
}

func (c *DispatchCommand) Execute(ctx context.Context, msg DispatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.Dispatch(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitTaskCommand struct {
	service TaskService
}

func NewSubmitTaskCommand(service TaskService) *SubmitTaskCommand {
	return &SubmitTaskCommand{service: service}
}

func (c *SubmitTaskCommand) Execute(ctx context.Context, msg SubmitTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task service is required")
	}
	out, err := c.service.Submit(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PollTaskCommand struct {
	service TaskService
}

func NewPollTaskCommand(service TaskService) *PollTaskCommand {
	return &PollTaskCommand{service: service}
}

func (c *PollTaskCommand) Execute(ctx context.Context, msg PollTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task service is required")
	}
	out, err := c.service.Poll(ctx, msg.JobID, msg.Options)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelTaskCommand struct {
	service TaskService
}

func NewCancelTaskCommand(service TaskService) *CancelTaskCommand {
	return &CancelTaskCommand{service: service}
}

func (c *CancelTaskCommand) Execute(ctx context.Context, msg CancelTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task service is required")
	}
	out, err := c.service.Cancel(ctx, msg.JobID, msg.Reason)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcileCallbackCommand struct {
	service CallbackService
}

func NewReconcileCallbackCommand(service CallbackService) *ReconcileCallbackCommand {
	return &ReconcileCallbackCommand{service: service}
}

func (c *ReconcileCallbackCommand) Execute(ctx context.Context, msg ReconcileCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.Reconcile(ctx, msg.Delivery)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
