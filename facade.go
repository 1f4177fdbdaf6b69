package dispatch

import (
	"fmt"

	dispatchcommand "github.com/goliatone/go-dispatch/command"
	"github.com/goliatone/go-dispatch/core"
	"github.com/goliatone/go-dispatch/tasks"
	"github.com/goliatone/go-dispatch/webhooks"
)

// Commands bundles the go-command handlers for every dispatch operation.
type Commands struct {
	Dispatch          *dispatchcommand.DispatchCommand
	SubmitTask        *dispatchcommand.SubmitTaskCommand
	PollTask          *dispatchcommand.PollTaskCommand
	CancelTask        *dispatchcommand.CancelTaskCommand
	ReconcileCallback *dispatchcommand.ReconcileCallbackCommand
}

// Facade wires the three surfaces over one dispatcher: synchronous dispatch,
// the asynchronous task orchestrator, and the webhook reconciler sharing the
// same job store so the terminal compare-and-set holds across both paths.
type Facade struct {
	dispatcher   *core.Dispatcher
	orchestrator *tasks.Orchestrator
	reconciler   *webhooks.Reconciler
	commands     Commands
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	ledger       webhooks.DeliveryLedger
	pollDefaults *core.PollConfig
}

// WithDeliveryLedger swaps the in-memory webhook dedupe ledger for a durable
// one.
func WithDeliveryLedger(ledger webhooks.DeliveryLedger) FacadeOption {
	return func(options *facadeOptions) {
		options.ledger = ledger
	}
}

// WithPollDefaults overrides the orchestrator's poll cadence defaults.
func WithPollDefaults(cfg core.PollConfig) FacadeOption {
	return func(options *facadeOptions) {
		options.pollDefaults = &cfg
	}
}

func NewFacade(dispatcher *core.Dispatcher, opts ...FacadeOption) (*Facade, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatch: dispatcher is required")
	}
	transports := dispatcher.Transports()
	if transports == nil {
		return nil, fmt.Errorf("dispatch: dispatcher has no transport resolver")
	}
	transport, err := transports.Resolve("rest")
	if err != nil {
		return nil, err
	}

	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	orchestrator := tasks.NewOrchestrator(
		dispatcher,
		dispatcher.Registry(),
		dispatcher.Credentials(),
		dispatcher.Jobs(),
		transport,
	)
	orchestrator.Sink = dispatcher.Sink()
	orchestrator.Logger = dispatcher.Logger()
	orchestrator.Defaults = dispatcher.Config().Poll
	if cfg.pollDefaults != nil {
		orchestrator.Defaults = cfg.pollDefaults.Normalize()
	}

	reconciler := webhooks.NewReconciler(dispatcher.Jobs(), dispatcher.Registry())
	reconciler.Sink = dispatcher.Sink()
	reconciler.Logger = dispatcher.Logger()
	if cfg.ledger != nil {
		reconciler.Ledger = cfg.ledger
	}

	facade := &Facade{
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		reconciler:   reconciler,
	}
	facade.commands = Commands{
		Dispatch:          dispatchcommand.NewDispatchCommand(dispatcher),
		SubmitTask:        dispatchcommand.NewSubmitTaskCommand(orchestrator),
		PollTask:          dispatchcommand.NewPollTaskCommand(orchestrator),
		CancelTask:        dispatchcommand.NewCancelTaskCommand(orchestrator),
		ReconcileCallback: dispatchcommand.NewReconcileCallbackCommand(reconciler),
	}
	return facade, nil
}

func (f *Facade) Dispatcher() *core.Dispatcher {
	if f == nil {
		return nil
	}
	return f.dispatcher
}

func (f *Facade) Orchestrator() *tasks.Orchestrator {
	if f == nil {
		return nil
	}
	return f.orchestrator
}

func (f *Facade) Reconciler() *webhooks.Reconciler {
	if f == nil {
		return nil
	}
	return f.reconciler
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}
