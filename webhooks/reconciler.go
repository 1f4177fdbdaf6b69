package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-dispatch/core"
)

// Delivery is one inbound callback. CorrelationID is the webhook sender's
// `id` field, which equals the caller-assigned correlation id embedded in
// the original submission; the sender may not know provider-internal ids.
type Delivery struct {
	ProviderID    string
	CorrelationID string
	Payload       map[string]any
}

// Outcome reports what the reconciler did with a delivery. NotFound is an
// outcome, not an error: webhooks legitimately arrive for jobs the caller no
// longer tracks.
type Outcome struct {
	Matched bool
	Applied bool
	Deduped bool
	JobID   string
	State   core.TaskState
}

// DeliveryLedger dedupes redeliveries before any job read. Claim reports
// whether this delivery was seen first by the calling process; Release frees
// a claim whose apply failed so the provider's redelivery is reprocessed
// instead of swallowed for the rest of the lease.
type DeliveryLedger interface {
	Claim(ctx context.Context, providerID string, deliveryID string, lease time.Duration) (bool, error)
	Release(ctx context.Context, providerID string, deliveryID string) error
}

// DeliveryIDExtractor derives the dedupe key for a delivery.
type DeliveryIDExtractor func(delivery Delivery) string

// AdapterSource resolves the status mapping for the delivering provider.
type AdapterSource interface {
	Get(providerID string) (core.AdapterSpec, bool)
}

// Reconciler merges inbound callbacks into in-flight jobs. It shares the
// job store's compare-and-set terminal guard with the poll loop, so the two
// paths can run concurrently and exactly one performs the terminal write.
type Reconciler struct {
	Jobs       core.JobStore
	Adapters   AdapterSource
	Ledger     DeliveryLedger
	Sink       core.ResultSink
	Logger     core.Logger
	ExtractID  DeliveryIDExtractor
	ClaimLease time.Duration
	Now        func() time.Time
}

func NewReconciler(jobs core.JobStore, adapters AdapterSource) *Reconciler {
	return &Reconciler{
		Jobs:       jobs,
		Adapters:   adapters,
		Ledger:     NewMemoryDeliveryLedger(),
		ExtractID:  DefaultDeliveryIDExtractor,
		ClaimLease: 10 * time.Minute,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// DefaultDeliveryIDExtractor keys redelivery dedupe on the correlation id
// plus the reported status, so a later callback carrying a different status
// is not swallowed as a duplicate of an earlier one.
func DefaultDeliveryIDExtractor(delivery Delivery) string {
	status, _ := delivery.Payload["status"].(string)
	return strings.TrimSpace(delivery.CorrelationID) + ":" + strings.ToLower(strings.TrimSpace(status))
}

func (r *Reconciler) Reconcile(ctx context.Context, delivery Delivery) (Outcome, error) {
	if r == nil || r.Jobs == nil || r.Adapters == nil {
		return Outcome{}, fmt.Errorf("webhooks: reconciler requires job store and adapters")
	}
	providerID := strings.TrimSpace(delivery.ProviderID)
	correlationID := strings.TrimSpace(delivery.CorrelationID)
	if providerID == "" {
		return Outcome{}, fmt.Errorf("webhooks: provider id is required")
	}
	if correlationID == "" {
		return Outcome{}, fmt.Errorf("webhooks: correlation id is required")
	}

	deliveryID := ""
	if r.Ledger != nil {
		extractor := r.ExtractID
		if extractor == nil {
			extractor = DefaultDeliveryIDExtractor
		}
		deliveryID = extractor(delivery)
		claimed, err := r.Ledger.Claim(ctx, providerID, deliveryID, r.claimLease())
		if err != nil {
			return Outcome{}, err
		}
		if !claimed {
			return Outcome{Deduped: true}, nil
		}
	}

	outcome, err := r.apply(ctx, providerID, correlationID, delivery)
	if err != nil && r.Ledger != nil {
		// Failed applies give the claim back so the redelivery is not
		// swallowed as a duplicate for the rest of the lease.
		if releaseErr := r.Ledger.Release(ctx, providerID, deliveryID); releaseErr != nil {
			r.logInfo(ctx, "delivery claim release failed",
				"provider_id", providerID, "delivery_id", deliveryID, "error", releaseErr.Error())
		}
	}
	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, providerID string, correlationID string, delivery Delivery) (Outcome, error) {
	job, err := r.Jobs.FindByCorrelation(ctx, providerID, correlationID)
	if errors.Is(err, core.ErrJobNotFound) {
		// Restarted process or expired record; log and drop.
		r.logInfo(ctx, "webhook matched no job",
			"provider_id", providerID, "correlation_id", correlationID)
		return Outcome{Matched: false}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if job.State.Terminal() {
		// Duplicate or late delivery; the idempotence contract says no-op.
		return Outcome{Matched: true, Applied: false, JobID: job.ID, State: job.State}, nil
	}

	spec, ok := r.Adapters.Get(providerID)
	if !ok {
		return Outcome{}, core.NewProviderNotFoundError(providerID)
	}

	rawStatus, _ := delivery.Payload["status"].(string)
	state, known := spec.Statuses.Map(rawStatus)

	progress := core.JobProgress{
		State:    state,
		Metadata: scalarFields(delivery.Payload),
		Warnings: spec.WarningText(delivery.Payload),
	}
	if !known && strings.TrimSpace(rawStatus) != "" {
		progress.Warnings = append(progress.Warnings, "unrecognized provider status: "+rawStatus)
	}

	if !state.Terminal() {
		updated, updateErr := r.Jobs.UpdateProgress(ctx, job.ID, progress)
		if updateErr != nil {
			return Outcome{}, updateErr
		}
		return Outcome{Matched: true, Applied: true, JobID: updated.ID, State: updated.State}, nil
	}

	var result *core.CanonicalResult
	errText := ""
	if state == core.TaskStateCompleted {
		extracted := core.ExtractResult(delivery.Payload)
		result = &extracted
	} else {
		errText = spec.ErrorText(delivery.Payload)
		if errText == "" {
			errText = strings.TrimSpace(rawStatus)
		}
	}

	updated, applied, err := r.Jobs.MarkTerminal(ctx, job.ID, state, result, errText)
	if err != nil {
		return Outcome{}, err
	}
	if applied && state == core.TaskStateCompleted && r.Sink != nil && result != nil {
		if publishErr := r.Sink.Publish(ctx, updated, *result); publishErr != nil {
			r.logInfo(ctx, "result publish failed", "job_id", updated.ID, "error", publishErr.Error())
		}
	}
	return Outcome{Matched: true, Applied: applied, JobID: updated.ID, State: updated.State}, nil
}

func (r *Reconciler) claimLease() time.Duration {
	if r != nil && r.ClaimLease > 0 {
		return r.ClaimLease
	}
	return 10 * time.Minute
}

func (r *Reconciler) logInfo(ctx context.Context, message string, args ...any) {
	if r == nil || r.Logger == nil {
		return
	}
	logger := r.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info(message, args...)
}

// scalarFields shallow-copies the payload's scalar fields for the metadata
// merge: incoming keys overwrite same-named keys only, previously recorded
// fields survive.
func scalarFields(payload map[string]any) map[string]any {
	out := map[string]any{}
	for key, value := range payload {
		switch value.(type) {
		case string, bool, float64, int, int64:
			out[key] = value
		}
	}
	return out
}
