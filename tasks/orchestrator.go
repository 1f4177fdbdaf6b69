package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-dispatch/core"
)

// Preparer validates and credentials a generic request; *core.Dispatcher is
// the production implementation.
type Preparer interface {
	Prepare(ctx context.Context, req core.DispatchRequest) (core.PreparedCall, error)
}

// AdapterSource resolves registered adapter specs by provider id.
type AdapterSource interface {
	Get(providerID string) (core.AdapterSpec, bool)
}

// CredentialSource resolves the credential used for status/result reads.
type CredentialSource interface {
	Resolve(ctx context.Context, userID string, spec core.AdapterSpec) (core.Credential, error)
}

// SleepFunc suspends between poll attempts; injectable so attempt budgets
// and cancellation are testable without real time passing.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Orchestrator drives remote units of work: submission, the bounded poll
// loop, and caller-initiated cancellation. Each Poll call is an independent
// cancellable unit of work; there is no global lock across jobs.
type Orchestrator struct {
	Preparer    Preparer
	Adapters    AdapterSource
	Credentials CredentialSource
	Jobs        core.JobStore
	Transport   core.TransportAdapter
	Sink        core.ResultSink
	Logger      core.Logger
	Defaults    core.PollConfig
	Sleep       SleepFunc
	Now         func() time.Time
}

func NewOrchestrator(
	preparer Preparer,
	adapters AdapterSource,
	credentials CredentialSource,
	jobs core.JobStore,
	transport core.TransportAdapter,
) *Orchestrator {
	return &Orchestrator{
		Preparer:    preparer,
		Adapters:    adapters,
		Credentials: credentials,
		Jobs:        jobs,
		Transport:   transport,
		Sleep:       sleepWithContext,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SubmitRequest mirrors the dispatch request; the correlation id, when blank,
// is assigned during preparation and embedded in the outgoing body.
type SubmitRequest struct {
	ProviderID    string
	UserID        string
	CorrelationID string
	Input         map[string]any
	Metadata      map[string]any
}

// Submit issues the provider's create call and records a Pending job. A
// non-2xx response carries the provider's raw error body verbatim and leaves
// nothing behind to poll.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (core.Job, error) {
	if o == nil || o.Preparer == nil || o.Jobs == nil || o.Transport == nil {
		return core.Job{}, fmt.Errorf("tasks: orchestrator requires preparer, job store, and transport")
	}

	prepared, err := o.Preparer.Prepare(ctx, core.DispatchRequest{
		ProviderID:    req.ProviderID,
		UserID:        req.UserID,
		CorrelationID: req.CorrelationID,
		Input:         req.Input,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return core.Job{}, err
	}
	if !prepared.Spec.Async {
		return core.Job{}, core.NewConfigurationError(
			fmt.Sprintf("tasks: provider %q is synchronous, use dispatch instead", prepared.Spec.ID),
		)
	}

	// Duplicate correlations fail before the remote create, not after: a
	// rejection at record time would orphan a running remote job. The store's
	// create guard still closes the race between the check and the insert.
	if existing, findErr := o.Jobs.FindByCorrelation(ctx, prepared.Spec.ID, prepared.CorrelationID); findErr == nil {
		if !existing.State.Terminal() {
			return core.Job{}, fmt.Errorf("%w: %s", core.ErrCorrelationInFlight, prepared.CorrelationID)
		}
	} else if !errors.Is(findErr, core.ErrJobNotFound) {
		return core.Job{}, findErr
	}

	response, err := o.Transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     prepared.Spec.CreateURL(),
		Headers: prepared.Headers,
		Body:    prepared.Body,
		Timeout: o.Defaults.ReadTimeout(),
	})
	if err != nil {
		return core.Job{}, err
	}
	if !response.Success() {
		return core.Job{}, core.NewSubmissionError(prepared.Spec.ID, response.StatusCode, string(response.Body))
	}

	raw := decodeBody(response.Body)
	remoteID := prepared.Spec.RemoteID(raw)
	if remoteID == "" {
		return core.Job{}, core.NewSubmissionError(
			prepared.Spec.ID,
			response.StatusCode,
			"create response carries no job identifier: "+string(response.Body),
		)
	}

	job, err := o.Jobs.Create(ctx, core.Job{
		ProviderID:    prepared.Spec.ID,
		RemoteID:      remoteID,
		CorrelationID: prepared.CorrelationID,
		UserID:        strings.TrimSpace(req.UserID),
		State:         core.TaskStatePending,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return core.Job{}, err
	}
	o.logInfo(ctx, "task submitted",
		"provider_id", job.ProviderID,
		"job_id", job.ID,
		"remote_id", job.RemoteID,
		"correlation_id", job.CorrelationID,
	)
	return job, nil
}

// Poll drives the bounded status loop for one job until a terminal state,
// the attempt budget, or context cancellation. It is safe to run
// concurrently with a webhook reconcile for the same job: the terminal write
// is a store-level compare-and-set, and the loser observes the winner's
// outcome instead of writing.
func (o *Orchestrator) Poll(ctx context.Context, jobID string, options core.PollConfig) (core.CanonicalResult, error) {
	if o == nil || o.Jobs == nil || o.Transport == nil || o.Adapters == nil {
		return core.CanonicalResult{}, fmt.Errorf("tasks: orchestrator requires job store, transport, and adapters")
	}

	job, err := o.Jobs.Get(ctx, jobID)
	if err != nil {
		return core.CanonicalResult{}, err
	}
	if terminal, result, terminalErr := resolveTerminal(job); terminal {
		return result, terminalErr
	}

	spec, ok := o.Adapters.Get(job.ProviderID)
	if !ok {
		return core.CanonicalResult{}, core.NewProviderNotFoundError(job.ProviderID)
	}
	headers, err := o.readHeaders(ctx, job, spec)
	if err != nil {
		return core.CanonicalResult{}, err
	}

	opts := mergePollConfig(o.Defaults, options).Normalize()
	attempts := 0
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Caller abandoned the poll; the job stays in its last observed
			// non-terminal state and this is not a timeout outcome.
			return core.CanonicalResult{}, ctxErr
		}
		attempts = attempt

		outcome, result, loopErr := o.pollOnce(ctx, &job, spec, headers, opts, attempt)
		switch outcome {
		case pollOutcomeDone:
			return result, nil
		case pollOutcomeTerminalError:
			return core.CanonicalResult{}, loopErr
		case pollOutcomeFatal:
			return core.CanonicalResult{}, loopErr
		}

		if attempt < opts.MaxAttempts {
			if sleepErr := o.sleep(ctx, opts.Interval()); sleepErr != nil {
				return core.CanonicalResult{}, sleepErr
			}
		}
	}
	return core.CanonicalResult{}, core.NewTimeoutError(spec.ID, attempts)
}

type pollOutcome int

const (
	pollOutcomeRetry pollOutcome = iota
	pollOutcomeDone
	pollOutcomeTerminalError
	pollOutcomeFatal
)

func (o *Orchestrator) pollOnce(
	ctx context.Context,
	job *core.Job,
	spec core.AdapterSpec,
	headers map[string]string,
	opts core.PollConfig,
	attempt int,
) (pollOutcome, core.CanonicalResult, error) {
	now := o.now()
	response, err := o.Transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     spec.StatusURL(job.RemoteID),
		Headers: headers,
		Timeout: opts.ReadTimeout(),
	})
	if err != nil {
		// Transport faults are retryable within the attempt budget, not
		// terminal: a connection reset says nothing about the remote job.
		o.recordProgress(ctx, job, core.JobProgress{
			Attempts:     &attempt,
			LastPolledAt: &now,
			Warnings:     []string{"status read failed: " + err.Error()},
		})
		return pollOutcomeRetry, core.CanonicalResult{}, nil
	}
	if !response.Success() {
		o.recordProgress(ctx, job, core.JobProgress{
			Attempts:     &attempt,
			LastPolledAt: &now,
			Warnings:     []string{"status read returned " + strconv.Itoa(response.StatusCode)},
		})
		return pollOutcomeRetry, core.CanonicalResult{}, nil
	}

	raw := decodeBody(response.Body)
	rawStatus, _ := raw["status"].(string)
	state, known := spec.Statuses.Map(rawStatus)

	progress := core.JobProgress{
		State:        state,
		Attempts:     &attempt,
		LastPolledAt: &now,
		Warnings:     spec.WarningText(raw),
	}
	if !known && strings.TrimSpace(rawStatus) != "" {
		progress.Warnings = append(progress.Warnings, "unrecognized provider status: "+rawStatus)
	}

	switch {
	case state == core.TaskStateFailed || state == core.TaskStateCancelled:
		errText := spec.ErrorText(raw)
		if errText == "" {
			errText = strings.TrimSpace(rawStatus)
		}
		updated, applied, markErr := o.Jobs.MarkTerminal(ctx, job.ID, state, nil, errText)
		if markErr != nil {
			return pollOutcomeFatal, core.CanonicalResult{}, markErr
		}
		*job = updated
		if !applied {
			if terminal, result, terminalErr := resolveTerminal(updated); terminal {
				if terminalErr != nil {
					return pollOutcomeTerminalError, core.CanonicalResult{}, terminalErr
				}
				return pollOutcomeDone, result, nil
			}
		}
		o.logInfo(ctx, "task failed",
			"provider_id", spec.ID, "job_id", job.ID, "state", string(state), "attempt", attempt)
		return pollOutcomeTerminalError, core.CanonicalResult{}, core.NewTerminalError(spec.ID, state, errText)

	case state == core.TaskStateCompleted:
		result, fetched := o.fetchResult(ctx, job, spec, headers, opts)
		if !fetched {
			// The result endpoint lags the status endpoint. Record the raw
			// run as a progress snapshot and let the next attempt retry.
			progress.State = core.TaskStateRunning
			progress.Metadata = map[string]any{"last_status": rawStatus}
			o.recordProgress(ctx, job, progress)
			return pollOutcomeRetry, core.CanonicalResult{}, nil
		}
		updated, applied, markErr := o.Jobs.MarkTerminal(ctx, job.ID, core.TaskStateCompleted, &result, "")
		if markErr != nil {
			return pollOutcomeFatal, core.CanonicalResult{}, markErr
		}
		*job = updated
		if !applied {
			if terminal, winner, terminalErr := resolveTerminal(updated); terminal {
				if terminalErr != nil {
					return pollOutcomeTerminalError, core.CanonicalResult{}, terminalErr
				}
				return pollOutcomeDone, winner, nil
			}
		}
		o.publish(ctx, updated, result, applied)
		return pollOutcomeDone, result, nil

	default:
		o.recordProgress(ctx, job, progress)
		return pollOutcomeRetry, core.CanonicalResult{}, nil
	}
}

// fetchResult reads the provider result endpoint. A missing or empty body on
// a completed status is a benign race, reported as not-fetched.
func (o *Orchestrator) fetchResult(
	ctx context.Context,
	job *core.Job,
	spec core.AdapterSpec,
	headers map[string]string,
	opts core.PollConfig,
) (core.CanonicalResult, bool) {
	response, err := o.Transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     spec.ResultURL(job.RemoteID),
		Headers: headers,
		Query:   map[string]string{"timeout": strconv.Itoa(opts.TimeoutSeconds)},
		Timeout: opts.ReadTimeout(),
	})
	if err != nil || !response.Success() || len(response.Body) == 0 {
		return core.CanonicalResult{}, false
	}
	raw := decodeBody(response.Body)
	if len(raw) == 0 {
		return core.CanonicalResult{}, false
	}
	return core.ExtractResult(raw), true
}

// Cancel is the caller-initiated abandon of the remote work item. It is a
// terminal write through the same compare-and-set as poll and reconcile.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string, reason string) (core.Job, error) {
	if o == nil || o.Jobs == nil {
		return core.Job{}, fmt.Errorf("tasks: orchestrator requires a job store")
	}
	job, applied, err := o.Jobs.MarkTerminal(ctx, jobID, core.TaskStateCancelled, nil, strings.TrimSpace(reason))
	if err != nil {
		return core.Job{}, err
	}
	if !applied {
		return job, fmt.Errorf("%w: %s", core.ErrJobTerminal, job.State)
	}
	return job, nil
}

func (o *Orchestrator) readHeaders(ctx context.Context, job core.Job, spec core.AdapterSpec) (map[string]string, error) {
	if o.Credentials == nil {
		return map[string]string{}, nil
	}
	credential, err := o.Credentials.Resolve(ctx, job.UserID, spec)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + credential.Value}, nil
}

func (o *Orchestrator) recordProgress(ctx context.Context, job *core.Job, progress core.JobProgress) {
	if o == nil || o.Jobs == nil || job == nil {
		return
	}
	updated, err := o.Jobs.UpdateProgress(ctx, job.ID, progress)
	if err != nil {
		o.logInfo(ctx, "progress update failed", "job_id", job.ID, "error", err.Error())
		return
	}
	*job = updated
}

func (o *Orchestrator) publish(ctx context.Context, job core.Job, result core.CanonicalResult, applied bool) {
	// Only the winner of the terminal write publishes; the loser's result is
	// already flowing through the other path.
	if !applied || o == nil || o.Sink == nil {
		return
	}
	if err := o.Sink.Publish(ctx, job, result); err != nil {
		o.logInfo(ctx, "result publish failed", "job_id", job.ID, "error", err.Error())
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	sleep := o.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}
	return sleep(ctx, d)
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) logInfo(ctx context.Context, message string, args ...any) {
	if o == nil || o.Logger == nil {
		return
	}
	logger := o.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info(message, args...)
}

func resolveTerminal(job core.Job) (bool, core.CanonicalResult, error) {
	if !job.State.Terminal() {
		return false, core.CanonicalResult{}, nil
	}
	if job.State == core.TaskStateCompleted {
		if job.Result != nil {
			return true, job.Result.Clone(), nil
		}
		return true, core.CanonicalResult{}, nil
	}
	return true, core.CanonicalResult{}, core.NewTerminalError(job.ProviderID, job.State, job.Error)
}

func mergePollConfig(defaults core.PollConfig, overrides core.PollConfig) core.PollConfig {
	out := defaults
	if overrides.IntervalMS > 0 {
		out.IntervalMS = overrides.IntervalMS
	}
	if overrides.MaxAttempts > 0 {
		out.MaxAttempts = overrides.MaxAttempts
	}
	if overrides.TimeoutSeconds > 0 {
		out.TimeoutSeconds = overrides.TimeoutSeconds
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func decodeBody(body []byte) map[string]any {
	raw := map[string]any{}
	if len(body) == 0 {
		return raw
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return map[string]any{}
	}
	return raw
}
