package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-dispatch/core"
	"github.com/goliatone/go-dispatch/providers/devkit"
	"go.uber.org/goleak"
)

type stubPreparer struct {
	spec core.AdapterSpec
	err  error
}

func (p stubPreparer) Prepare(_ context.Context, req core.DispatchRequest) (core.PreparedCall, error) {
	if p.err != nil {
		return core.PreparedCall{}, p.err
	}
	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = "corr-generated"
	}
	return core.PreparedCall{
		Spec:          p.spec,
		CorrelationID: correlationID,
		Body:          []byte(`{"prompt":"a lighthouse","correlation_id":"` + correlationID + `"}`),
		Headers:       map[string]string{"Authorization": "Bearer env-key"},
	}, nil
}

type mapAdapterSource map[string]core.AdapterSpec

func (m mapAdapterSource) Get(providerID string) (core.AdapterSpec, bool) {
	spec, ok := m[providerID]
	return spec, ok
}

type recordingSink struct {
	mu        sync.Mutex
	published []core.CanonicalResult
}

func (s *recordingSink) Publish(_ context.Context, _ core.Job, result core.CanonicalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, result)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func asyncImageSpec(t *testing.T) core.AdapterSpec {
	t.Helper()
	statuses, err := core.NewStatusMapping(map[string]core.TaskState{
		"queued":     core.TaskStatePending,
		"processing": core.TaskStateRunning,
		"succeeded":  core.TaskStateCompleted,
		"failed":     core.TaskStateFailed,
		"canceled":   core.TaskStateCancelled,
	})
	if err != nil {
		t.Fatalf("status mapping: %v", err)
	}
	return core.AdapterSpec{
		ID:               "replicate",
		BaseURL:          "https://api.replicate.example.com/v1",
		CredentialEnvVar: "REPLICATE_API_TOKEN",
		Async:            true,
		Statuses:         statuses,
	}
}

func newTestOrchestrator(t *testing.T, transport core.TransportAdapter) (*Orchestrator, *core.MemoryJobStore, *recordingSink) {
	t.Helper()
	spec := asyncImageSpec(t)
	store := core.NewMemoryJobStore()
	sink := &recordingSink{}

	orchestrator := NewOrchestrator(
		stubPreparer{spec: spec},
		mapAdapterSource{spec.ID: spec},
		nil,
		store,
		transport,
	)
	orchestrator.Sink = sink
	orchestrator.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return orchestrator, store, sink
}

func submitTestJob(t *testing.T, orchestrator *Orchestrator) core.Job {
	t.Helper()
	job, err := orchestrator.Submit(context.Background(), SubmitRequest{
		ProviderID:    "replicate",
		CorrelationID: "corr-1",
		Input:         map[string]any{"prompt": "a lighthouse"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return job
}

func jsonResponse(status int, body string) devkit.TransportScript {
	return devkit.TransportScript{Response: core.TransportResponse{
		StatusCode: status,
		Body:       []byte(body),
	}}
}

func TestOrchestratorSubmit_CreatesPendingJob(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)

	job := submitTestJob(t, orchestrator)
	if job.State != core.TaskStatePending {
		t.Fatalf("expected pending job, got %s", job.State)
	}
	if job.RemoteID != "run_1" {
		t.Fatalf("expected remote id run_1, got %q", job.RemoteID)
	}
	if job.CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id preserved, got %q", job.CorrelationID)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get stored job: %v", err)
	}
	if stored.ProviderID != "replicate" {
		t.Fatalf("expected provider recorded, got %q", stored.ProviderID)
	}

	requests := transport.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected one create call, got %d", len(requests))
	}
	if requests[0].URL != "https://api.replicate.example.com/v1/tasks" {
		t.Fatalf("unexpected create url %s", requests[0].URL)
	}
	if !strings.Contains(string(requests[0].Body), `"correlation_id":"corr-1"`) {
		t.Fatalf("expected correlation id in body, got %s", requests[0].Body)
	}
}

func TestOrchestratorSubmit_DuplicateCorrelationSkipsRemoteCreate(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(201, `{"id":"run_2","status":"queued"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)

	first := submitTestJob(t, orchestrator)

	// The duplicate must be rejected before the provider call; otherwise the
	// remote side runs a job no local record will ever track.
	_, err := orchestrator.Submit(context.Background(), SubmitRequest{
		ProviderID:    "replicate",
		CorrelationID: "corr-1",
		Input:         map[string]any{"prompt": "a lighthouse"},
	})
	if !errors.Is(err, core.ErrCorrelationInFlight) {
		t.Fatalf("expected in-flight correlation rejection, got %v", err)
	}
	if requests := transport.Requests(); len(requests) != 1 {
		t.Fatalf("expected no second create call, got %d requests", len(requests))
	}

	// Once the first job is terminal the correlation is reusable.
	if _, _, err := store.MarkTerminal(context.Background(), first.ID, core.TaskStateCompleted, nil, ""); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}
	second := submitTestJob(t, orchestrator)
	if second.RemoteID != "run_2" {
		t.Fatalf("expected fresh remote job, got %q", second.RemoteID)
	}
}

func TestOrchestratorSubmit_RejectionCarriesProviderBody(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(402, `{"error":"billing hard limit reached"}`),
	)
	orchestrator, _, _ := newTestOrchestrator(t, transport)

	_, err := orchestrator.Submit(context.Background(), SubmitRequest{ProviderID: "replicate"})
	if !core.IsSubmissionError(err) {
		t.Fatalf("expected submission error, got %v", err)
	}
	if !strings.Contains(core.ProviderErrorText(err), "billing hard limit reached") {
		t.Fatalf("expected verbatim provider body, got %q", core.ProviderErrorText(err))
	}
}

func TestOrchestratorSubmit_MissingRemoteID(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(200, `{"status":"queued"}`),
	)
	orchestrator, _, _ := newTestOrchestrator(t, transport)

	_, err := orchestrator.Submit(context.Background(), SubmitRequest{ProviderID: "replicate"})
	if !core.IsSubmissionError(err) {
		t.Fatalf("expected submission error for missing job id, got %v", err)
	}
}

func TestOrchestratorSubmit_RejectsSynchronousSpec(t *testing.T) {
	spec := asyncImageSpec(t)
	spec.Async = false
	spec.Statuses = core.StatusMapping{}
	orchestrator, _, _ := newTestOrchestrator(t, devkit.NewFakeTransportAdapter("rest"))
	orchestrator.Preparer = stubPreparer{spec: spec}

	_, err := orchestrator.Submit(context.Background(), SubmitRequest{ProviderID: "replicate"})
	if !core.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOrchestratorPoll_CompletesAndPublishesOnce(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"processing"}`),
		jsonResponse(200, `{"status":"succeeded"}`),
		jsonResponse(200, `{"output":["https://cdn.example.com/out.png"]}`),
	)
	orchestrator, store, sink := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	result, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 5})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.URL != "https://cdn.example.com/out.png" {
		t.Fatalf("expected extracted result url, got %q", result.URL)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != core.TaskStateCompleted {
		t.Fatalf("expected completed job, got %s", stored.State)
	}
	if stored.Result == nil || stored.Result.URL != result.URL {
		t.Fatalf("expected stored result, got %+v", stored.Result)
	}
	// The completing attempt writes through MarkTerminal, so the recorded
	// counter carries only the retried attempts.
	if stored.Attempts != 1 {
		t.Fatalf("expected retried attempt recorded, got %d", stored.Attempts)
	}
	if sink.count() != 1 {
		t.Fatalf("expected exactly one publish, got %d", sink.count())
	}

	requests := transport.Requests()
	if got := requests[2].URL; got != "https://api.replicate.example.com/v1/tasks/run_1" {
		t.Fatalf("unexpected status url %s", got)
	}
	if got := requests[3].URL; got != "https://api.replicate.example.com/v1/tasks/run_1/result" {
		t.Fatalf("unexpected result url %s", got)
	}
	if got := requests[3].Query["timeout"]; got != "5" {
		t.Fatalf("expected default read timeout in result query, got %q", got)
	}
}

func TestOrchestratorPoll_FailedStatusSurfacesProviderText(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"failed","error":"NSFW content detected in output"}`),
	)
	orchestrator, store, sink := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	_, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 5})
	if !core.IsTerminalError(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if got := core.ProviderErrorText(err); got != "NSFW content detected in output" {
		t.Fatalf("expected verbatim provider text, got %q", got)
	}

	stored, _ := store.Get(context.Background(), job.ID)
	if stored.State != core.TaskStateFailed {
		t.Fatalf("expected failed job, got %s", stored.State)
	}
	if stored.Error != "NSFW content detected in output" {
		t.Fatalf("expected provider error stored, got %q", stored.Error)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no publish on failure, got %d", sink.count())
	}
}

func TestOrchestratorPoll_ExhaustsAttemptBudget(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"processing"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	sleeps := 0
	orchestrator.Sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 2})
	if !core.IsTimeoutError(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if sleeps != 1 {
		t.Fatalf("expected one inter-attempt sleep, got %d", sleeps)
	}

	// The remote job may still be alive; the local record stays non-terminal.
	stored, _ := store.Get(context.Background(), job.ID)
	if stored.State.Terminal() {
		t.Fatalf("expected non-terminal job after exhaustion, got %s", stored.State)
	}
	if stored.Attempts != 2 {
		t.Fatalf("expected attempts recorded, got %d", stored.Attempts)
	}
}

func TestOrchestratorPoll_SingleAttemptBudget(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"processing"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	sleeps := 0
	orchestrator.Sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 1})
	if !core.IsTimeoutError(err) {
		t.Fatalf("expected timeout after single attempt, got %v", err)
	}
	if sleeps != 0 {
		t.Fatalf("expected no sleep with a single attempt, got %d", sleeps)
	}

	stored, _ := store.Get(context.Background(), job.ID)
	if stored.Attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", stored.Attempts)
	}
}

func TestOrchestratorPoll_EmptyResultBodyRetries(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"succeeded"}`),
		jsonResponse(200, ``),
		jsonResponse(200, `{"status":"succeeded"}`),
		jsonResponse(200, `{"url":"https://cdn.example.com/late.png"}`),
	)
	orchestrator, _, _ := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	result, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.URL != "https://cdn.example.com/late.png" {
		t.Fatalf("expected result after retry, got %q", result.URL)
	}
}

func TestOrchestratorPoll_TransportFaultsAreRetryable(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		devkit.TransportScript{Err: errors.New("connection reset by peer")},
		jsonResponse(200, `{"status":"succeeded"}`),
		jsonResponse(200, `{"url":"https://cdn.example.com/out.png"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	result, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.URL == "" {
		t.Fatalf("expected result despite transport fault")
	}

	stored, _ := store.Get(context.Background(), job.ID)
	found := false
	for _, warning := range stored.Warnings {
		if strings.Contains(warning, "status read failed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected transport fault warning, got %v", stored.Warnings)
	}
}

func TestOrchestratorPoll_UnknownStatusKeepsPolling(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"warming_up"}`),
		jsonResponse(200, `{"status":"succeeded"}`),
		jsonResponse(200, `{"url":"https://cdn.example.com/out.png"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	if _, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 3}); err != nil {
		t.Fatalf("poll: %v", err)
	}

	stored, _ := store.Get(context.Background(), job.ID)
	found := false
	for _, warning := range stored.Warnings {
		if strings.Contains(warning, "warming_up") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unrecognized status warning, got %v", stored.Warnings)
	}
}

func TestOrchestratorPoll_TerminalJobShortCircuits(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	result := core.CanonicalResult{URL: "https://cdn.example.com/done.png"}
	if _, _, err := store.MarkTerminal(context.Background(), job.ID, core.TaskStateCompleted, &result, ""); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	got, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{})
	if err != nil {
		t.Fatalf("poll on completed job: %v", err)
	}
	if got.URL != result.URL {
		t.Fatalf("expected stored result, got %q", got.URL)
	}
	if len(transport.Requests()) != 1 {
		t.Fatalf("expected no status calls for terminal job, got %d", len(transport.Requests()))
	}
}

func TestOrchestratorPoll_CancellationIsNotTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"processing"}`),
	)
	orchestrator, _, _ := newTestOrchestrator(t, transport)
	orchestrator.Sleep = nil // use the real context-aware sleep
	job := submitTestJob(t, orchestrator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := orchestrator.Poll(ctx, job.ID, core.PollConfig{IntervalMS: 60000, MaxAttempts: 100})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
		if core.IsTimeoutError(err) {
			t.Fatalf("cancellation must not be a timeout outcome")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("poll did not return after cancellation")
	}
}

// loserStore makes every terminal write lose to a pre-staged winner, the way
// a webhook reconcile landing first would.
type loserStore struct {
	*core.MemoryJobStore
	winnerState  core.TaskState
	winnerResult *core.CanonicalResult
	winnerError  string
}

func (s *loserStore) MarkTerminal(
	ctx context.Context,
	id string,
	state core.TaskState,
	result *core.CanonicalResult,
	errText string,
) (core.Job, bool, error) {
	if _, _, err := s.MemoryJobStore.MarkTerminal(ctx, id, s.winnerState, s.winnerResult, s.winnerError); err != nil {
		return core.Job{}, false, err
	}
	return s.MemoryJobStore.MarkTerminal(ctx, id, state, result, errText)
}

func TestOrchestratorPoll_LoserAdoptsWinnerOutcome(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
		jsonResponse(200, `{"status":"succeeded"}`),
		jsonResponse(200, `{"url":"https://cdn.example.com/poller.png"}`),
	)
	orchestrator, store, sink := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	winner := &core.CanonicalResult{URL: "https://cdn.example.com/webhook.png"}
	orchestrator.Jobs = &loserStore{
		MemoryJobStore: store,
		winnerState:    core.TaskStateCompleted,
		winnerResult:   winner,
	}

	result, err := orchestrator.Poll(context.Background(), job.ID, core.PollConfig{IntervalMS: 500, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.URL != winner.URL {
		t.Fatalf("expected winner's result adopted, got %q", result.URL)
	}
	if sink.count() != 0 {
		t.Fatalf("expected loser not to publish, got %d publishes", sink.count())
	}
}

func TestOrchestratorCancel(t *testing.T) {
	transport := devkit.NewFakeTransportAdapter("rest",
		jsonResponse(201, `{"id":"run_1","status":"queued"}`),
	)
	orchestrator, store, _ := newTestOrchestrator(t, transport)
	job := submitTestJob(t, orchestrator)

	cancelled, err := orchestrator.Cancel(context.Background(), job.ID, "user clicked stop")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != core.TaskStateCancelled {
		t.Fatalf("expected cancelled state, got %s", cancelled.State)
	}
	if cancelled.Error != "user clicked stop" {
		t.Fatalf("expected reason recorded, got %q", cancelled.Error)
	}

	if _, err := orchestrator.Cancel(context.Background(), job.ID, "again"); !errors.Is(err, core.ErrJobTerminal) {
		t.Fatalf("expected terminal rejection on second cancel, got %v", err)
	}

	stored, _ := store.Get(context.Background(), job.ID)
	if stored.State != core.TaskStateCancelled {
		t.Fatalf("expected stored cancelled state, got %s", stored.State)
	}
}
