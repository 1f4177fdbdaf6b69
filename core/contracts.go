package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// JobProgress is the narrow, non-terminal merge applied by the poll loop and
// the reconciler. Nil/zero fields are left untouched so one path cannot
// clobber fields the other just wrote.
type JobProgress struct {
	State        TaskState
	RemoteID     string
	Attempts     *int
	LastPolledAt *time.Time
	Warnings     []string
	Metadata     map[string]any
}

// JobStore persists Job records. MarkTerminal is the single-writer guard:
// it applies the terminal write iff the job is still non-terminal and
// reports whether this caller won.
type JobStore interface {
	Create(ctx context.Context, job Job) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	FindByCorrelation(ctx context.Context, providerID string, correlationID string) (Job, error)
	UpdateProgress(ctx context.Context, id string, progress JobProgress) (Job, error)
	MarkTerminal(ctx context.Context, id string, state TaskState, result *CanonicalResult, errText string) (Job, bool, error)
}

// SettingsStore is the user-settings collaborator consulted for user-scoped
// provider keys. Implementations signal an absent key with ErrSettingNotFound
// and a malformed lookup with ErrInvalidSettingQuery; both fall through to
// the process default, anything else propagates.
type SettingsStore interface {
	ProviderKey(ctx context.Context, userID string, providerID string) (string, error)
}

// ResultSink receives the canonical result exactly once per job, from
// whichever of the poll loop or the reconciler observed completion first.
type ResultSink interface {
	Publish(ctx context.Context, job Job, result CanonicalResult) error
}

// EnvLookup abstracts os.LookupEnv so default-key resolution is testable.
type EnvLookup func(key string) (string, bool)

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

func (r TransportResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type TransportResolver interface {
	Resolve(kind string) (TransportAdapter, error)
}
