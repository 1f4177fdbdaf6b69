package dispatch

import "github.com/goliatone/go-dispatch/core"

type Config = core.Config

type PollConfig = core.PollConfig

type Option = core.Option

type Dispatcher = core.Dispatcher

type AdapterSpec = core.AdapterSpec
type FieldDef = core.FieldDef
type StatusMapping = core.StatusMapping

type Job = core.Job
type TaskState = core.TaskState
type CanonicalResult = core.CanonicalResult

type DispatchRequest = core.DispatchRequest
type DispatchResult = core.DispatchResult

type JobStore = core.JobStore
type SettingsStore = core.SettingsStore
type ResultSink = core.ResultSink

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithRegistry           = core.WithRegistry
	WithJobStore           = core.WithJobStore
	WithSettingsStore      = core.WithSettingsStore
	WithCredentialResolver = core.WithCredentialResolver
	WithTransportResolver  = core.WithTransportResolver
	WithResultSink         = core.WithResultSink
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewDispatcher(cfg Config, opts ...Option) (*Dispatcher, error) {
	return core.NewDispatcher(cfg, opts...)
}
