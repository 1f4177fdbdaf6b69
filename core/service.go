package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Dispatcher is the synchronous dispatch surface: it validates and normalizes
// a generic request against the adapter schema, resolves credentials, and
// performs the provider call. Asynchronous submissions are built on the same
// preparation step by the tasks package.
type Dispatcher struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	registry        *AdapterRegistry
	jobs            JobStore
	settings        SettingsStore
	credentials     *CredentialResolver
	transports      TransportResolver
	sink            ResultSink
}

func NewDispatcher(cfg Config, options ...Option) (*Dispatcher, error) {
	builder := defaultDispatcherBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("dispatch", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("dispatch"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewAdapterRegistry()
	}
	if builder.jobs == nil {
		builder.jobs = NewMemoryJobStore()
	}
	if builder.credentials == nil {
		builder.credentials = NewCredentialResolver(builder.settings)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Dispatcher{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		registry:        builder.registry,
		jobs:            builder.jobs,
		settings:        builder.settings,
		credentials:     builder.credentials,
		transports:      builder.transports,
		sink:            builder.sink,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (d *Dispatcher) Config() Config {
	if d == nil {
		return Config{}
	}
	return d.config
}

func (d *Dispatcher) Registry() *AdapterRegistry {
	if d == nil {
		return nil
	}
	return d.registry
}

func (d *Dispatcher) Jobs() JobStore {
	if d == nil {
		return nil
	}
	return d.jobs
}

func (d *Dispatcher) Sink() ResultSink {
	if d == nil {
		return nil
	}
	return d.sink
}

func (d *Dispatcher) Credentials() *CredentialResolver {
	if d == nil {
		return nil
	}
	return d.credentials
}

func (d *Dispatcher) Settings() SettingsStore {
	if d == nil {
		return nil
	}
	return d.settings
}

func (d *Dispatcher) Transports() TransportResolver {
	if d == nil {
		return nil
	}
	return d.transports
}

func (d *Dispatcher) Logger() Logger {
	if d == nil {
		return nil
	}
	return d.logger
}

func (d *Dispatcher) Adapter(providerID string) (AdapterSpec, error) {
	if d == nil || d.registry == nil {
		return AdapterSpec{}, NewConfigurationError("core: dispatcher has no adapter registry")
	}
	spec, ok := d.registry.Get(providerID)
	if !ok {
		return AdapterSpec{}, NewProviderNotFoundError(strings.TrimSpace(providerID))
	}
	return spec, nil
}

func (d *Dispatcher) RegisterAdapter(spec AdapterSpec) error {
	if d == nil || d.registry == nil {
		return NewConfigurationError("core: dispatcher has no adapter registry")
	}
	return d.registry.Register(spec)
}

// DispatchRequest is the generic caller request before normalization.
type DispatchRequest struct {
	ProviderID    string
	UserID        string
	CorrelationID string
	Input         map[string]any
	Metadata      map[string]any
}

type DispatchResult struct {
	ProviderID string
	Result     CanonicalResult
	Raw        map[string]any
}

// PreparedCall is a validated, credentialed provider request ready for the
// wire. The credential stays out of Metadata and is carried only in the
// Authorization header.
type PreparedCall struct {
	Spec          AdapterSpec
	CorrelationID string
	Payload       Payload
	Body          []byte
	Headers       map[string]string
}

// Prepare validates the request against the adapter schema, resolves the
// credential, and renders the outgoing body with the correlation id embedded
// so later callbacks can be matched back.
func (d *Dispatcher) Prepare(ctx context.Context, req DispatchRequest) (PreparedCall, error) {
	if d == nil {
		return PreparedCall{}, NewConfigurationError("core: dispatcher is not configured")
	}
	spec, err := d.Adapter(req.ProviderID)
	if err != nil {
		return PreparedCall{}, err
	}

	payload, err := BuildPayload(spec.Schema, req.Input)
	if err != nil {
		return PreparedCall{}, err
	}

	credential, err := d.credentials.Resolve(ctx, req.UserID, spec)
	if err != nil {
		return PreparedCall{}, err
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	body, err := renderBody(payload, correlationID)
	if err != nil {
		return PreparedCall{}, err
	}

	return PreparedCall{
		Spec:          spec,
		CorrelationID: correlationID,
		Payload:       payload,
		Body:          body,
		Headers: map[string]string{
			"Authorization": "Bearer " + credential.Value,
			"Content-Type":  "application/json",
		},
	}, nil
}

// Dispatch performs a one-shot synchronous provider call. Asynchronous
// adapters are rejected here; they go through task submission instead.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (result DispatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": strings.TrimSpace(req.ProviderID),
		"user_id":     strings.TrimSpace(req.UserID),
	}
	defer func() {
		d.observeOperation(ctx, startedAt, "dispatch", err, fields)
	}()

	prepared, err := d.Prepare(ctx, req)
	if err != nil {
		return DispatchResult{}, err
	}
	if prepared.Spec.Async {
		return DispatchResult{}, NewConfigurationError(
			fmt.Sprintf("core: provider %q is asynchronous, submit a task instead", prepared.Spec.ID),
		)
	}

	transport, err := d.transport()
	if err != nil {
		return DispatchResult{}, err
	}

	response, err := transport.Do(ctx, TransportRequest{
		Method:  http.MethodPost,
		URL:     prepared.Spec.CreateURL(),
		Headers: prepared.Headers,
		Body:    prepared.Body,
		Timeout: d.config.Poll.ReadTimeout(),
	})
	if err != nil {
		return DispatchResult{}, err
	}
	if !response.Success() {
		return DispatchResult{}, NewSubmissionError(prepared.Spec.ID, response.StatusCode, string(response.Body))
	}

	raw := decodeBody(response.Body)
	fields["correlation_id"] = prepared.CorrelationID
	return DispatchResult{
		ProviderID: prepared.Spec.ID,
		Result:     ExtractResult(raw),
		Raw:        raw,
	}, nil
}

func (d *Dispatcher) transport() (TransportAdapter, error) {
	if d == nil || d.transports == nil {
		return nil, NewConfigurationError("core: dispatcher has no transport resolver")
	}
	adapter, err := d.transports.Resolve("rest")
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

func renderBody(payload Payload, correlationID string) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// Splice the correlation id in without disturbing schema field order.
	suffix, err := json.Marshal(correlationID)
	if err != nil {
		return nil, err
	}
	if len(encoded) == 2 { // bare {}
		return []byte(`{"correlation_id":` + string(suffix) + `}`), nil
	}
	out := make([]byte, 0, len(encoded)+len(suffix)+20)
	out = append(out, encoded[:len(encoded)-1]...)
	out = append(out, []byte(`,"correlation_id":`)...)
	out = append(out, suffix...)
	out = append(out, '}')
	return out, nil
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
