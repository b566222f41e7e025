package telemetry

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/lifecycle/pkg/component"
)

func newTestTelemetry(t *testing.T) (*Telemetry, *tracetest.SpanRecorder, *bytes.Buffer) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	var logs bytes.Buffer
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	return &Telemetry{
		Logger:  NewLoggerWithWriter(&logs, cfg.Logging),
		Tracer:  NewTracerWithProvider(provider, "test"),
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, recorder, &logs
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "production", mutate: func(c *Config) { *c = *ProductionConfig() }},
		{name: "development", mutate: func(c *Config) { *c = *DevelopmentConfig() }},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{
			name: "bad exporter",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "zipkin"
			},
			wantErr: "invalid trace exporter",
		},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
		{
			name: "async without buffer",
			mutate: func(c *Config) {
				c.Events.EnableAsync = true
				c.Events.BufferSize = 0
			},
			wantErr: "buffer size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsRecorders(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordTransition("init", false, time.Millisecond)
	m.RecordTransition("init", true, time.Millisecond)
	m.RecordTransition("init", false, time.Millisecond)
	m.RecordCallbackFailure("net", "init")
	m.RecordBulkOperation("bring_up_all", false, time.Second)
	m.RecordBulkOutcome("bring_up_all", "skipped")
	m.RecordRegistration()
	m.RecordRegistration()
	m.RecordUnregistration("net")
	m.RecordError("callback_failed", "critical")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"transitions success", testutil.ToFloat64(m.transitions.WithLabelValues("init", "success")), 2},
		{"transitions failure", testutil.ToFloat64(m.transitions.WithLabelValues("init", "failure")), 1},
		{"callback failures", testutil.ToFloat64(m.callbackFailures.WithLabelValues("net", "init")), 1},
		{"bulk operations", testutil.ToFloat64(m.bulkOperations.WithLabelValues("bring_up_all", "success")), 1},
		{"bulk outcomes", testutil.ToFloat64(m.bulkOutcomes.WithLabelValues("bring_up_all", "skipped")), 1},
		{"registered gauge", testutil.ToFloat64(m.componentsRegistered), 1},
		{"unregister ops", testutil.ToFloat64(m.registryOperations.WithLabelValues("unregister")), 1},
		{"errors", testutil.ToFloat64(m.errorsByKind.WithLabelValues("callback_failed", "critical")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMetricsComponentStatus(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	all := statusNames()

	m.SetComponentStatus("net", "initialized", all)
	m.SetComponentStatus("net", "running", all)

	if got := testutil.ToFloat64(m.componentStatus.WithLabelValues("net", "running")); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.componentStatus.WithLabelValues("net", "initialized")); got != 0 {
		t.Errorf("initialized = %v, want 0", got)
	}
	if got := testutil.CollectAndCount(m.componentStatus); got != len(all) {
		t.Errorf("series = %d, want %d", got, len(all))
	}

	m.RecordUnregistration("net")
	if got := testutil.CollectAndCount(m.componentStatus); got != 0 {
		t.Errorf("series after unregister = %d, want 0", got)
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// None of these may panic.
	m.RecordTransition("init", true, time.Second)
	m.RecordCallbackFailure("a", "init")
	m.RecordBulkOperation("start_all", true, time.Second)
	m.RecordBulkOutcome("start_all", "failed")
	m.RecordRegistration()
	m.RecordUnregistration("a")
	m.SetComponentStatus("a", "running", statusNames())
	m.RecordError("not_found", "error")

	if m.Registry() != nil {
		t.Error("Registry() should be nil when disabled")
	}
	if err := m.Serve(context.Background()); err != nil {
		t.Errorf("Serve() error = %v", err)
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}
	defer ep.Shutdown(context.Background())

	var all, failures eventLog
	ep.Subscribe(all.add, nil)
	ep.Subscribe(failures.add, FilterByLevel(EventLevelError))

	if err := ep.PublishBulkStarted("run-1", "bring_up_all"); err != nil {
		t.Fatalf("Publish error = %v", err)
	}
	_ = ep.PublishTransitionFailed("run-1", "drv", "init", "boom")
	_ = ep.PublishComponentSkipped("run-1", "app", "dependency failed")

	want := []string{EventTypeBulkStarted, EventTypeTransitionFailed, EventTypeComponentSkipped}
	if got := all.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := failures.types(); len(got) != 1 || got[0] != EventTypeTransitionFailed {
		t.Errorf("error events = %v", got)
	}

	for _, e := range all.events {
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Errorf("event %s missing id or timestamp", e.Type)
		}
		if e.RunID != "run-1" {
			t.Errorf("event %s run id = %q", e.Type, e.RunID)
		}
	}
}

func TestEventPublisherAsyncDrains(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var log eventLog
	ep.Subscribe(log.add, FilterByComponent("net"))

	for i := 0; i < 5; i++ {
		_ = ep.PublishRegistered("net", "normal", 0)
		_ = ep.PublishRegistered("other", "normal", 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if got := len(log.types()); got != 5 {
		t.Errorf("delivered = %d, want 5", got)
	}
	if err := ep.PublishRegistered("net", "normal", 0); err == nil {
		t.Error("publish after shutdown should fail")
	}
}

func TestEventPublisherGlobalFilter(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: true})
	ep.AddFilter(FilterByRunID("keep"))

	var log eventLog
	ep.Subscribe(log.add, nil)

	_ = ep.PublishBulkStarted("keep", "start_all")
	_ = ep.PublishBulkStarted("drop", "start_all")

	if got := len(log.types()); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}
}

func TestEventPublisherDisabled(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}
	if err := ep.PublishBulkStarted("r", "start_all"); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestObserverRecordsBulkRun(t *testing.T) {
	tel, recorder, _ := newTestTelemetry(t)

	var log eventLog
	tel.Events.Subscribe(log.add, nil)

	reg := component.NewRegistry(component.RegistryConfig{
		Logger:   tel.Logger.Zerolog(),
		Observer: tel.Observer(),
	})
	orch := component.NewOrchestrator(reg, component.OrchestratorConfig{Logger: tel.Logger.Zerolog()})
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(reg.Register(ctx, component.Descriptor{Name: "mem", Priority: component.PriorityCritical}))
	must(reg.Register(ctx, component.Descriptor{
		Name:     "drv",
		Priority: component.PriorityNormal,
		Callbacks: component.Callbacks{
			Init: func(context.Context) error { return component.NewCallbackError(7, "no device") },
		},
	}))
	must(reg.Register(ctx, component.Descriptor{
		Name:         "app",
		Priority:     component.PriorityLow,
		Dependencies: []component.Dependency{component.Requires("drv")},
	}))

	if err := orch.BringUpAll(ctx); !component.IsCallbackFailure(err) {
		t.Fatalf("BringUpAll() error = %v, want callback failure", err)
	}

	spans := recorder.Ended()
	var bulk sdktrace.ReadOnlySpan
	transitions := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range spans {
		switch {
		case s.Name() == "bulk.bring_up_all":
			bulk = s
		case strings.HasPrefix(s.Name(), "component."):
			for _, a := range s.Attributes() {
				if a.Key == AttrComponent {
					transitions[a.Value.AsString()] = s
				}
			}
		}
	}
	if bulk == nil {
		t.Fatalf("no bulk span among %d spans", len(spans))
	}
	if bulk.Status().Code != codes.Error {
		t.Errorf("bulk span status = %v, want error", bulk.Status().Code)
	}
	if len(transitions) != 2 {
		t.Fatalf("transition spans = %d, want 2 (mem, drv)", len(transitions))
	}
	if transitions["drv"].Status().Code != codes.Error {
		t.Error("drv span should be marked as error")
	}
	if transitions["mem"].Parent().SpanID() != bulk.SpanContext().SpanID() {
		t.Error("transition span should be a child of the bulk span")
	}

	m := tel.Metrics
	if got := testutil.ToFloat64(m.callbackFailures.WithLabelValues("drv", "init")); got != 1 {
		t.Errorf("callback failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bulkOutcomes.WithLabelValues("bring_up_all", "skipped")); got != 1 {
		t.Errorf("skipped outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.componentStatus.WithLabelValues("drv", "error")); got != 1 {
		t.Errorf("drv error status = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.componentsRegistered); got != 3 {
		t.Errorf("registered = %v, want 3", got)
	}

	want := map[string]int{
		EventTypeComponentRegistered: 3,
		EventTypeBulkStarted:         1,
		EventTypeStateChanged:        1,
		EventTypeTransitionFailed:    1,
		EventTypeComponentSkipped:    1,
		EventTypeBulkFailed:          1,
	}
	got := make(map[string]int)
	for _, typ := range log.types() {
		got[typ]++
	}
	for typ, n := range want {
		if got[typ] != n {
			t.Errorf("%s events = %d, want %d", typ, got[typ], n)
		}
	}
}

func TestObserverSingleOperation(t *testing.T) {
	tel, recorder, _ := newTestTelemetry(t)
	reg := component.NewRegistry(component.RegistryConfig{Observer: tel.Observer()})
	orch := component.NewOrchestrator(reg, component.OrchestratorConfig{})
	ctx := context.Background()

	if err := reg.Register(ctx, component.Descriptor{Name: "net"}); err != nil {
		t.Fatal(err)
	}
	if err := orch.Init(ctx, "net"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Unregister(ctx, "net"); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	// init, then deinit from the unregister teardown.
	if strings.Join(names, ",") != "component.init,component.deinit" {
		t.Errorf("spans = %v", names)
	}
	if got := testutil.ToFloat64(tel.Metrics.componentsRegistered); got != 0 {
		t.Errorf("registered = %v, want 0", got)
	}
}

func TestStartOperation(t *testing.T) {
	tel, recorder, logs := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	if FromTelemetryContext(ctx) != tel {
		t.Fatal("FromTelemetryContext() did not return the instance")
	}

	op := StartOperation(ctx, "manifest.load")
	op.Logger.Info("loading")
	op.End(nil)

	if spans := recorder.Ended(); len(spans) != 1 || spans[0].Name() != "manifest.load" {
		t.Fatalf("spans = %v", spans)
	}
	if !strings.Contains(logs.String(), `"operation":"manifest.load"`) {
		t.Errorf("log missing operation field: %s", logs.String())
	}

	bare := StartOperation(context.Background(), "noop")
	bare.End(nil)
	if bare.Span != nil {
		t.Error("span should be nil without telemetry in context")
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LoggingConfig{Level: "info", Format: "json"})

	logger.NewComponentLogger("registry").WithComponentName("net").WithRunID("r1").Info("hello")
	logger.Debug("hidden")

	out := buf.String()
	for _, want := range []string{`"module":"registry"`, `"component":"net"`, `"run_id":"r1"`, `"message":"hello"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
}
