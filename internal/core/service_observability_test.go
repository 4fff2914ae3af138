package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *capturingAudit) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *capturingAudit) last() AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[len(c.entries)-1]
}

type observation struct {
	op       string
	success  bool
	duration time.Duration
}

type capturingMetrics struct {
	mu  sync.Mutex
	obs []observation
}

func (c *capturingMetrics) Observe(_ context.Context, op string, success bool, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, observation{op: op, success: success, duration: d})
}

type capturingTracer struct {
	mu    sync.Mutex
	ended map[string][]error
}

type capturingSpan struct {
	tracer *capturingTracer
	op     string
}

func (c *capturingTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, capturingSpan{tracer: c, op: op}
}

func (s capturingSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	if s.tracer.ended == nil {
		s.tracer.ended = map[string][]error{}
	}
	s.tracer.ended[s.op] = append(s.tracer.ended[s.op], err)
}

type levelLogger struct {
	mu     sync.Mutex
	levels map[string]int
}

func (l *levelLogger) log(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.levels == nil {
		l.levels = map[string]int{}
	}
	l.levels[level]++
}

func (l *levelLogger) Debug(string, ...any) { l.log("debug") }
func (l *levelLogger) Info(string, ...any)  { l.log("info") }
func (l *levelLogger) Warn(string, ...any)  { l.log("warn") }
func (l *levelLogger) Error(string, ...any) { l.log("error") }

// steppingClock advances by step on every reading.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func TestServiceReportsObservability(t *testing.T) {
	audit := &capturingAudit{}
	metrics := &capturingMetrics{}
	tracer := &capturingTracer{}
	logger := &levelLogger{}
	clock := &steppingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step: 5 * time.Millisecond}
	svc := loadedService(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
		WithClock(clock),
	)
	ctx := context.Background()

	if _, _, err := svc.CreateProduct(ctx, Product{CategoryID: 3, Label: "Cake"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	entry := audit.last()
	if entry.Operation != "create_product" || entry.Entity != EntityProduct || entry.Action != ActionCreate {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.Status != AuditStatusSuccess || entry.EntityID != 13 || entry.Duration != 5*time.Millisecond {
		t.Fatalf("unexpected audit outcome %+v", entry)
	}

	if _, err := svc.DeleteCategory(ctx, 404); err == nil {
		t.Fatalf("expected delete failure")
	}
	entry = audit.last()
	if entry.Status != AuditStatusError || entry.EntityID != 404 || entry.Error == "" {
		t.Fatalf("unexpected error audit %+v", entry)
	}

	metrics.mu.Lock()
	last := metrics.obs[len(metrics.obs)-1]
	metrics.mu.Unlock()
	if last.op != "delete_category" || last.success {
		t.Fatalf("unexpected metric %+v", last)
	}
	tracer.mu.Lock()
	ended := tracer.ended["delete_category"]
	tracer.mu.Unlock()
	if len(ended) != 1 || ended[0] == nil {
		t.Fatalf("expected failed span, got %v", ended)
	}

	// Orphaning Drinks' children produces warn-level rule violations.
	if _, err := svc.DeleteCategory(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.levels["error"] != 1 || logger.levels["warn"] == 0 || logger.levels["debug"] == 0 {
		t.Fatalf("unexpected log levels %v", logger.levels)
	}
}

func TestAuditIgnoresUnknownOperations(t *testing.T) {
	audit := &capturingAudit{}
	svc := NewInMemoryService(nil, WithAuditRecorder(audit))
	t.Cleanup(svc.Close)
	svc.recordAuditSuccess(context.Background(), "not_an_operation", 1, time.Second)
	svc.recordAuditError(context.Background(), "also_unknown", 1, time.Second, errors.New("x"))
	if len(audit.entries) != 0 {
		t.Fatalf("expected no entries, got %+v", audit.entries)
	}
}

func TestOperationCatalogCoversCommands(t *testing.T) {
	for _, op := range []string{
		"load_menu", "create_category", "move_category", "delete_categories",
		"toggle_select_product", "toggle_like_product", "upload_pictogram",
		"reconcile_products", "restore_category_order",
	} {
		if _, ok := operationCatalog[op]; !ok {
			t.Fatalf("operation %s missing from catalog", op)
		}
	}
}

func TestServiceOptionDefaults(t *testing.T) {
	opts := defaultServiceOptions()
	for _, opt := range []ServiceOption{WithClock(nil), WithLogger(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil)} {
		opt(&opts)
	}
	if opts.clock == nil || opts.logger == nil || opts.audit == nil || opts.metrics == nil || opts.tracer == nil {
		t.Fatalf("nil options must keep defaults: %+v", opts)
	}
	// The no-op seams must be callable.
	opts.logger.Info("ignored")
	opts.audit.Record(context.Background(), AuditEntry{})
	opts.metrics.Observe(context.Background(), "op", true, 0)
	_, span := opts.tracer.Start(context.Background(), "op")
	span.End(nil)

	if now := ClockFunc(nil).Now(); now.Location() != time.UTC {
		t.Fatalf("expected UTC system clock, got %v", now.Location())
	}
	local := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 7200))
	if got := ClockFunc(func() time.Time { return local }).Now(); got.Location() != time.UTC || !got.Equal(local) {
		t.Fatalf("expected UTC conversion, got %v", got)
	}
}

func TestServiceUsesStoreClockForEvents(t *testing.T) {
	fixed := time.Date(2023, 12, 24, 18, 0, 0, 0, time.UTC)
	store := NewMemoryStore(NewDefaultRulesEngine(), WithStoreClock(func() time.Time { return fixed }))
	svc := NewService(store)
	t.Cleanup(svc.Close)
	if svc.RulesEngine() == nil {
		t.Fatalf("expected engine from store")
	}
	if got := svc.now(); !got.Equal(fixed) {
		t.Fatalf("expected store clock, got %v", got)
	}
}
