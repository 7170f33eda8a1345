package integration

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/futurez"
	"github.com/zoobzio/futurez/config"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so assertions need no sleeps.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []futurez.Span
	*futurez.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := futurez.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]futurez.Span, 0),
	}
}

// GetAll returns every span collected so far without losing any.
func (m *MockCollector) GetAll() []futurez.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}
	all := make([]futurez.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// Named returns all collected spans with the given name.
func (m *MockCollector) Named(name string) []futurez.Span {
	var out []futurez.Span
	for _, span := range m.GetAll() {
		if span.Name == name {
			out = append(out, span)
		}
	}
	return out
}

// AssertSpanNamed returns the single span with the given name.
func (m *MockCollector) AssertSpanNamed(name string) futurez.Span {
	m.t.Helper()
	spans := m.Named(name)
	if len(spans) != 1 {
		m.t.Fatalf("Expected exactly one span named '%s', got %d", name, len(spans))
	}
	return spans[0]
}

// AssertParentChild verifies that childName's parent is parentName.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	m.t.Helper()
	parent := m.AssertSpanNamed(parentName)
	child := m.AssertSpanNamed(childName)
	if child.ParentID != parent.SpanID {
		m.t.Errorf("Expected '%s' to be a child of '%s', got parent %q", childName, parentName, child.ParentID)
	}
	if child.TraceID != parent.TraceID {
		m.t.Errorf("Expected '%s' in trace %s, got %s", childName, parent.TraceID, child.TraceID)
	}
}

// AssertRoot verifies that the span named name has no parent.
func (m *MockCollector) AssertRoot(name string) {
	m.t.Helper()
	if span := m.AssertSpanNamed(name); !span.IsRoot() {
		m.t.Errorf("Expected '%s' to be a root span, got parent %q", name, span.ParentID)
	}
}

// Harness is a configured runtime with a synchronous collector attached.
type Harness struct {
	*futurez.Runtime
	Collector *MockCollector
}

// NewHarness configures a runtime from cfg and records every span it finishes.
func NewHarness(t *testing.T, cfg config.Config) *Harness {
	t.Helper()
	rt, err := futurez.Configure(cfg,
		futurez.WithRegisterer(prometheus.NewRegistry()),
		futurez.WithLogOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	collector := NewMockCollector(t, "integration", 10000)
	rt.Tracer.AddCollector("integration", collector.Collector)

	t.Cleanup(func() {
		rt.Close()
		collector.Close()
	})
	return &Harness{Runtime: rt, Collector: collector}
}

// SubmitInner runs "inner" on the pool from within ctx and waits for it.
func (h *Harness) SubmitInner(t *testing.T, ctx context.Context) {
	t.Helper()
	err := h.Pool.Go(ctx, func(ctx context.Context) error {
		return h.Tracer.Trace(ctx, "inner", func(context.Context) error { return nil })
	}).Wait(context.Background())
	if err != nil {
		t.Fatalf("inner task failed: %v", err)
	}
}

// PropagationConfig returns the default config with propagation set.
func PropagationConfig(enabled bool) config.Config {
	cfg := config.Default()
	cfg.Propagation.Enabled = enabled
	return cfg
}
