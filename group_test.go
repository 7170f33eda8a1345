package futurez

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupPropagation(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		child   bool
	}{
		{"disabled gives roots", false, false},
		{"enabled gives children", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, collector := newRecordingTracer(t)
			prop := NewPropagator()
			prop.Toggle().Set(tt.enabled)

			ctx, outer := tracer.StartSpan(context.Background(), "outer")
			// The group context carries outer too; it must not leak in when disabled.
			g, gctx := NewGroup(ctx)
			g.Instrument(prop)

			for i := 0; i < 3; i++ {
				g.Go(gctx, traceInner(tracer))
			}
			require.NoError(t, g.Wait())
			outer.Finish()

			inners := 0
			for _, span := range collector.Export() {
				if span.Name != "inner" {
					continue
				}
				inners++
				if tt.child {
					assert.Equal(t, outer.SpanID(), span.ParentID)
				} else {
					assert.True(t, span.IsRoot())
				}
			}
			assert.Equal(t, 3, inners)
		})
	}
}

func TestGroupFirstErrorCancels(t *testing.T) {
	g, gctx := NewGroup(context.Background())
	want := errors.New("first failure")

	g.Go(gctx, func(context.Context) error { return want })
	g.Go(gctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, g.Wait(), want)
	assert.Error(t, gctx.Err())
}

func TestGroupPanicFailsGroup(t *testing.T) {
	g, gctx := NewGroup(context.Background())
	g.Go(gctx, func(context.Context) error { panic("group boom") })

	var pe *PanicError
	assert.ErrorAs(t, g.Wait(), &pe)
}

func TestGroupSetLimit(t *testing.T) {
	g, gctx := NewGroup(context.Background())
	g.SetLimit(2)

	var mu sync.Mutex
	running, peak := 0, 0
	for i := 0; i < 10; i++ {
		g.Go(gctx, func(context.Context) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, peak, 2)
}

func TestSubmitOnGroup(t *testing.T) {
	g, gctx := NewGroup(context.Background())
	f := Submit(gctx, g, func(context.Context) (string, error) {
		return "done", nil
	})
	require.NoError(t, g.Wait())

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestGroupDispatchReportsThroughDone(t *testing.T) {
	g, _ := NewGroup(context.Background())
	want := errors.New("body failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := make(chan error, 1)
	run := g.Prepare(ctx, func(context.Context) error { return want })
	require.NoError(t, g.Dispatch(ctx, run, func(err error) { got <- err }))

	assert.ErrorIs(t, g.Wait(), want)
	assert.ErrorIs(t, <-got, want)
}
