package futurez

import (
	"context"
	"errors"
	"testing"
)

func TestActiveContextStartsEmpty(t *testing.T) {
	ac := NewActiveContext()
	if ac.Current() != nil {
		t.Errorf("Expected empty slot, got %v", ac.Current())
	}
}

func TestActiveContextFromSeedsCurrent(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	ctx, span := tracer.StartSpan(context.Background(), "caller")
	ac := ActiveContextFrom(ctx)
	if ac.Current() != span.span {
		t.Error("Expected slot seeded with the caller's span")
	}

	if ActiveContextFrom(context.Background()).Current() != nil {
		t.Error("Expected empty slot for a context without a span")
	}
}

func TestWithScopedRestores(t *testing.T) {
	outer := &Span{Name: "outer"}
	inner := &Span{Name: "inner"}

	tests := []struct {
		name  string
		prior *Span
	}{
		{"from empty", nil},
		{"from other span", outer},
		{"from same span", inner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := NewActiveContext()
			_ = ac.WithScoped(tt.prior, func() error {
				var seen *Span
				err := ac.WithScoped(inner, func() error {
					seen = ac.Current()
					return nil
				})
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if seen != inner {
					t.Errorf("Expected inner during body, got %v", seen)
				}
				if ac.Current() != tt.prior {
					t.Errorf("Expected %v restored, got %v", tt.prior, ac.Current())
				}
				return nil
			})
			if ac.Current() != nil || ac.depth != 0 {
				t.Errorf("Expected slot fully unwound, got %v at depth %d", ac.Current(), ac.depth)
			}
		})
	}
}

func TestWithScopedRestoresOnError(t *testing.T) {
	ac := NewActiveContext()
	prior := &Span{Name: "prior"}
	want := errors.New("body failed")

	err := ac.WithScoped(prior, func() error {
		err := ac.WithScoped(&Span{Name: "inner"}, func() error {
			return want
		})
		if ac.Current() != prior {
			t.Error("Expected prior restored before the error surfaced")
		}
		return err
	})

	if !errors.Is(err, want) {
		t.Errorf("Expected body error, got %v", err)
	}
	if ac.Current() != nil {
		t.Error("Expected empty slot after outer scope")
	}
}

func TestWithScopedRestoresOnPanic(t *testing.T) {
	ac := NewActiveContext()
	prior := &Span{Name: "prior"}

	_ = ac.WithScoped(prior, func() error {
		func() {
			defer func() {
				r := recover()
				if r != "boom" {
					t.Errorf("Expected panic to propagate, got %v", r)
				}
				if ac.Current() != prior {
					t.Error("Expected prior restored before the panic was observed")
				}
			}()
			_ = ac.WithScoped(&Span{Name: "inner"}, func() error {
				panic("boom")
			})
		}()
		return nil
	})

	if ac.depth != 0 {
		t.Errorf("Expected depth 0, got %d", ac.depth)
	}
}

func TestNestedScopesRestoreEnclosingValue(t *testing.T) {
	ac := NewActiveContext()
	a, b, c := &Span{Name: "a"}, &Span{Name: "b"}, &Span{Name: "c"}

	_ = ac.WithScoped(a, func() error {
		_ = ac.WithScoped(b, func() error {
			_ = ac.WithScoped(c, func() error {
				if ac.Current() != c {
					t.Error("Expected c innermost")
				}
				return nil
			})
			if ac.Current() != b {
				t.Error("Expected b after c's scope")
			}
			return nil
		})
		if ac.Current() != a {
			t.Error("Expected a after b's scope")
		}
		return nil
	})
}

func TestScopedReturnsValue(t *testing.T) {
	ac := NewActiveContext()
	span := &Span{Name: "s"}

	got, err := Scoped(ac, span, func() (string, error) {
		return ac.Current().Name, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "s" {
		t.Errorf("Expected 's', got %q", got)
	}
	if ac.Current() != nil {
		t.Error("Expected slot restored")
	}
}

func TestActiveContextContextMasksParentSpan(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	parent, _ := tracer.StartSpan(context.Background(), "ambient")
	ctx := NewActiveContext().Context(parent)
	if GetSpan(ctx) != nil {
		t.Error("Expected empty slot to mask the parent's span")
	}

	_, child := tracer.StartSpan(ctx, "child")
	if child.span.ParentID != "" {
		t.Error("Expected a root span under a masked context")
	}
}

func TestOutOfOrderExitIsScopeViolation(t *testing.T) {
	ac := NewActiveContext()
	first := ac.enter(&Span{Name: "first"})
	_ = ac.enter(&Span{Name: "second"})

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrScopeViolation) {
			t.Errorf("Expected ErrScopeViolation panic, got %v", r)
		}
	}()
	ac.exit(first)
}
