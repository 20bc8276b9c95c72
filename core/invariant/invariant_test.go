package invariant_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aledsdavies/pdftl/core/invariant"
)

func expectPanic(t *testing.T, kind, text string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected %s panic", kind)
		}
		msg := fmt.Sprintf("%v", r)
		if !strings.Contains(msg, kind+" VIOLATION") {
			t.Errorf("expected %s VIOLATION, got: %s", kind, msg)
		}
		if !strings.Contains(msg, text) {
			t.Errorf("expected %q in message, got: %s", text, msg)
		}
		if !strings.Contains(msg, "at ") {
			t.Errorf("expected caller location, got: %s", msg)
		}
	}()
	fn()
}

func TestAssertionsPass(t *testing.T) {
	invariant.Precondition(true, "ok")
	invariant.Postcondition(1+1 == 2, "ok")
	invariant.Invariant(len("abc") == 3, "ok")
	invariant.NotNil(&struct{}{}, "value")
	invariant.InRange(3, 1, 5, "page")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	invariant.ContextNotBackground(ctx, "test")
}

func TestPreconditionFail(t *testing.T) {
	expectPanic(t, "PRECONDITION", "expression must have atoms", func() {
		invariant.Precondition(false, "expression must have atoms")
	})
}

func TestPostconditionFail(t *testing.T) {
	expectPanic(t, "POSTCONDITION", "3 pages", func() {
		invariant.Postcondition(false, "expected %d pages", 3)
	})
}

func TestInvariantFail(t *testing.T) {
	expectPanic(t, "INVARIANT", "must advance", func() {
		invariant.Invariant(false, "parser must advance")
	})
}

func TestNotNilTypedNil(t *testing.T) {
	var p *int
	expectPanic(t, "PRECONDITION", "doc must not be nil", func() {
		invariant.NotNil(p, "doc")
	})
}

func TestInRangeFail(t *testing.T) {
	expectPanic(t, "PRECONDITION", "got 9", func() {
		invariant.InRange(9, 1, 5, "page")
	})
}

func TestContextNotBackground(t *testing.T) {
	expectPanic(t, "PRECONDITION", "Background()", func() {
		invariant.ContextNotBackground(context.Background(), "Execute")
	})
}
