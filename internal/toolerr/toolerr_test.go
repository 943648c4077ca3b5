package toolerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("Invoke: %w", New(KindValidation, "missing argument"))
	if got := KindOf(err); got != KindValidation {
		t.Fatalf("expected ValidationError, got %s", got)
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected InternalError, got %s", got)
	}
}

func TestIs_MatchesKindAndCode(t *testing.T) {
	err := Backend("GRAPHQL_VALIDATION_FAILED", "bad field")
	if !errors.Is(err, &Error{Kind: KindBackend}) {
		t.Fatal("expected kind match")
	}
	if !errors.Is(err, &Error{Kind: KindBackend, Code: "GRAPHQL_VALIDATION_FAILED"}) {
		t.Fatal("expected kind+code match")
	}
	if errors.Is(err, &Error{Kind: KindBackend, Code: "OTHER"}) {
		t.Fatal("expected code mismatch")
	}
	if errors.Is(err, &Error{Kind: KindTransport}) {
		t.Fatal("expected kind mismatch")
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	err := Wrap(KindTransport, context.DeadlineExceeded, "backend call timed out")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if err.Message != "backend call timed out" {
		t.Fatalf("unexpected message %q", err.Message)
	}
}

func TestError_Format(t *testing.T) {
	err := Backend("NOT_FOUND", "product missing")
	if err.Error() != "BackendError [NOT_FOUND]: product missing" {
		t.Fatalf("unexpected format %q", err.Error())
	}
}
