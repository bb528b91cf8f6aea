package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindPolicy:     "policy",
		KindValidation: "validation",
		KindIntegrity:  "integrity",
		KindTransient:  "transient",
		KindFatal:      "fatal",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}

func TestErrorMessageIncludesWrappedCause(t *testing.T) {
	e := Integrity(errors.New("unique constraint"), "duplicate content hash")
	if e.Error() != "integrity: duplicate content hash: unique constraint" {
		t.Fatalf("unexpected message %q", e.Error())
	}
}

func TestErrorMessageWithoutCause(t *testing.T) {
	e := Validationf("missing %s", "content")
	if e.Error() != "validation: missing content" {
		t.Fatalf("unexpected message %q", e.Error())
	}
}

func TestUnwrapReturnsUnderlyingCause(t *testing.T) {
	cause := errors.New("disk full")
	e := Transient(cause, "write failed")
	if errors.Unwrap(e) != cause {
		t.Fatal("expected Unwrap to return the wrapped cause")
	}
}

func TestAsFindsWrappedMemctlError(t *testing.T) {
	base := Policyf("rule-1", "rejected")
	wrapped := fmt.Errorf("context: %w", base)

	found, ok := As(wrapped)
	if !ok || found.RuleID != "rule-1" {
		t.Fatalf("expected to find the wrapped policy error, got %+v ok=%v", found, ok)
	}
}

func TestAsReturnsFalseForPlainError(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Fatal("expected a plain error to not be recognized as an *Error")
	}
}

func TestAsNilErrorReturnsFalse(t *testing.T) {
	if _, ok := As(nil); ok {
		t.Fatal("expected a nil error to return ok=false")
	}
}

func TestExitCode(t *testing.T) {
	if KindFatal.ExitCode() != 2 {
		t.Fatalf("expected fatal errors to exit 2, got %d", KindFatal.ExitCode())
	}
	for _, k := range []Kind{KindPolicy, KindValidation, KindIntegrity, KindTransient} {
		if k.ExitCode() != 1 {
			t.Fatalf("expected %s to exit 1, got %d", k, k.ExitCode())
		}
	}
}

func TestMCPOutcome(t *testing.T) {
	if KindPolicy.MCPOutcome() != "blocked" {
		t.Fatalf("expected policy errors to map to blocked, got %q", KindPolicy.MCPOutcome())
	}
	if KindValidation.MCPOutcome() != "error" {
		t.Fatalf("expected non-policy errors to map to error, got %q", KindValidation.MCPOutcome())
	}
}
