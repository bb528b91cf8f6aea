package loop

import (
	"context"
	"testing"
)

func TestMockInvokerReturnsScriptedResponses(t *testing.T) {
	m := &MockInvoker{Responses: []string{"first", "second"}}
	r1, err := m.Invoke(context.Background(), "sys", "user")
	if err != nil || r1 != "first" {
		t.Fatalf("expected first scripted response, got %q err=%v", r1, err)
	}
	r2, err := m.Invoke(context.Background(), "sys", "user")
	if err != nil || r2 != "second" {
		t.Fatalf("expected second scripted response, got %q err=%v", r2, err)
	}
}

func TestMockInvokerErrorsWhenExhausted(t *testing.T) {
	m := &MockInvoker{Responses: []string{"only"}}
	m.Invoke(context.Background(), "sys", "user")
	if _, err := m.Invoke(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected an error once the scripted responses are exhausted")
	}
}

func TestSubprocessInvokerEmptyCommandErrors(t *testing.T) {
	s := SubprocessInvoker{Command: nil}
	if _, err := s.Invoke(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}
