package mcp

import "testing"

func TestResolveSessionIDFallsBackToDefault(t *testing.T) {
	if got := ResolveSessionID(""); got != "default" {
		t.Fatalf("expected the default fallback, got %q", got)
	}
	if got := ResolveSessionID("abc"); got != "abc" {
		t.Fatalf("expected the session id passed through, got %q", got)
	}
}

func TestSessionTrackerGetOrCreateIsStable(t *testing.T) {
	tr := NewSessionTracker()
	a := tr.GetOrCreate("s1")
	b := tr.GetOrCreate("s1")
	if a != b {
		t.Fatal("expected the same session state returned for the same id")
	}
}

func TestSessionStateIncrementTurnAndRecordWrite(t *testing.T) {
	s := &SessionState{ID: "s1"}
	s.IncrementTurn()
	s.IncrementTurn()
	s.RecordWrite()
	if s.Turn != 2 {
		t.Fatalf("expected turn counter at 2, got %d", s.Turn)
	}
	if s.Writes != 1 {
		t.Fatalf("expected write counter at 1, got %d", s.Writes)
	}
}

func TestSessionTrackerReset(t *testing.T) {
	tr := NewSessionTracker()
	tr.GetOrCreate("s1")
	tr.Reset()
	a := tr.GetOrCreate("s1")
	if a.Turn != 0 {
		t.Fatal("expected a fresh session state after reset")
	}
}
