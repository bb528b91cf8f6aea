package mcp

import "testing"

func TestClassifyTool(t *testing.T) {
	cases := map[string]ToolClass{
		"write":   ClassWrite,
		"import":  ClassWrite,
		"recall":  ClassRead,
		"search":  ClassRead,
		"stats":   ClassExempt,
		"mount":   ClassExempt,
		"unknown": ClassRead,
	}
	for tool, want := range cases {
		if got := ClassifyTool(tool); got != want {
			t.Errorf("ClassifyTool(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestRateLimiterCheckWriteExhaustsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.CheckWrite("s1") {
			allowed++
		}
	}
	if allowed == 0 {
		t.Fatal("expected at least the initial burst to be allowed")
	}
	if allowed >= 10 {
		t.Fatal("expected the burst to eventually exhaust against a low steady rate")
	}
}

func TestRateLimiterPerSessionIsolation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	for i := 0; i < 3; i++ {
		rl.CheckWrite("s1")
	}
	if !rl.CheckWrite("s2") {
		t.Fatal("expected a fresh session to have its own independent bucket")
	}
}

func TestRateLimiterCheckWriteNRejectsOversizedBatch(t *testing.T) {
	rl := NewRateLimiter(2, 2)
	if rl.CheckWriteN("s1", 1000) {
		t.Fatal("expected a batch far larger than the burst to be rejected")
	}
}

func TestRateLimiterResetTurnRestoresCapacity(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	for i := 0; i < 5; i++ {
		rl.CheckWrite("s1")
	}
	rl.ResetTurn("s1")
	if !rl.CheckWrite("s1") {
		t.Fatal("expected resetting the turn to restore write capacity")
	}
}

func TestRateLimiterCheckProposalsDelegatesToWriteBucket(t *testing.T) {
	rl := NewRateLimiter(5, 5)
	if !rl.CheckProposals("s1", 1) {
		t.Fatal("expected a small proposal batch to be allowed against a fresh bucket")
	}
}
