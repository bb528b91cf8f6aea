package loop

import (
	"bytes"
	"testing"
)

func TestEmitAndReplayTraceRoundTrip(t *testing.T) {
	res := Result{
		Answer:     "final answer",
		StopReason: StopNoNewItems,
		Iterations: []Iteration{
			{Step: 1, Query: "q1", RawResponse: "raw1", RecalledIDs: []string{"MEM-1"}},
			{Step: 2, Query: "q2", RawResponse: "raw2", RecalledIDs: []string{"MEM-1", "MEM-2"}},
		},
	}

	var buf bytes.Buffer
	if err := EmitTrace(&buf, res); err != nil {
		t.Fatalf("emit trace: %v", err)
	}

	replayed, err := ReplayTrace(&buf)
	if err != nil {
		t.Fatalf("replay trace: %v", err)
	}
	if replayed.Answer != res.Answer || replayed.StopReason != res.StopReason {
		t.Fatalf("expected replayed summary to match, got %+v", replayed)
	}
	if len(replayed.Iterations) != 2 || replayed.Iterations[1].Query != "q2" {
		t.Fatalf("expected both iterations preserved, got %+v", replayed.Iterations)
	}
}

func TestReplayTraceEmptyErrors(t *testing.T) {
	if _, err := ReplayTrace(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected an error replaying an empty trace")
	}
}
