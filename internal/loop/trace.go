package loop

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// EmitTrace writes one JSON line per iteration plus a trailing summary
// line, so a run can be replayed exactly without re-invoking the model.
func EmitTrace(w io.Writer, res Result) error {
	enc := json.NewEncoder(w)
	for _, it := range res.Iterations {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return enc.Encode(struct {
		Answer     string     `json:"answer"`
		StopReason StopReason `json:"stop_reason"`
	}{res.Answer, res.StopReason})
}

// ReplayTrace reads a previously emitted trace back into a Result
// without touching the store or invoking a model, used by `memctl loop
// --replay`.
func ReplayTrace(r io.Reader) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines [][]byte
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return res, err
	}
	if len(lines) == 0 {
		return res, fmt.Errorf("empty trace")
	}

	for _, line := range lines[:len(lines)-1] {
		var it Iteration
		if err := json.Unmarshal(line, &it); err != nil {
			return res, err
		}
		res.Iterations = append(res.Iterations, it)
	}

	var summary struct {
		Answer     string     `json:"answer"`
		StopReason StopReason `json:"stop_reason"`
	}
	if err := json.Unmarshal(lines[len(lines)-1], &summary); err != nil {
		return res, err
	}
	res.Answer = summary.Answer
	res.StopReason = summary.StopReason
	return res, nil
}
