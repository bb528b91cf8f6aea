package loop

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// LlmInvoker is the capability the loop controller needs from a model
// backend — a single capability interface so the engine is testable
// without shelling out (spec.md section 4.12).
type LlmInvoker interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SubprocessInvoker runs an external command, feeding it the combined
// prompt on stdin and reading its full stdout back as the model's turn,
// bounded by timeout.
type SubprocessInvoker struct {
	Command []string
	Timeout time.Duration
}

func (s SubprocessInvoker) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(s.Command) == 0 {
		return "", fmt.Errorf("subprocess invoker: empty command")
	}
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Stdin = bytes.NewBufferString(systemPrompt + "\n\n" + userPrompt)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("invoke model subprocess: %w", err)
	}
	return out.String(), nil
}

// MockInvoker returns a scripted sequence of responses, one per call,
// for deterministic tests; it errors once the script is exhausted.
type MockInvoker struct {
	Responses []string
	calls     int
}

func (m *MockInvoker) Invoke(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.calls >= len(m.Responses) {
		return "", fmt.Errorf("mock invoker: no more scripted responses (call %d)", m.calls+1)
	}
	r := m.Responses[m.calls]
	m.calls++
	return r, nil
}
