// Package proposer extracts memory proposals that an LLM emitted either
// as a tool call or as a delimited JSON block in its response text,
// grounded on the original implementation's proposer.py (spec.md's
// supplemented proposal-extraction feature).
package proposer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/memctl/memctl/internal/memory"
)

// Strategy selects which extraction path(s) to try.
type Strategy string

const (
	StrategyTool      Strategy = "tool"
	StrategyDelimiter Strategy = "delimiter"
	StrategyBoth      Strategy = "both"
)

// ToolCall is the minimal shape proposer recognizes, covering both the
// "action"/"name" conventions and OpenAI-style string-encoded arguments.
type ToolCall struct {
	Action    string          `json:"action,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Params    json.RawMessage `json:"parameters,omitempty"`
}

var proposalToolNames = map[string]bool{
	"memory.propose":  true,
	"memory_propose":  true,
}

var delimiterRe = regexp.MustCompile(`(?s)<MEMORY_PROPOSALS_JSON>(.*?)</MEMORY_PROPOSALS_JSON>`)

// ParseToolCalls scans a list of tool calls for memory.propose /
// memory_propose invocations and decodes their arguments into proposals.
func ParseToolCalls(calls []ToolCall) []memory.Proposal {
	var out []memory.Proposal
	for _, c := range calls {
		name := c.Action
		if name == "" {
			name = c.Name
		}
		if !proposalToolNames[name] {
			continue
		}
		raw := c.Arguments
		if len(raw) == 0 {
			raw = c.Params
		}
		if len(raw) == 0 {
			continue
		}
		// OpenAI-style tool calls encode arguments as a JSON string, not a
		// nested object — unwrap one layer if so.
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			raw = json.RawMessage(asString)
		}
		out = append(out, decodeProposals(raw)...)
	}
	return out
}

// ParseResponseText extracts proposals from a delimiter-wrapped JSON
// block in free-form response text, supporting both {"items": [...]}
// and a bare [...] array.
func ParseResponseText(text string) []memory.Proposal {
	m := delimiterRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return decodeProposals(json.RawMessage(strings.TrimSpace(m[1])))
}

func decodeProposals(raw json.RawMessage) []memory.Proposal {
	var wrapped struct {
		Items []memory.Proposal `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Items) > 0 {
		return wrapped.Items
	}
	var bare []memory.Proposal
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare
	}
	var single memory.Proposal
	if err := json.Unmarshal(raw, &single); err == nil && single.Content != "" {
		return []memory.Proposal{single}
	}
	return nil
}

// ExtractProposals runs the strategy-gated extraction: "tool" only
// inspects toolCalls, "delimiter" only inspects responseText, "both"
// tries tool calls first and falls back to delimiter parsing if none
// fired.
func ExtractProposals(strategy Strategy, toolCalls []ToolCall, responseText string) []memory.Proposal {
	switch strategy {
	case StrategyTool:
		return ParseToolCalls(toolCalls)
	case StrategyDelimiter:
		return ParseResponseText(responseText)
	default:
		if props := ParseToolCalls(toolCalls); len(props) > 0 {
			return props
		}
		return ParseResponseText(responseText)
	}
}
