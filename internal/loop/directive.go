// Package loop implements the bounded recall-answer controller: an LLM
// is invoked repeatedly, each turn emitting a directive that either asks
// for more recalled context or declares it's done, until one of five
// deterministic stopping conditions fires (spec.md section 4.12,
// grounded on the original implementation's loop.py).
package loop

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Protocol selects how a model's raw output is parsed into a Directive.
type Protocol string

const (
	ProtocolJSON    Protocol = "json"
	ProtocolRegex   Protocol = "regex"
	ProtocolPassive Protocol = "passive"
)

// Directive is what one loop iteration's model turn decided to do next.
// Under the JSON protocol it is carried entirely on the envelope's first
// line; Answer is whatever follows it (spec.md section 4.9).
type Directive struct {
	NeedMore bool   `json:"need_more"`
	Query    string `json:"query,omitempty"`
	Stop     bool   `json:"stop"`
	Answer   string `json:"answer,omitempty"`
	Raw      string `json:"-"`
}

// ProtocolSystemPrompt is appended to the system prompt so the model
// knows the exact directive shape it must emit under the JSON protocol:
// a one-line JSON envelope followed by the answer text.
const ProtocolSystemPrompt = `Follow this protocol exactly:
1. Your first line of output must be a single JSON object:
   {"need_more": <bool>, "query": "<string or null>", "stop": <bool>}
2. Leave one blank line after the JSON line, then write your answer.
3. If the provided context is sufficient to answer fully:
   {"need_more": false, "query": null, "stop": true}
4. If the context is insufficient, propose a refined recall query:
   {"need_more": true, "query": "<refined search query>", "stop": false}
5. Do not emit anything before the JSON line, and do not wrap it in markdown.`

var regexNeedMoreRe = regexp.MustCompile(`(?i)NEED_MORE:\s*(.+)`)
var regexQueryRe = regexp.MustCompile(`(?i)QUERY:\s*(.+)`)

// ParseDirective dispatches to the protocol-specific parser.
func ParseDirective(protocol Protocol, raw string) (Directive, error) {
	switch protocol {
	case ProtocolJSON:
		return parseJSONDirective(raw)
	case ProtocolRegex:
		return parseRegexDirective(raw)
	case ProtocolPassive:
		return parsePassiveDirective(raw)
	default:
		return parseJSONDirective(raw)
	}
}

// parseJSONDirective implements the wire contract from spec.md section
// 4.9 and the original's parse_json_directive: the first line is a JSON
// envelope, everything after the first newline is raw answer text — the
// answer is never itself JSON-encoded.
func parseJSONDirective(raw string) (Directive, error) {
	trimmed := strings.TrimSpace(raw)
	// Tolerate a fenced code block wrapping the whole response.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	firstLine, rest, _ := strings.Cut(trimmed, "\n")
	rest = strings.TrimLeft(rest, "\n")

	var env struct {
		NeedMore bool    `json:"need_more"`
		Query    *string `json:"query"`
		Stop     bool    `json:"stop"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(firstLine)), &env); err != nil {
		// Fallback: the whole response becomes the answer, no refinement.
		return Directive{Stop: true, Answer: raw, Raw: raw}, errNotJSON
	}

	d := Directive{NeedMore: env.NeedMore, Stop: env.Stop, Answer: rest, Raw: raw}
	if env.Query != nil {
		d.Query = *env.Query
	}
	// An empty query with need_more=true can't be pursued; treat as stop.
	if d.NeedMore && strings.TrimSpace(d.Query) == "" {
		d.NeedMore = false
		d.Stop = true
	}
	return d, nil
}

// parseRegexDirective scans for NEED_MORE:/QUERY: markers; the answer is
// always the full response, since the markers are metadata rather than
// something to strip out.
func parseRegexDirective(raw string) (Directive, error) {
	needMoreMatch := regexNeedMoreRe.FindStringSubmatch(raw)
	queryMatch := regexQueryRe.FindStringSubmatch(raw)
	if needMoreMatch == nil && queryMatch == nil {
		return Directive{Stop: true, Answer: raw, Raw: raw}, nil
	}
	var q string
	if queryMatch != nil {
		q = strings.TrimSpace(queryMatch[1])
	}
	needMore := q != ""
	return Directive{NeedMore: needMore, Query: q, Stop: !needMore, Answer: raw, Raw: raw}, nil
}

// parsePassiveDirective treats the entire response as the answer and
// always stops — used when the model isn't prompted to emit directives
// at all (e.g. a single-shot ask with no loop).
func parsePassiveDirective(raw string) (Directive, error) {
	return Directive{Stop: true, Answer: strings.TrimSpace(raw), Raw: raw}, nil
}

type loopError string

func (e loopError) Error() string { return string(e) }

const errNotJSON = loopError("response did not contain a parseable JSON directive")
