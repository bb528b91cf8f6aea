// Package inject formats and parses the versioned injection block shared
// by push, ask, chat, and the MCP server — the text representation of a
// budgeted set of recalled items ready to paste into a prompt (spec.md
// section 4.10, grounded on the original implementation's
// mcp/formatting.py).
package inject

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/memctl/memctl/internal/memory"
)

// FormatVersion is stamped into every injection block header so a future
// parser can detect a layout change.
const FormatVersion = 1

// charsPerToken approximates a token as four characters, the same rough
// budget-to-character conversion the original implementation uses.
const charsPerToken = 4

// Block is a formatted, budget-trimmed set of items ready for injection.
type Block struct {
	Text         string
	ItemsUsed    int
	ItemsMatched int
	BudgetTokens int
}

// Format packs items into a header-plus-numbered-entries block, greedily
// including items in order until the character budget (budgetTokens*4)
// is exhausted. generatedAt is stamped verbatim so output is
// reproducible under test with an injected clock.
func Format(items []memory.Item, injectionType string, budgetTokens int, generatedAt time.Time) Block {
	charBudget := budgetTokens * charsPerToken

	var body strings.Builder
	used := 0
	for i, it := range items {
		entry := formatSingleItem(i+1, it)
		if body.Len() > 0 && body.Len()+len(entry) > charBudget {
			break
		}
		body.WriteString(entry)
		used++
	}

	var b strings.Builder
	b.WriteString("## Memory (Injected)\n")
	fmt.Fprintf(&b, "format_version: %d\n", FormatVersion)
	fmt.Fprintf(&b, "injection_type: %s\n", injectionType)
	fmt.Fprintf(&b, "generated_at: %s\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "budget_tokens: %d\n", budgetTokens)
	fmt.Fprintf(&b, "matched: %d\n", len(items))
	fmt.Fprintf(&b, "used: %d\n\n", used)
	b.WriteString(body.String())

	return Block{Text: b.String(), ItemsUsed: used, ItemsMatched: len(items), BudgetTokens: budgetTokens}
}

func formatSingleItem(rank int, it memory.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] [TIER:%s] %s — %s\n", rank, it.Tier, it.Type, firstLine(it.Title, it.Content))
	for _, line := range strings.Split(strings.TrimSpace(it.Content), "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	if it.Provenance.SourceID != "" {
		fmt.Fprintf(&b, "    provenance: %s:%s\n", it.Provenance.SourceKind, it.Provenance.SourceID)
	}
	if len(it.Tags) > 0 {
		fmt.Fprintf(&b, "    tags: %s\n", strings.Join(it.Tags, ", "))
	}
	fmt.Fprintf(&b, "    confidence: %.2f\n", it.Confidence)
	if len(it.Entities) > 0 {
		fmt.Fprintf(&b, "    entities: %s\n", strings.Join(it.Entities, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

func firstLine(title, content string) string {
	if title != "" {
		return title
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

// ParseHeader extracts the header fields from a formatted block (used by
// tests and by the loop controller to detect whether injected context
// actually changed between iterations).
type Header struct {
	FormatVersion int
	InjectionType string
	GeneratedAt   time.Time
	BudgetTokens  int
	Matched       int
	Used          int
}

// ParseBlock reads back the header fields written by Format.
func ParseBlock(text string) (Header, error) {
	var h Header
	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch k {
		case "format_version":
			h.FormatVersion, _ = strconv.Atoi(v)
		case "injection_type":
			h.InjectionType = v
		case "generated_at":
			h.GeneratedAt, _ = time.Parse(time.RFC3339, v)
		case "budget_tokens":
			h.BudgetTokens, _ = strconv.Atoi(v)
		case "matched":
			h.Matched, _ = strconv.Atoi(v)
		case "used":
			h.Used, _ = strconv.Atoi(v)
		}
	}
	if h.FormatVersion == 0 {
		return h, fmt.Errorf("not a recognized injection block")
	}
	return h, nil
}
