package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/memctl/memctl/internal/inject"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/query"
	"github.com/memctl/memctl/internal/similarity"
	"github.com/memctl/memctl/internal/store"
)

// StopReason is the closed set of five ways a loop can end.
type StopReason string

const (
	StopLLM        StopReason = "llm_stop"
	StopFixedPoint StopReason = "fixed_point"
	StopQueryCycle StopReason = "query_cycle"
	StopNoNewItems StopReason = "no_new_items"
	StopMaxCalls   StopReason = "max_calls"
)

// Config bounds one loop run.
type Config struct {
	MaxCalls             int
	BudgetTokens         int
	FixedPointThreshold  float64
	QueryCycleThreshold  float64
	StableSteps          int // consecutive similar-answer pairs required before fixed_point fires; 0 means the default of 2
	Protocol             Protocol
	Scope                string
}

// Iteration is one recorded turn of the loop, replayable from its JSONL
// trace line.
type Iteration struct {
	Step          int       `json:"step"`
	Query         string    `json:"query"`
	RawResponse   string    `json:"raw_response"`
	Directive     Directive `json:"directive"`
	RecalledIDs   []string  `json:"recalled_ids"`
	InjectedBlock string    `json:"injected_block,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Result is the outcome of a full loop run.
type Result struct {
	Answer     string
	StopReason StopReason
	Iterations []Iteration
}

// Run drives the bounded recall-answer state machine. Each iteration:
// recall context for the current query, ask the model for a directive,
// check llm_stop -> fixed_point -> query_cycle -> max_calls in that
// order, then check no_new_items before looping with the next query.
func Run(ctx context.Context, st *store.Store, invoker LlmInvoker, cfg Config, initialQuery string) (Result, error) {
	stableSteps := cfg.StableSteps
	if stableSteps <= 0 {
		stableSteps = 2
	}

	var res Result
	var history []string
	var answers []string
	seenItems := map[string]bool{}
	currentQuery := initialQuery
	consecutiveStable := 0

	for step := 1; step <= cfg.MaxCalls; step++ {
		normalized := query.Normalize(currentQuery)
		items, _, err := st.SearchFulltext(ctx, normalized, store.SearchOptions{Scope: cfg.Scope, Limit: 20})
		if err != nil {
			return res, fmt.Errorf("loop step %d recall: %w", step, err)
		}
		injectable := filterInjectable(items)

		newCount := 0
		recalledIDs := make([]string, 0, len(injectable))
		for _, it := range injectable {
			recalledIDs = append(recalledIDs, it.ID)
			if !seenItems[it.ID] {
				seenItems[it.ID] = true
				newCount++
			}
		}

		block := inject.Format(injectable, "loop", cfg.BudgetTokens, time.Now())
		userPrompt := buildPrompt(currentQuery, block.Text)

		raw, err := invoker.Invoke(ctx, ProtocolSystemPrompt, userPrompt)
		if err != nil {
			return res, fmt.Errorf("loop step %d invoke: %w", step, err)
		}
		directive, parseErr := ParseDirective(cfg.Protocol, raw)

		iter := Iteration{
			Step: step, Query: currentQuery, RawResponse: raw, Directive: directive,
			RecalledIDs: recalledIDs, InjectedBlock: block.Text, Timestamp: time.Now(),
		}
		res.Iterations = append(res.Iterations, iter)

		if parseErr != nil {
			// Treat an unparseable directive as a passive final answer
			// rather than aborting the loop outright.
			res.Answer = directive.Answer
			res.StopReason = StopLLM
			return res, nil
		}

		// Track this turn's full answer for the fixed-point comparison,
		// and count consecutive stable (answer, previous answer) pairs —
		// spec.md section 4.9 requires stable_steps consecutive hits
		// before convergence, not just one.
		answers = append(answers, directive.Answer)
		if len(answers) >= 2 && similarity.IsFixedPoint(answers[len(answers)-1], answers[len(answers)-2], cfg.FixedPointThreshold) {
			consecutiveStable++
		} else {
			consecutiveStable = 0
		}

		// Condition 1: the model explicitly declared it's done (or asked
		// for more without a usable query, which parseJSONDirective
		// already normalizes into a stop).
		if directive.Stop || !directive.NeedMore {
			res.Answer = directive.Answer
			res.StopReason = StopLLM
			return res, nil
		}

		// Condition 2: fixed point — the current and previous full
		// answers have been similar for stableSteps consecutive turns,
		// meaning another round won't move anything.
		if consecutiveStable >= stableSteps {
			res.Answer = directive.Answer
			res.StopReason = StopFixedPoint
			return res, nil
		}

		// Condition 3: query cycle — this query repeats (or nearly
		// repeats) one already tried.
		if similarity.IsQueryCycle(directive.Query, history, cfg.QueryCycleThreshold) {
			res.Answer = directive.Answer
			res.StopReason = StopQueryCycle
			return res, nil
		}

		// Condition 4: this was the last permitted call.
		if step == cfg.MaxCalls {
			res.Answer = directive.Answer
			res.StopReason = StopMaxCalls
			return res, nil
		}

		// Condition 5: recall produced nothing new this round.
		if newCount == 0 && step > 1 {
			res.Answer = directive.Answer
			res.StopReason = StopNoNewItems
			return res, nil
		}

		history = append(history, currentQuery)
		currentQuery = directive.Query
	}

	res.StopReason = StopMaxCalls
	return res, nil
}

func filterInjectable(items []memory.Item) []memory.Item {
	out := make([]memory.Item, 0, len(items))
	for _, it := range items {
		if it.Injectable && !it.Archived {
			out = append(out, it)
		}
	}
	return out
}

func buildPrompt(query, injectedContext string) string {
	return injectedContext + "\n\nQuery: " + query
}
