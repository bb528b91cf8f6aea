// Package policy implements the pure function from proposal/item to
// verdict: the write-side governance engine that blocks secrets and
// prompt-injection payloads and quarantines soft-instructional or PII
// content (spec.md section 4.2).
package policy

import (
	"fmt"
	"time"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memory"
)

// Action is the closed set of policy outcomes.
type Action string

const (
	ActionAccept     Action = "accept"
	ActionQuarantine Action = "quarantine"
	ActionReject     Action = "reject"
)

// Verdict is the outcome of evaluating a proposal or item.
type Verdict struct {
	Action              Action
	RuleID              string
	Reasons             []string
	ForcedTier          memory.Tier
	ForcedValidation    memory.Validation
	ForcedExpiresAt     *time.Time
	ForcedNonInjectable bool
}

// WriteReason renders the verdict as the human-readable reason a store
// write's revision records for its policy decision (spec.md section 3's
// "every live item has at least one policy decision in its revision
// chain").
func (v Verdict) WriteReason() string {
	if v.Action == ActionQuarantine {
		return fmt.Sprintf("policy=quarantine rule=%s", v.RuleID)
	}
	return fmt.Sprintf("policy=%s", v.Action)
}

// Engine evaluates proposals/items against the ordered rule table. Neither
// evaluate_item nor evaluate_proposal may be bypassed by any write path —
// every caller must act on the returned Verdict.
type Engine struct {
	cfg config.Policy
	now func() time.Time
}

// New builds a policy Engine from configuration.
func New(cfg config.Policy) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// EvaluateProposal runs the full rule table against a candidate proposal,
// the entry point used by ingest, pull, and propose write paths.
func (e *Engine) EvaluateProposal(p memory.Proposal) Verdict {
	if v, ok := e.hardBlocks(p.Content); ok {
		return v
	}
	if len(p.Content) > e.cfg.MaxContentLength && memory.NormalizeType(p.Type) != "pointer" {
		return Verdict{Action: ActionReject, RuleID: "structural-oversized-content",
			Reasons: []string{fmt.Sprintf("content length %d exceeds max %d", len(p.Content), e.cfg.MaxContentLength)}}
	}

	var reasons []string
	forceNonInjectable := false

	if rule, ok := e.checkQuarantineInstructional(p.Content); ok {
		reasons = append(reasons, rule)
		forceNonInjectable = true
	}
	if rule, ok := e.checkPII(p.Content); ok {
		reasons = append(reasons, rule)
		forceNonInjectable = true
	}
	if p.WhyStore == "" {
		reasons = append(reasons, "QUARANTINE: missing why_store justification")
	}
	if !p.ProvenanceHint.HasSourceID() {
		reasons = append(reasons, "QUARANTINE: missing provenance.source_id")
	}

	if len(reasons) > 0 {
		expires := e.now().Add(time.Duration(e.cfg.QuarantineExpiryHours) * time.Hour)
		return Verdict{
			Action:              ActionQuarantine,
			RuleID:              "quarantine",
			Reasons:             reasons,
			ForcedTier:          memory.TierSTM,
			ForcedValidation:    memory.ValidationUnverified,
			ForcedExpiresAt:     &expires,
			ForcedNonInjectable: forceNonInjectable,
		}
	}

	return Verdict{Action: ActionAccept}
}

// EvaluateItem runs the rule table against a direct write (not via a
// proposal), the entry point for write_item and import.
func (e *Engine) EvaluateItem(it memory.Item) Verdict {
	if v, ok := e.hardBlocks(it.Content); ok {
		return v
	}
	if len(it.Content) > e.cfg.MaxContentLength && it.Type != "pointer" {
		return Verdict{Action: ActionReject, RuleID: "structural-oversized-content",
			Reasons: []string{fmt.Sprintf("content length %d exceeds max %d", len(it.Content), e.cfg.MaxContentLength)}}
	}

	for _, tier := range e.cfg.RequireProvenanceFor {
		if string(it.Tier) == tier && !it.Provenance.HasSourceID() {
			return Verdict{Action: ActionReject, RuleID: "structural-missing-provenance",
				Reasons: []string{fmt.Sprintf("tier %s requires provenance.source_id", it.Tier)}}
		}
	}

	var reasons []string
	forceNonInjectable := false
	if rule, ok := e.checkQuarantineInstructional(it.Content); ok {
		reasons = append(reasons, rule)
		forceNonInjectable = true
	}
	if rule, ok := e.checkPII(it.Content); ok {
		reasons = append(reasons, rule)
		forceNonInjectable = true
	}

	if len(reasons) > 0 {
		expires := e.now().Add(time.Duration(e.cfg.QuarantineExpiryHours) * time.Hour)
		return Verdict{
			Action:              ActionQuarantine,
			RuleID:              "quarantine",
			Reasons:             reasons,
			ForcedTier:          memory.TierSTM,
			ForcedValidation:    memory.ValidationUnverified,
			ForcedExpiresAt:     &expires,
			ForcedNonInjectable: forceNonInjectable,
		}
	}

	return Verdict{Action: ActionAccept}
}

// hardBlocks runs the reject-level checks shared by both entry points:
// secrets, injection, and instructional-block patterns. Evaluation
// terminates on the first firing rule (reject before quarantine).
func (e *Engine) hardBlocks(content string) (Verdict, bool) {
	if e.cfg.SecretPatternsEnabled {
		if p, ok := firstMatch(secretPatterns, content); ok {
			return Verdict{Action: ActionReject, RuleID: p.id,
				Reasons: []string{"HARD_BLOCK: secret pattern " + p.id}}, true
		}
	}
	if e.cfg.InjectionPatternsEnabled {
		if p, ok := firstMatch(injectionPatterns, content); ok {
			return Verdict{Action: ActionReject, RuleID: p.id,
				Reasons: []string{"HARD_BLOCK: injection pattern " + p.id}}, true
		}
	}
	if e.cfg.InstructionalEnabled {
		if p, ok := firstMatch(instructionalBlockPatterns, content); ok {
			return Verdict{Action: ActionReject, RuleID: p.id,
				Reasons: []string{"HARD_BLOCK: instructional pattern " + p.id}}, true
		}
	}
	return Verdict{}, false
}

func (e *Engine) checkQuarantineInstructional(content string) (string, bool) {
	if !e.cfg.InstructionalEnabled {
		return "", false
	}
	if p, ok := firstMatch(instructionalQuarantinePatterns, content); ok {
		return "QUARANTINE: instructional pattern " + p.id, true
	}
	return "", false
}

func (e *Engine) checkPII(content string) (string, bool) {
	if !e.cfg.PIIPatternsEnabled {
		return "", false
	}
	if p, ok := firstMatch(piiPatterns, content); ok {
		return "QUARANTINE: pii pattern " + p.id, true
	}
	return "", false
}
