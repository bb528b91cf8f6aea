// Package memory defines the value objects at the core of memctl's store:
// items, proposals, events, links, provenance, and search metadata.
package memory

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tier is one of the three lifecycle stages an item moves through.
type Tier string

const (
	TierSTM Tier = "stm"
	TierMTM Tier = "mtm"
	TierLTM Tier = "ltm"
)

func (t Tier) Valid() bool {
	switch t {
	case TierSTM, TierMTM, TierLTM:
		return true
	}
	return false
}

// Validation marks how confident the store is that an item's claim holds.
type Validation string

const (
	ValidationUnverified Validation = "unverified"
	ValidationVerified   Validation = "verified"
	ValidationDisputed   Validation = "disputed"
)

func (v Validation) Valid() bool {
	switch v {
	case ValidationUnverified, ValidationVerified, ValidationDisputed:
		return true
	}
	return false
}

// typeMap remaps a handful of known aliases onto the canonical open
// vocabulary, mirroring the original's _TYPE_MAP silent-remap behavior.
var typeMap = map[string]string{
	"process":     "pattern",
	"rule":        "constraint",
	"requirement": "constraint",
}

// NormalizeType remaps known aliases and leaves everything else untouched;
// the type vocabulary is intentionally open (spec.md section 3).
func NormalizeType(t string) string {
	if mapped, ok := typeMap[t]; ok {
		return mapped
	}
	return t
}

// LinkRel is a typed label on a MemoryLink.
type LinkRel string

const (
	LinkSupersedes LinkRel = "supersedes"
	LinkSupports   LinkRel = "supports"
	LinkContradicts LinkRel = "contradicts"
	LinkRefines    LinkRel = "refines"
)

// Provenance records where an item's content came from.
type Provenance struct {
	SourceKind     string   `json:"source_kind"`
	SourceID       string   `json:"source_id"`
	ChunkIDs       []string `json:"chunk_ids,omitempty"`
	ContentHashes  []string `json:"content_hashes,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// HasSourceID reports whether the provenance carries a usable source
// identifier, used by the policy engine's "missing provenance" check.
func (p Provenance) HasSourceID() bool {
	return strings.TrimSpace(p.SourceID) != ""
}

// Item is the primary unit stored by memctl (spec.md section 3's
// MemoryItem).
type Item struct {
	ID             string     `json:"id"`
	Tier           Tier       `json:"tier"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Tags           []string   `json:"tags"`
	Entities       []string   `json:"entities,omitempty"`
	Links          []string   `json:"links,omitempty"`
	Provenance     Provenance `json:"provenance"`
	Confidence     float64    `json:"confidence"`
	Validation     Validation `json:"validation"`
	Scope          string     `json:"scope,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	UsageCount     int        `json:"usage_count"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RuleID         string     `json:"rule_id,omitempty"`
	CorpusID       string     `json:"corpus_id,omitempty"`
	SupersededBy   string     `json:"superseded_by,omitempty"`
	Archived       bool       `json:"archived"`
	Injectable     bool       `json:"injectable"`
}

// ContentHash returns "sha256:<hex>" for Content, matching spec.md's
// "content_hash = SHA256(content) always" invariant.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ContentHash returns the item's content hash.
func (it *Item) ContentHash() string { return ContentHash(it.Content) }

// Touch increments UsageCount and stamps LastUsedAt/UpdatedAt — called only
// when a caller opts in to the usage-count increment on read (spec.md
// section 4.1).
func (it *Item) Touch(now time.Time) {
	it.UsageCount++
	it.LastUsedAt = &now
	it.UpdatedAt = now
}

// IDMinter mints lexicographically sortable ids, matching spec.md section
// 3's "opaque, lexicographically sortable identifier". Entropy is supplied
// by the caller (store) so tests can seed it deterministically, the same
// pattern the teacher uses for its SQLiteStore.entropy field.
type IDMinter struct {
	entropy io.Reader
}

// NewIDMinter builds a minter seeded from a monotonic entropy source.
func NewIDMinter(entropy io.Reader) IDMinter {
	if entropy == nil {
		entropy = ulid.Monotonic(rand.Reader, 0)
	}
	return IDMinter{entropy: entropy}
}

// New mints a new id with the given prefix (e.g. "MEM", "EVT").
func (m IDMinter) New(prefix string) string {
	u := ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy)
	return fmt.Sprintf("%s-%s", prefix, u.String())
}

// Proposal is a candidate item awaiting policy evaluation (spec.md section
// 3's MemoryProposal): same shape as Item plus a mandatory WhyStore
// justification.
type Proposal struct {
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Tags           []string   `json:"tags,omitempty"`
	WhyStore       string     `json:"why_store"`
	ProvenanceHint Provenance `json:"provenance_hint,omitempty"`
	Scope          string     `json:"scope,omitempty"`
	RuleID         string     `json:"rule_id,omitempty"`
}

// ToItem converts an accepted proposal into a full Item at the given tier.
func (p Proposal) ToItem(id string, tier Tier, confidence float64, now time.Time) Item {
	return Item{
		ID:         id,
		Tier:       tier,
		Type:       NormalizeType(p.Type),
		Title:      p.Title,
		Content:    p.Content,
		Tags:       dedupFold(p.Tags),
		Provenance: p.ProvenanceHint,
		Confidence: confidence,
		Validation: ValidationUnverified,
		Scope:      p.Scope,
		RuleID:     p.RuleID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Injectable: true,
	}
}

func dedupFold(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		k := strings.ToLower(t)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// EventAction is the closed set of audit-event actions (spec.md section 3).
type EventAction string

const (
	EventWrite            EventAction = "write"
	EventRead             EventAction = "read"
	EventUpdate           EventAction = "update"
	EventArchive          EventAction = "archive"
	EventConsolidate      EventAction = "consolidate"
	EventSearch           EventAction = "search"
	EventLoopIter         EventAction = "loop_iter"
	EventPolicyReject     EventAction = "policy_reject"
	EventPolicyQuarantine EventAction = "policy_quarantine"
	EventReindex          EventAction = "reindex"
)

// Event is an immutable, append-only audit record.
type Event struct {
	ID          string      `json:"id"`
	Action      EventAction `json:"action"`
	ItemID      string      `json:"item_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Detail      string      `json:"detail,omitempty"`
	ContentHash string      `json:"content_hash,omitempty"`
}

// Link is a directed, typed relationship between two item ids.
type Link struct {
	SrcID     string    `json:"src_id"`
	DstID     string    `json:"dst_id"`
	Rel       LinkRel   `json:"rel"`
	CreatedAt time.Time `json:"created_at"`
}

// CorpusHash is a per-ingested-file row ensuring idempotent re-ingestion
// (spec.md section 3).
type CorpusHash struct {
	SHA256    string   `json:"sha256"`
	MountID   string   `json:"mount_id,omitempty"`
	RelPath   string   `json:"rel_path"`
	Ext       string   `json:"ext"`
	SizeBytes int64    `json:"size_bytes"`
	MtimeEpoch float64 `json:"mtime_epoch"`
	LangHint  string   `json:"lang_hint,omitempty"`
	ItemIDs   []string `json:"item_ids"`
	Archived  bool     `json:"archived"`
}

// Mount is a registered folder, the unit of scoping and delta sync.
type Mount struct {
	ID             string   `json:"id"`
	Path           string   `json:"path"`
	Name           string   `json:"name"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
	LangHint       string   `json:"lang_hint,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// SearchMeta reports how a recall query was satisfied (spec.md section
// 4.5).
type SearchMeta struct {
	Strategy          string   `json:"strategy"`
	OriginalTerms     []string `json:"original_terms"`
	EffectiveTerms    []string `json:"effective_terms"`
	DroppedTerms      []string `json:"dropped_terms,omitempty"`
	TotalCandidates   int      `json:"total_candidates"`
	MorphologicalHint string   `json:"morphological_hint,omitempty"`
}
