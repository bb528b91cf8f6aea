package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/memctl/memctl/internal/memory"
)

// SearchOptions bounds and scopes a full-text search.
type SearchOptions struct {
	Scope           string
	Tier            memory.Tier
	Type            string
	Limit           int
	IncludeArchived bool
}

// SearchFulltext runs the deterministic five-step cascade over the FTS5
// index: AND, then REDUCED_AND (drop the shortest term), then PREFIX_AND
// (terms of five characters or more, skipped when the configured
// tokenizer stems), then an OR fallback ranked by term coverage, then a
// plain substring LIKE scan. Each step only runs if the previous one
// produced zero rows (spec.md section 4.5).
func (s *Store) SearchFulltext(ctx context.Context, rawQuery string, opts SearchOptions) ([]memory.Item, memory.SearchMeta, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	terms := tokenizeQuery(rawQuery)
	meta := memory.SearchMeta{OriginalTerms: terms, EffectiveTerms: terms}
	if len(terms) == 0 {
		return nil, meta, nil
	}

	stemming := strings.Contains(s.tokenizer, "porter")

	// Step 1: AND
	items, err := s.ftsQuery(ctx, andMatch(terms), opts, limit)
	if err != nil {
		return nil, meta, err
	}
	if len(items) > 0 {
		meta.Strategy = "AND"
		meta.TotalCandidates = len(items)
		return items, meta, nil
	}

	// Step 2: REDUCED_AND — drop the shortest term (leftmost on ties) and
	// retry, dropping one more term each pass, until success or a single
	// term remains.
	reduced := terms
	var allDropped []string
	for len(reduced) > 1 {
		var dropped string
		reduced, dropped = dropShortest(reduced)
		allDropped = append(allDropped, dropped)

		items, err = s.ftsQuery(ctx, andMatch(reduced), opts, limit)
		if err != nil {
			return nil, meta, err
		}
		if len(items) > 0 {
			meta.Strategy = "REDUCED_AND"
			meta.EffectiveTerms = reduced
			meta.DroppedTerms = allDropped
			meta.TotalCandidates = len(items)
			return items, meta, nil
		}
	}

	// Step 3: PREFIX_AND — terms >= 5 chars become prefix matches, skipped
	// entirely when the tokenizer already stems (porter).
	if !stemming {
		prefixable := filterLen(terms, 5)
		if len(prefixable) > 0 {
			items, err = s.ftsQuery(ctx, prefixMatch(prefixable), opts, limit)
			if err != nil {
				return nil, meta, err
			}
			if len(items) > 0 {
				meta.Strategy = "PREFIX_AND"
				meta.EffectiveTerms = prefixable
				meta.MorphologicalHint = "prefix"
				meta.TotalCandidates = len(items)
				return items, meta, nil
			}
		}
	}

	// Step 4: OR_FALLBACK — union of all terms, ranked by how many
	// distinct terms each row actually matched.
	items, err = s.ftsQuery(ctx, orMatch(terms), opts, limit*4)
	if err != nil {
		return nil, meta, err
	}
	if len(items) > 0 {
		ranked := rankByCoverage(items, terms)
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		meta.Strategy = "OR_FALLBACK"
		meta.TotalCandidates = len(items)
		return ranked, meta, nil
	}

	// Step 5: LIKE — last-resort substring scan, no tokenizer involved.
	items, err = s.likeSearch(ctx, terms, opts, limit)
	if err != nil {
		return nil, meta, err
	}
	meta.Strategy = "LIKE"
	meta.TotalCandidates = len(items)
	return items, meta, nil
}

func (s *Store) ftsQuery(ctx context.Context, matchExpr string, opts SearchOptions, limit int) ([]memory.Item, error) {
	where := []string{"memory_items_fts MATCH ?"}
	args := []interface{}{matchExpr}
	if !opts.IncludeArchived {
		where = append(where, "m.archived = 0")
	}
	if opts.Scope != "" {
		where = append(where, "m.scope = ?")
		args = append(args, opts.Scope)
	}
	if opts.Tier != "" {
		where = append(where, "m.tier = ?")
		args = append(args, string(opts.Tier))
	}
	q := fmt.Sprintf(`
		SELECT m.id, m.tier, m.type, m.title, m.content, m.content_hash, m.tags, m.entities, m.provenance,
		       m.confidence, m.validation, m.scope, m.expires_at, m.usage_count, m.last_used_at,
		       m.created_at, m.updated_at, m.rule_id, m.corpus_id, m.superseded_by, m.archived, m.injectable
		FROM memory_items_fts f
		JOIN memory_items m ON m.rowid = f.rowid
		WHERE %s
		ORDER BY bm25(memory_items_fts)
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		// FTS5 raises an error on a degenerate MATCH expression (e.g. all
		// terms dropped); callers treat that the same as zero rows.
		return nil, nil
	}
	defer rows.Close()

	var out []memory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) likeSearch(ctx context.Context, terms []string, opts SearchOptions, limit int) ([]memory.Item, error) {
	where := []string{}
	args := []interface{}{}
	for _, t := range terms {
		where = append(where, "(content LIKE ? OR title LIKE ? OR tags LIKE ?)")
		pat := "%" + t + "%"
		args = append(args, pat, pat, pat)
	}
	clause := strings.Join(where, " OR ")
	if !opts.IncludeArchived {
		clause = "(" + clause + ") AND archived = 0"
	}
	if opts.Scope != "" {
		clause += " AND scope = ?"
		args = append(args, opts.Scope)
	}
	if opts.Tier != "" {
		clause += " AND tier = ?"
		args = append(args, string(opts.Tier))
	}
	q := itemSelectSQL + ` WHERE ` + clause + ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// tokenizeQuery splits a raw query into lowercase terms, dropping anything
// that isn't alphanumeric-ish to keep FTS5 MATCH syntax safe.
func tokenizeQuery(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		t := sanitizeTerm(f)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func sanitizeTerm(term string) string {
	var b strings.Builder
	for _, r := range term {
		if r == '"' || r == '*' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func quoteTerm(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

func andMatch(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = quoteTerm(t)
	}
	return strings.Join(quoted, " AND ")
}

func orMatch(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = quoteTerm(t)
	}
	return strings.Join(quoted, " OR ")
}

func prefixMatch(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = quoteTerm(t) + "*"
	}
	return strings.Join(quoted, " AND ")
}

// dropShortest removes the shortest term from terms (later position wins
// ties, matching the original cascade's drop-order tie-break) and returns
// the remainder plus the dropped term.
func dropShortest(terms []string) (remaining []string, dropped string) {
	idx := 0
	for i, t := range terms {
		if len(t) <= len(terms[idx]) {
			idx = i
		}
	}
	dropped = terms[idx]
	remaining = make([]string, 0, len(terms)-1)
	for i, t := range terms {
		if i != idx {
			remaining = append(remaining, t)
		}
	}
	return remaining, dropped
}

func filterLen(terms []string, min int) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if len(t) >= min {
			out = append(out, t)
		}
	}
	return out
}

// rankByCoverage orders OR_FALLBACK results by how many distinct query
// terms appear in title+content, descending; ties keep FTS's own order.
func rankByCoverage(items []memory.Item, terms []string) []memory.Item {
	type scored struct {
		item     memory.Item
		coverage int
		pos      int
	}
	scoredItems := make([]scored, len(items))
	for i, it := range items {
		hay := strings.ToLower(it.Title + " " + it.Content)
		count := 0
		for _, t := range terms {
			if strings.Contains(hay, strings.ToLower(t)) {
				count++
			}
		}
		scoredItems[i] = scored{item: it, coverage: count, pos: i}
	}
	sort.SliceStable(scoredItems, func(a, b int) bool {
		if scoredItems[a].coverage != scoredItems[b].coverage {
			return scoredItems[a].coverage > scoredItems[b].coverage
		}
		return scoredItems[a].pos < scoredItems[b].pos
	})
	out := make([]memory.Item, len(scoredItems))
	for i, s := range scoredItems {
		out[i] = s.item
	}
	return out
}
