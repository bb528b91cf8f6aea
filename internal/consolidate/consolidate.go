// Package consolidate implements the deterministic STM-to-MTM merge pass
// and MTM-to-LTM promotion, grounded on the original implementation's
// type-and-tag clustering and longest-content-wins merge rule (spec.md
// section 4.9).
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/store"
)

// Result summarizes one consolidation run.
type Result struct {
	ClustersFound int
	ItemsMerged   int
	MergedInto    []string
	PromotedToLTM []string
	DryRun        bool
}

// Pipeline runs consolidation against a store using the given config.
type Pipeline struct {
	Store *store.Store
	Cfg   config.Consolidate
}

// Run executes the full six-step algorithm: collect eligible STM items,
// cluster them by type and tag-Jaccard distance, merge each cluster
// deterministically, archive the originals behind supersedes links, then
// re-scan MTM for usage-count or type-based promotion to LTM.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) (Result, error) {
	res := Result{DryRun: dryRun}

	stm, err := p.Store.ListItems(ctx, store.ListFilter{Tier: memory.TierSTM, Limit: 10000})
	if err != nil {
		return res, err
	}
	if len(stm) < 2 {
		return res, nil
	}

	clusters := cluster(stm, p.Cfg.ClusterDistanceThreshold)
	res.ClustersFound = len(clusters)
	if dryRun || len(clusters) == 0 {
		for _, c := range clusters {
			res.ItemsMerged += len(c)
		}
		return res, nil
	}

	for _, c := range clusters {
		merged := deterministicMerge(c)
		written, _, err := p.Store.WriteItem(ctx, merged, "consolidate: merged "+fmt.Sprint(len(c))+" items")
		if err != nil {
			return res, err
		}
		for _, old := range c {
			if old.ID == merged.ID {
				continue
			}
			if err := p.Store.SupersedeItem(ctx, old.ID, written.ID); err != nil {
				return res, err
			}
		}
		res.ItemsMerged += len(c)
		res.MergedInto = append(res.MergedInto, written.ID)
	}

	mtm, err := p.Store.ListItems(ctx, store.ListFilter{Tier: memory.TierMTM, Limit: 10000})
	if err != nil {
		return res, err
	}
	autoTypes := toSet(p.Cfg.AutoPromoteTypes)
	for _, it := range mtm {
		if it.UsageCount >= p.Cfg.UsageCountForLTM || autoTypes[it.Type] {
			it.Tier = memory.TierLTM
			if err := p.Store.UpdateItem(ctx, it); err != nil {
				return res, err
			}
			res.PromotedToLTM = append(res.PromotedToLTM, it.ID)
		}
	}

	return res, nil
}

// cluster groups items by exact type match, then greedily from each
// unclustered seed item pulls in any other item whose tag-Jaccard
// distance to the SEED (not pairwise to every member) is within
// threshold — the exact single-linkage-from-seed mechanic the original
// implementation uses, preserved deliberately rather than "improved" to
// true pairwise single-linkage.
func cluster(items []memory.Item, threshold float64) [][]memory.Item {
	byType := map[string][]memory.Item{}
	for _, it := range items {
		byType[it.Type] = append(byType[it.Type], it)
	}

	var clusters [][]memory.Item
	for _, bucket := range byType {
		used := make([]bool, len(bucket))
		for i := range bucket {
			if used[i] {
				continue
			}
			seed := bucket[i]
			group := []memory.Item{seed}
			used[i] = true
			for j := i + 1; j < len(bucket); j++ {
				if used[j] {
					continue
				}
				if jaccard(seed.Tags, bucket[j].Tags) >= (1 - threshold) {
					group = append(group, bucket[j])
					used[j] = true
				}
			}
			if len(group) >= 2 {
				clusters = append(clusters, group)
			}
		}
	}
	return clusters
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	setA := toSet(a)
	setB := toSet(b)
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// deterministicMerge picks the longest-content item as the base, sorted
// by (-len(content), created_at, id) to break ties deterministically, and
// unions tags/entities from every member into the merged result, tagged
// into MTM.
func deterministicMerge(cluster []memory.Item) memory.Item {
	sorted := make([]memory.Item, len(cluster))
	copy(sorted, cluster)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].Content) != len(sorted[j].Content) {
			return len(sorted[i].Content) > len(sorted[j].Content)
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	base := sorted[0]
	tagSet := map[string]bool{}
	entSet := map[string]bool{}
	for _, it := range cluster {
		for _, t := range it.Tags {
			tagSet[t] = true
		}
		for _, e := range it.Entities {
			entSet[e] = true
		}
	}

	merged := base
	merged.ID = ""
	merged.Tier = memory.TierMTM
	merged.Tags = setToSortedSlice(tagSet)
	merged.Entities = setToSortedSlice(entSet)
	merged.CreatedAt = time.Now()
	merged.UpdatedAt = merged.CreatedAt
	merged.UsageCount = 0
	return merged
}

func setToSortedSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
