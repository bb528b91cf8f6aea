package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/memory.db", store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeSTM(t *testing.T, s *store.Store, typ, content string, tags []string) memory.Item {
	t.Helper()
	now := time.Now()
	it := memory.Item{Tier: memory.TierSTM, Type: typ, Content: content, Tags: tags, CreatedAt: now, UpdatedAt: now, Injectable: true}
	written, _, err := s.WriteItem(context.Background(), it, "test")
	if err != nil {
		t.Fatalf("write item: %v", err)
	}
	return written
}

func TestRunMergesSimilarSTMItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeSTM(t, s, "note", "short", []string{"go", "build"})
	writeSTM(t, s, "note", "a much longer piece of content describing the same thing", []string{"go", "build"})

	p := &Pipeline{Store: s, Cfg: config.Defaults().Consolidate}
	res, err := p.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ClustersFound != 1 {
		t.Fatalf("expected 1 cluster, got %d", res.ClustersFound)
	}
	if len(res.MergedInto) != 1 {
		t.Fatalf("expected 1 merged item, got %d", len(res.MergedInto))
	}

	merged, err := s.ReadItem(ctx, res.MergedInto[0], false)
	if err != nil {
		t.Fatalf("read merged item: %v", err)
	}
	if merged.Tier != memory.TierMTM {
		t.Fatalf("expected merged item promoted to MTM, got %q", merged.Tier)
	}
	if merged.Content != "a much longer piece of content describing the same thing" {
		t.Fatalf("expected longest-content-wins merge, got %q", merged.Content)
	}
}

func TestRunDryRunDoesNotWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeSTM(t, s, "note", "short", []string{"go"})
	writeSTM(t, s, "note", "longer content about the same go thing", []string{"go"})

	p := &Pipeline{Store: s, Cfg: config.Defaults().Consolidate}
	res, err := p.Run(ctx, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ClustersFound != 1 || len(res.MergedInto) != 0 {
		t.Fatalf("expected a dry run to count clusters but write nothing, got %+v", res)
	}

	n, err := s.CountItems(ctx, memory.TierMTM)
	if err != nil {
		t.Fatalf("count items: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no MTM items after a dry run, got %d", n)
	}
}

func TestRunDistinctTypesDoNotCluster(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeSTM(t, s, "note", "same tags different type a", []string{"x"})
	writeSTM(t, s, "decision", "same tags different type b", []string{"x"})

	p := &Pipeline{Store: s, Cfg: config.Defaults().Consolidate}
	res, err := p.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ClustersFound != 0 {
		t.Fatalf("expected no clusters across distinct types, got %d", res.ClustersFound)
	}
}

func TestRunFewerThanTwoSTMItemsIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writeSTM(t, s, "note", "only one item", []string{"x"})

	p := &Pipeline{Store: s, Cfg: config.Defaults().Consolidate}
	res, err := p.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ClustersFound != 0 {
		t.Fatalf("expected no-op with fewer than 2 STM items, got %+v", res)
	}
}

func TestRunPromotesMTMByAutoPromoteType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	it := memory.Item{Tier: memory.TierMTM, Type: "decision", Content: "ship with postgres", CreatedAt: now, UpdatedAt: now}
	written, _, err := s.WriteItem(ctx, it, "test")
	if err != nil {
		t.Fatalf("write item: %v", err)
	}

	p := &Pipeline{Store: s, Cfg: config.Defaults().Consolidate}
	res, err := p.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	found := false
	for _, id := range res.PromotedToLTM {
		if id == written.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the decision-typed MTM item to auto-promote to LTM, got %+v", res.PromotedToLTM)
	}
}
