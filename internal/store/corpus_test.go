package store

import (
	"context"
	"testing"

	"github.com/memctl/memctl/internal/memory"
)

func TestUpsertAndGetCorpusHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := memory.CorpusHash{SHA256: "abc123", MountID: "MNT-1", RelPath: "notes.md", Ext: ".md", SizeBytes: 42, ItemIDs: []string{"MEM-1"}}
	if err := s.UpsertCorpusHash(ctx, ch); err != nil {
		t.Fatalf("upsert corpus hash: %v", err)
	}

	got, found, err := s.GetCorpusHash(ctx, "MNT-1", "notes.md")
	if err != nil {
		t.Fatalf("get corpus hash: %v", err)
	}
	if !found {
		t.Fatal("expected to find the corpus hash row")
	}
	if got.SHA256 != "abc123" || got.SizeBytes != 42 {
		t.Fatalf("unexpected corpus hash row %+v", got)
	}
}

func TestUpsertCorpusHashOverwritesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "v1", MountID: "MNT-1", RelPath: "f.md", SizeBytes: 1})
	s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "v2", MountID: "MNT-1", RelPath: "f.md", SizeBytes: 2})

	got, _, err := s.GetCorpusHash(ctx, "MNT-1", "f.md")
	if err != nil {
		t.Fatalf("get corpus hash: %v", err)
	}
	if got.SHA256 != "v2" || got.SizeBytes != 2 {
		t.Fatalf("expected the second upsert to win, got %+v", got)
	}
}

func TestListCorpusHashesByMount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "a", MountID: "MNT-1", RelPath: "a.md"})
	s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "b", MountID: "MNT-1", RelPath: "b.md"})
	s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "c", MountID: "MNT-2", RelPath: "c.md"})

	hashes, err := s.ListCorpusHashes(ctx, "MNT-1")
	if err != nil {
		t.Fatalf("list corpus hashes: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 rows scoped to MNT-1, got %d", len(hashes))
	}
}

func TestArchiveCorpusHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "a", MountID: "MNT-1", RelPath: "a.md"})

	if err := s.ArchiveCorpusHash(ctx, "MNT-1", "a.md"); err != nil {
		t.Fatalf("archive corpus hash: %v", err)
	}
	got, _, err := s.GetCorpusHash(ctx, "MNT-1", "a.md")
	if err != nil {
		t.Fatalf("get corpus hash: %v", err)
	}
	if !got.Archived {
		t.Fatal("expected the corpus hash row to be marked archived")
	}
}
