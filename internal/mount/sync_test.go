package mount

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/store"
)

func newTestSyncer(t *testing.T) *Syncer {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/memory.db", store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &Syncer{Store: s, Policy: policy.New(config.Defaults().Policy)}
}

func TestMatchesAny(t *testing.T) {
	if !matchesAny("node_modules/x.js", []string{"node_modules/*"}) {
		t.Fatal("expected a glob pattern to match")
	}
	if matchesAny("src/main.go", []string{"node_modules/*"}) {
		t.Fatal("expected an unrelated path not to match")
	}
}

func TestSameEpoch(t *testing.T) {
	now := time.Now()
	if !sameEpoch(float64(now.Unix()), now) {
		t.Fatal("expected identical unix seconds to match")
	}
	if sameEpoch(float64(now.Unix()-100), now) {
		t.Fatal("expected differing unix seconds not to match")
	}
}

func TestSyncIngestsNewFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("a first paragraph worth remembering.\n\nand a second one here too."), 0644)

	sy := newTestSyncer(t)
	ctx := context.Background()
	m, err := sy.Store.AddMount(ctx, memory.Mount{Path: dir, Name: "notes"})
	if err != nil {
		t.Fatalf("add mount: %v", err)
	}

	report, err := sy.Sync(ctx, m)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(report.Files) != 1 || report.Files[0].Action != "ingested" {
		t.Fatalf("expected one freshly ingested file, got %+v", report.Files)
	}
}

func TestSyncSkipsUnchangedFileOnSecondPass(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("stable content that does not change between passes."), 0644)

	sy := newTestSyncer(t)
	ctx := context.Background()
	m, _ := sy.Store.AddMount(ctx, memory.Mount{Path: dir, Name: "notes"})

	if _, err := sy.Sync(ctx, m); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	report, err := sy.Sync(ctx, m)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(report.Files) != 1 || report.Files[0].Action != "skipped" {
		t.Fatalf("expected the unchanged file skipped on the second pass, got %+v", report.Files)
	}
}

func TestSyncArchivesOrphanedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	os.WriteFile(path, []byte("will be removed before the next sync."), 0644)

	sy := newTestSyncer(t)
	ctx := context.Background()
	m, _ := sy.Store.AddMount(ctx, memory.Mount{Path: dir, Name: "notes"})
	if _, err := sy.Sync(ctx, m); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	os.Remove(path)
	report, err := sy.Sync(ctx, m)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(report.Orphaned) != 1 || report.Orphaned[0] != "gone.txt" {
		t.Fatalf("expected gone.txt reported as orphaned, got %+v", report.Orphaned)
	}

	hashes, err := sy.Store.ListCorpusHashes(ctx, m.ID)
	if err != nil {
		t.Fatalf("list corpus hashes: %v", err)
	}
	for _, h := range hashes {
		if h.RelPath == "gone.txt" && !h.Archived {
			t.Fatal("expected the orphaned corpus hash row to be archived, not deleted")
		}
	}
}

func TestSyncReingestsOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	os.WriteFile(path, []byte("original paragraph content for the first version."), 0644)

	sy := newTestSyncer(t)
	ctx := context.Background()
	m, _ := sy.Store.AddMount(ctx, memory.Mount{Path: dir, Name: "notes"})
	sy.Sync(ctx, m)

	time.Sleep(10 * time.Millisecond)
	os.WriteFile(path, []byte("a completely different paragraph of content for the second version."), 0644)

	report, err := sy.Sync(ctx, m)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(report.Files) != 1 || report.Files[0].Action != "reingested" {
		t.Fatalf("expected the changed file reingested, got %+v", report.Files)
	}
}
