package inspect

import (
	"context"
	"testing"

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

func TestStalenessCheckNoChanges(t *testing.T) {
	recorded := []memory.CorpusHash{{RelPath: "a.md", SizeBytes: 10, MtimeEpoch: 100}}
	onDisk := []memory.CorpusHash{{RelPath: "a.md", SizeBytes: 10, MtimeEpoch: 100}}
	if StalenessCheck(recorded, onDisk) {
		t.Fatal("expected no staleness when recorded matches on-disk exactly")
	}
}

func TestStalenessCheckDetectsSizeChange(t *testing.T) {
	recorded := []memory.CorpusHash{{RelPath: "a.md", SizeBytes: 10, MtimeEpoch: 100}}
	onDisk := []memory.CorpusHash{{RelPath: "a.md", SizeBytes: 20, MtimeEpoch: 100}}
	if !StalenessCheck(recorded, onDisk) {
		t.Fatal("expected staleness when size changed")
	}
}

func TestStalenessCheckDetectsNewFile(t *testing.T) {
	recorded := []memory.CorpusHash{{RelPath: "a.md", SizeBytes: 10, MtimeEpoch: 100}}
	onDisk := []memory.CorpusHash{
		{RelPath: "a.md", SizeBytes: 10, MtimeEpoch: 100},
		{RelPath: "b.md", SizeBytes: 5, MtimeEpoch: 100},
	}
	if !StalenessCheck(recorded, onDisk) {
		t.Fatal("expected staleness when a new file appears on disk")
	}
}

func TestStalenessCheckIgnoresArchivedRecords(t *testing.T) {
	recorded := []memory.CorpusHash{{RelPath: "gone.md", SizeBytes: 1, MtimeEpoch: 1, Archived: true}}
	onDisk := []memory.CorpusHash{}
	if StalenessCheck(recorded, onDisk) {
		t.Fatal("expected an archived recorded row to not count toward staleness")
	}
}

func TestBuildComputesDigestAndObservations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, _ := s.AddMount(ctx, memory.Mount{Path: "/repo", Name: "repo"})

	for i := 0; i < 9; i++ {
		s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "h", MountID: m.ID, RelPath: "f" + string(rune('a'+i)) + ".go", Ext: ".go", ItemIDs: []string{"MEM-1"}})
	}
	s.UpsertCorpusHash(ctx, memory.CorpusHash{SHA256: "h", MountID: m.ID, RelPath: "f.md", Ext: ".md", ItemIDs: []string{"MEM-2"}})

	cfg := config.Defaults().Inspect
	d, err := Build(ctx, s, cfg, m)
	if err != nil {
		t.Fatalf("build digest: %v", err)
	}
	if d.TotalFiles != 10 {
		t.Fatalf("expected 10 files, got %d", d.TotalFiles)
	}
	if d.ByExtension[".go"] != 9 {
		t.Fatalf("expected 9 .go files, got %d", d.ByExtension[".go"])
	}

	foundDominance := false
	for _, o := range d.Observations {
		if o.Rule == "extension-dominance" {
			foundDominance = true
		}
	}
	if !foundDominance {
		t.Fatalf("expected extension-dominance observation for a 90%% .go corpus, got %+v", d.Observations)
	}
}

func TestBuildEmptyMountHasNoObservations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m, _ := s.AddMount(ctx, memory.Mount{Path: "/empty", Name: "empty"})

	d, err := Build(ctx, s, config.Defaults().Inspect, m)
	if err != nil {
		t.Fatalf("build digest: %v", err)
	}
	if len(d.Observations) != 0 {
		t.Fatalf("expected no observations for an empty mount, got %+v", d.Observations)
	}
}

func TestFormatTextIncludesExtensionsAndObservations(t *testing.T) {
	d := Digest{
		MountID: "MNT-1", TotalFiles: 2, TotalItems: 2,
		ByExtension:  map[string]int{".go": 2},
		Observations: []Observation{{Rule: "sparse-corpus", Detail: "only 2 file(s) tracked"}},
	}
	text := FormatText(d)
	if !contains(text, "MNT-1") || !contains(text, ".go: 2") || !contains(text, "sparse-corpus") {
		t.Fatalf("expected formatted text to include mount id, extensions, and observations, got %q", text)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
