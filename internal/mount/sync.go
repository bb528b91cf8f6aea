// Package mount implements folder registration and the three-tier delta
// sync that keeps ingested items aligned with what's on disk without
// re-reading unchanged files (spec.md section 4.7).
package mount

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memctl/memctl/internal/ingest"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/store"
)

// Tier classifies a file against its previously recorded corpus hash.
type Tier string

const (
	TierNew        Tier = "new"         // never seen at this rel_path
	TierUnchanged  Tier = "unchanged"   // size+mtime match, skip without hashing
	TierDiffers    Tier = "differs"     // size or mtime changed, must hash to decide
)

// FileResult reports what sync did with one file.
type FileResult struct {
	RelPath string
	Tier    Tier
	Action  string // "ingested" | "skipped" | "metadata_updated" | "reingested" | "error"
	ItemIDs []string
	Err     error
}

// SyncReport summarizes one sync pass over a mount.
type SyncReport struct {
	MountID  string
	Files    []FileResult
	Orphaned []string // rel_paths previously tracked but no longer present on disk
}

// Syncer binds the store and policy engine sync needs.
type Syncer struct {
	Store  *store.Store
	Policy *policy.Engine
}

// Sync walks a mount's path, classifies every file into one of the three
// delta-sync tiers, ingests or re-ingests as needed, and archives corpus
// hash rows for files that disappeared (orphans are archived, never
// deleted — spec.md section 4.7).
func (sy *Syncer) Sync(ctx context.Context, m memory.Mount) (SyncReport, error) {
	report := SyncReport{MountID: m.ID}

	seen := map[string]bool{}
	walkErr := filepath.WalkDir(m.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(m.Path, path)
		if relErr != nil {
			return relErr
		}
		if matchesAny(rel, m.IgnorePatterns) {
			return nil
		}
		seen[rel] = true
		res := sy.syncFile(ctx, m, path, rel)
		report.Files = append(report.Files, res)
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("walk mount %s: %w", m.Path, walkErr)
	}

	tracked, err := sy.Store.ListCorpusHashes(ctx, m.ID)
	if err != nil {
		return report, err
	}
	for _, ch := range tracked {
		if ch.Archived || seen[ch.RelPath] {
			continue
		}
		if err := sy.Store.ArchiveCorpusHash(ctx, m.ID, ch.RelPath); err != nil {
			return report, err
		}
		for _, id := range ch.ItemIDs {
			_ = sy.Store.ArchiveItem(ctx, id)
		}
		report.Orphaned = append(report.Orphaned, ch.RelPath)
	}

	if err := sy.Store.TouchMountSynced(ctx, m.ID); err != nil {
		return report, err
	}
	return report, nil
}

func (sy *Syncer) syncFile(ctx context.Context, m memory.Mount, path, rel string) FileResult {
	info, err := os.Stat(path)
	if err != nil {
		return FileResult{RelPath: rel, Action: "error", Err: err}
	}

	prev, existed, err := sy.Store.GetCorpusHash(ctx, m.ID, rel)
	if err != nil {
		return FileResult{RelPath: rel, Action: "error", Err: err}
	}

	tier := TierNew
	if existed {
		if prev.SizeBytes == info.Size() && sameEpoch(prev.MtimeEpoch, info.ModTime()) {
			tier = TierUnchanged
		} else {
			tier = TierDiffers
		}
	}

	if tier == TierUnchanged {
		return FileResult{RelPath: rel, Tier: tier, Action: "skipped", ItemIDs: prev.ItemIDs}
	}

	text, err := ingest.ExtractFile(path)
	if err != nil {
		return FileResult{RelPath: rel, Tier: tier, Action: "error", Err: err}
	}
	hash := ingest.SHA256Hex(text)

	if tier == TierDiffers && existed && hash == prev.SHA256 {
		// content identical despite metadata drift — refresh metadata only
		ch := prev
		ch.SizeBytes = info.Size()
		ch.MtimeEpoch = float64(info.ModTime().Unix())
		if err := sy.Store.UpsertCorpusHash(ctx, ch); err != nil {
			return FileResult{RelPath: rel, Tier: tier, Action: "error", Err: err}
		}
		return FileResult{RelPath: rel, Tier: tier, Action: "metadata_updated", ItemIDs: prev.ItemIDs}
	}

	action := "ingested"
	if existed {
		action = "reingested"
	}

	chunks := ingest.ChunkParagraphs(text)
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		prop := ingest.BuildProposal(c, rel, nil, m.Name)
		verdict := sy.Policy.EvaluateProposal(prop)
		if verdict.Action == policy.ActionReject {
			continue
		}
		it := prop.ToItem("", memory.TierSTM, 0.5, time.Now())
		if verdict.Action == policy.ActionQuarantine {
			it.Validation = verdict.ForcedValidation
			it.ExpiresAt = verdict.ForcedExpiresAt
			it.Injectable = !verdict.ForcedNonInjectable
			it.RuleID = verdict.RuleID
		}
		written, _, err := sy.Store.WriteItem(ctx, it, verdict.WriteReason())
		if err != nil {
			return FileResult{RelPath: rel, Tier: tier, Action: "error", Err: err}
		}
		ids = append(ids, written.ID)
	}

	if existed {
		for _, old := range prev.ItemIDs {
			_ = sy.Store.ArchiveItem(ctx, old)
		}
	}

	ch := memory.CorpusHash{
		SHA256: hash, MountID: m.ID, RelPath: rel, Ext: filepath.Ext(rel),
		SizeBytes: info.Size(), MtimeEpoch: float64(info.ModTime().Unix()),
		LangHint: m.LangHint, ItemIDs: ids,
	}
	if err := sy.Store.UpsertCorpusHash(ctx, ch); err != nil {
		return FileResult{RelPath: rel, Tier: tier, Action: "error", Err: err}
	}

	return FileResult{RelPath: rel, Tier: tier, Action: action, ItemIDs: ids}
}

func sameEpoch(stored float64, t time.Time) bool {
	return int64(stored) == t.Unix()
}

func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if strings.Contains(rel, strings.TrimSuffix(strings.TrimPrefix(p, "*"), "*")) && strings.Contains(p, "*") {
			return true
		}
	}
	return false
}
