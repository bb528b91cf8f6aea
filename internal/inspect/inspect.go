// Package inspect builds a deterministic digest of a mounted corpus and
// flags a handful of frozen-threshold structural observations, plus the
// staleness check that decides whether inspect should auto-sync first
// (spec.md section 4.8).
package inspect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/store"
)

// Digest is the deterministic summary of one mount's corpus.
type Digest struct {
	MountID        string         `json:"mount_id"`
	TotalFiles     int            `json:"total_files"`
	TotalItems     int            `json:"total_items"`
	ByExtension    map[string]int `json:"by_extension"`
	Observations   []Observation  `json:"observations"`
}

// Observation is one triggered structural-threshold rule.
type Observation struct {
	Rule    string `json:"rule"`
	Detail  string `json:"detail"`
}

// SyncMode controls whether Run auto-syncs before digesting.
type SyncMode string

const (
	SyncAuto   SyncMode = "auto"
	SyncAlways SyncMode = "always"
	SyncNever  SyncMode = "never"
)

// StalenessCheck reports whether the on-disk (path, size, mtime) triples
// for a mount still match what's recorded in corpus_hashes. Any mismatch
// or addition/removal counts as stale.
func StalenessCheck(recorded []memory.CorpusHash, onDisk []memory.CorpusHash) bool {
	rec := make(map[string]memory.CorpusHash, len(recorded))
	for _, c := range recorded {
		if !c.Archived {
			rec[c.RelPath] = c
		}
	}
	disk := make(map[string]memory.CorpusHash, len(onDisk))
	for _, c := range onDisk {
		disk[c.RelPath] = c
	}
	if len(rec) != len(disk) {
		return true
	}
	for path, d := range disk {
		r, ok := rec[path]
		if !ok {
			return true
		}
		if r.SizeBytes != d.SizeBytes || int64(r.MtimeEpoch) != int64(d.MtimeEpoch) {
			return true
		}
	}
	return false
}

// Build computes the deterministic digest for a mount from its live
// corpus_hashes rows and item counts already in the store.
func Build(ctx context.Context, st *store.Store, cfg config.Inspect, m memory.Mount) (Digest, error) {
	hashes, err := st.ListCorpusHashes(ctx, m.ID)
	if err != nil {
		return Digest{}, err
	}

	d := Digest{MountID: m.ID, ByExtension: map[string]int{}}
	itemCount := 0
	for _, h := range hashes {
		if h.Archived {
			continue
		}
		d.TotalFiles++
		ext := h.Ext
		if ext == "" {
			ext = "(none)"
		}
		d.ByExtension[ext]++
		itemCount += len(h.ItemIDs)
	}
	d.TotalItems = itemCount

	d.Observations = observe(cfg, d)
	return d, nil
}

// observe runs the four frozen-threshold rules against a computed digest,
// in a fixed order so output is reproducible across runs.
func observe(cfg config.Inspect, d Digest) []Observation {
	var out []Observation

	if d.TotalFiles == 0 {
		return out
	}

	// Rule 1: extension dominance — one extension accounts for more than
	// DominanceFrac of all files.
	if ext, frac := dominantExt(d.ByExtension, d.TotalFiles); frac >= cfg.DominanceFrac {
		out = append(out, Observation{
			Rule:   "extension-dominance",
			Detail: fmt.Sprintf("%s accounts for %.0f%% of files", ext, frac*100),
		})
	}

	// Rule 2: low item density — fewer items than files*LowDensityThreshold
	// suggests most files produced no retained items.
	density := float64(d.TotalItems) / float64(d.TotalFiles)
	if density < cfg.LowDensityThreshold {
		out = append(out, Observation{
			Rule:   "low-item-density",
			Detail: fmt.Sprintf("%.2f items per file, below threshold %.2f", density, cfg.LowDensityThreshold),
		})
	}

	// Rule 3: extension concentration among the extensions that do
	// produce items — proxy via file share again, frozen at
	// ExtConcentrationFrac for the top two extensions combined.
	if frac := top2ExtFrac(d.ByExtension, d.TotalFiles); frac >= cfg.ExtConcentrationFrac {
		out = append(out, Observation{
			Rule:   "extension-concentration",
			Detail: fmt.Sprintf("top two extensions cover %.0f%% of files", frac*100),
		})
	}

	// Rule 4: sparse corpus — total file count at or below SparseThreshold.
	if d.TotalFiles <= cfg.SparseThreshold {
		out = append(out, Observation{
			Rule:   "sparse-corpus",
			Detail: fmt.Sprintf("only %d file(s) tracked", d.TotalFiles),
		})
	}

	return out
}

func dominantExt(byExt map[string]int, total int) (string, float64) {
	var best string
	var bestN int
	for ext, n := range byExt {
		if n > bestN || (n == bestN && ext < best) {
			best, bestN = ext, n
		}
	}
	if total == 0 {
		return best, 0
	}
	return best, float64(bestN) / float64(total)
}

func top2ExtFrac(byExt map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}
	exts := make([]string, 0, len(byExt))
	for e := range byExt {
		exts = append(exts, e)
	}
	sort.Slice(exts, func(i, j int) bool {
		if byExt[exts[i]] != byExt[exts[j]] {
			return byExt[exts[i]] > byExt[exts[j]]
		}
		return exts[i] < exts[j]
	})
	sum := 0
	for i := 0; i < len(exts) && i < 2; i++ {
		sum += byExt[exts[i]]
	}
	return float64(sum) / float64(total)
}

// FormatText renders the digest as the mount-relative-path-only plain
// text report surfaced by `memctl inspect`.
func FormatText(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "mount %s: %d files, %d items\n", d.MountID, d.TotalFiles, d.TotalItems)
	exts := make([]string, 0, len(d.ByExtension))
	for e := range d.ByExtension {
		exts = append(exts, e)
	}
	sort.Strings(exts)
	for _, e := range exts {
		fmt.Fprintf(&b, "  %s: %d\n", e, d.ByExtension[e])
	}
	for _, o := range d.Observations {
		fmt.Fprintf(&b, "observation: %s — %s\n", o.Rule, o.Detail)
	}
	return b.String()
}
