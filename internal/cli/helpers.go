package cli

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/store"
)

func tierOrEmpty(s string) memory.Tier {
	if s == "" {
		return ""
	}
	return memory.Tier(s)
}

// mountIsStale walks the mount's path on disk and compares the resulting
// (path, size, mtime) triples against the store's recorded corpus_hashes
// rows, so `inspect --sync-mode=auto` only pays for a sync when the
// filesystem has actually moved since the last one.
func mountIsStale(cmd *cobra.Command, s *store.Store, m memory.Mount) bool {
	recorded, err := s.ListCorpusHashes(cmd.Context(), m.ID)
	if err != nil {
		return true
	}

	var onDisk []memory.CorpusHash
	_ = filepath.WalkDir(m.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(m.Path, path)
		if relErr != nil {
			return nil
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			return nil
		}
		onDisk = append(onDisk, memory.CorpusHash{
			RelPath:    rel,
			SizeBytes:  info.Size(),
			MtimeEpoch: float64(info.ModTime().Unix()),
		})
		return nil
	})

	return inspect.StalenessCheck(recorded, onDisk)
}
