package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/mount"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sync [id]",
		Short: "Run one delta-sync pass over a mount (all mounts if no id given)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSync,
	}
	RootCmd.AddCommand(cmd)
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mounts, err := s.ListMounts(cmd.Context())
	if err != nil {
		exitErr("sync", err)
	}
	if len(args) == 1 {
		filtered := mounts[:0]
		for _, m := range mounts {
			if m.ID == args[0] {
				filtered = append(filtered, m)
			}
		}
		mounts = filtered
		if len(mounts) == 0 {
			exitErr("sync", fmt.Errorf("no such mount: %s", args[0]))
		}
	}

	sy := &mount.Syncer{Store: s, Policy: openPolicy(cfg.Policy)}
	reports := make([]any, 0, len(mounts))
	for _, m := range mounts {
		report, err := sy.Sync(cmd.Context(), m)
		if err != nil {
			exitErr("sync "+m.ID, err)
		}
		reports = append(reports, report)

		if !jsonOutput {
			ingested, skipped, errored := 0, 0, 0
			for _, f := range report.Files {
				switch f.Action {
				case "ingested", "reingested":
					ingested++
				case "skipped":
					skipped++
				case "error":
					errored++
				}
			}
			fmt.Printf("%s  ingested=%d skipped=%d orphaned=%d errors=%d\n",
				m.Path, ingested, skipped, len(report.Orphaned), errored)
		}
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(reports, "", "  ")
		fmt.Println(string(b))
	}
}
