package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/mount"
)

func init() {
	cmd := &cobra.Command{
		Use:   "inspect [mount-id]",
		Short: "Digest a mounted corpus and surface structural observations",
		Args:  cobra.ExactArgs(1),
		Run:   runInspect,
	}
	cmd.Flags().String("sync-mode", "auto", "auto: sync only if stale | always | never")
	RootCmd.AddCommand(cmd)
}

func runInspect(cmd *cobra.Command, args []string) {
	syncMode, _ := cmd.Flags().GetString("sync-mode")
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.GetMount(cmd.Context(), args[0])
	if err != nil {
		exitErr("inspect", err)
	}

	if inspect.SyncMode(syncMode) != inspect.SyncNever {
		if inspect.SyncMode(syncMode) == inspect.SyncAlways || mountIsStale(cmd, s, m) {
			sy := &mount.Syncer{Store: s, Policy: openPolicy(cfg.Policy)}
			if _, err := sy.Sync(cmd.Context(), m); err != nil {
				exitErr("inspect (pre-sync)", err)
			}
		}
	}

	d, err := inspect.Build(cmd.Context(), s, cfg.Inspect, m)
	if err != nil {
		exitErr("inspect", err)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(d, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Print(inspect.FormatText(d))
}
