package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per tier",
		Run:   runStats,
	}
	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats := map[string]int{}
	for _, tier := range []memory.Tier{memory.TierSTM, memory.TierMTM, memory.TierLTM} {
		n, err := s.CountItems(cmd.Context(), tier)
		if err != nil {
			exitErr("stats", err)
		}
		stats[string(tier)] = n
	}
	total, err := s.CountItems(cmd.Context(), "")
	if err != nil {
		exitErr("stats", err)
	}
	stats["total"] = total

	var dbSize string
	if info, err := os.Stat(cfg.Store.DBPath); err == nil {
		dbSize = humanize.Bytes(uint64(info.Size()))
	}

	if jsonOutput {
		out := map[string]any{}
		for k, v := range stats {
			out[k] = v
		}
		if dbSize != "" {
			out["db_size"] = dbSize
		}
		b, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(b))
		return
	}
	for _, tier := range []string{"stm", "mtm", "ltm", "total"} {
		fmt.Printf("%-6s %d\n", tier, stats[tier])
	}
	if dbSize != "" {
		fmt.Printf("%-6s %s\n", "db", dbSize)
	}
}
