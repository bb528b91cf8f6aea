package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/query"
	"github.com/memctl/memctl/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run the deterministic full-text recall cascade",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}
	cmd.Flags().String("scope", "", "restrict to a scope")
	cmd.Flags().String("tier", "", "restrict to a tier: stm, mtm, ltm")
	cmd.Flags().Int("limit", 20, "max results")
	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	raw := strings.Join(args, " ")
	scope, _ := cmd.Flags().GetString("scope")
	tier, _ := cmd.Flags().GetString("tier")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	normalized := query.Normalize(raw)
	items, meta, err := s.SearchFulltext(cmd.Context(), normalized, store.SearchOptions{
		Scope: scope, Tier: tierOrEmpty(tier), Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(struct {
			Meta  any `json:"meta"`
			Items any `json:"items"`
		}{meta, items}, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("strategy=%s matched=%d\n", meta.Strategy, len(items))
	for _, it := range items {
		fmt.Printf("%s  [%s] %s — %s\n", it.ID, it.Tier, it.Type, firstLine(it.Title, it.Content))
	}
}

func firstLine(title, content string) string {
	if title != "" {
		return title
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 80 {
				return line[:80]
			}
			return line
		}
	}
	return ""
}
