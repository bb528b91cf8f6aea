package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Export items as JSON Lines, one record per line, to stdout or a file",
		Args:  cobra.MaximumNArgs(1),
		Run:   runExport,
	}
	cmd.Flags().String("tier", "", "restrict to one tier: stm | mtm | ltm")
	cmd.Flags().String("type", "", "restrict to one item type")
	cmd.Flags().String("scope", "", "restrict to one scope")
	cmd.Flags().Bool("include-archived", false, "include archived items")
	cmd.Flags().Int("limit", 100000, "maximum items to export")
	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")
	typ, _ := cmd.Flags().GetString("type")
	scope, _ := cmd.Flags().GetString("scope")
	includeArchived, _ := cmd.Flags().GetBool("include-archived")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	items, err := s.ListItems(cmd.Context(), store.ListFilter{
		Tier: tierOrEmpty(tier), Type: typ, Scope: scope,
		IncludeArchived: includeArchived, Limit: limit,
	})
	if err != nil {
		exitErr("export", err)
	}

	out := os.Stdout
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			exitErr("export", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			exitErr("export", err)
		}
	}
	fmt.Fprintf(os.Stderr, "exported %d items\n", len(items))
}
