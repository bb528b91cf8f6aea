package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/consolidate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge clustered STM items into MTM and promote eligible MTM items to LTM",
		Run:   runConsolidate,
	}
	cmd.Flags().Bool("dry-run", false, "report clusters without writing merges")
	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p := consolidate.Pipeline{Store: s, Cfg: cfg.Consolidate}
	res, err := p.Run(cmd.Context(), dryRun)
	if err != nil {
		exitErr("consolidate", err)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("clusters=%d merged=%d promoted_to_ltm=%d dry_run=%v\n",
		res.ClustersFound, res.ItemsMerged, len(res.PromotedToLTM), res.DryRun)
}
