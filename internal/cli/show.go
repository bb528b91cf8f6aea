package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a single item by id",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}
	cmd.Flags().Bool("touch", false, "increment usage_count and last_used_at on read")
	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	touch, _ := cmd.Flags().GetBool("touch")
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	it, err := s.ReadItem(cmd.Context(), args[0], touch)
	if err != nil {
		exitErr("show", err)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(it, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("%s  [%s/%s]  %s\n%s\n", it.ID, it.Tier, it.Validation, it.Type, it.Content)
}
