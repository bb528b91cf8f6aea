package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex [tokenizer]",
		Short: "Rebuild the full-text index, optionally rebinding to a different tokenizer preset",
		Args:  cobra.MaximumNArgs(1),
		Run:   runReindex,
	}
	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	tokenizer := cfg.Store.FTSTokenizer
	if len(args) == 1 {
		tokenizer = args[0]
	}
	if preset, ok := config.FTSTokenizerPreset(tokenizer); ok {
		tokenizer = preset
	}

	n, dur, err := s.RebuildFTS(cmd.Context(), tokenizer)
	if err != nil {
		exitErr("reindex", err)
	}
	fmt.Printf("reindexed %d items in %s\n", n, dur)
}
