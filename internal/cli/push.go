package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/ingest"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/policy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Ingest one or more files: extract, chunk, and propose each chunk through the policy engine",
		Run:   runPushFiles,
	}
	cmd.Flags().StringSlice("source", nil, "file path(s) to ingest (repeatable)")
	cmd.Flags().String("scope", "", "scope (e.g. a mount name or project id)")
	cmd.Flags().StringP("tags", "t", "", "comma-separated tags applied to every produced item")
	RootCmd.AddCommand(cmd)
}

func runPushFiles(cmd *cobra.Command, args []string) {
	sources, _ := cmd.Flags().GetStringSlice("source")
	if len(sources) == 0 {
		exitErr("push", fmt.Errorf("at least one --source PATH is required"))
	}
	scope, _ := cmd.Flags().GetString("scope")
	tagsStr, _ := cmd.Flags().GetString("tags")
	tags := splitTags(tagsStr)

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	eng := openPolicy(cfg.Policy)

	type result struct {
		Source   string   `json:"source"`
		ItemIDs  []string `json:"item_ids"`
		Rejected int      `json:"rejected"`
	}
	var results []result

	for _, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			exitErr("push "+src, err)
		}
		text, err := ingest.ExtractFile(abs)
		if err != nil {
			exitErr("push "+src, err)
		}

		res := result{Source: abs}
		for _, chunk := range ingest.ChunkParagraphs(text) {
			prop := ingest.BuildProposal(chunk, abs, tags, scope)
			verdict := eng.EvaluateProposal(prop)
			if verdict.Action == policy.ActionReject {
				res.Rejected++
				continue
			}
			it := prop.ToItem("", memory.TierSTM, 0.5, time.Now())
			if verdict.Action == policy.ActionQuarantine {
				it.Validation = verdict.ForcedValidation
				it.ExpiresAt = verdict.ForcedExpiresAt
				it.Injectable = !verdict.ForcedNonInjectable
				it.RuleID = verdict.RuleID
			}
			written, _, err := s.WriteItem(cmd.Context(), it, verdict.WriteReason())
			if err != nil {
				exitErr("push "+src, err)
			}
			res.ItemIDs = append(res.ItemIDs, written.ID)
		}
		results = append(results, res)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(b))
		return
	}
	for _, r := range results {
		fmt.Printf("%s  items=%d rejected=%d\n", r.Source, len(r.ItemIDs), r.Rejected)
	}
}
