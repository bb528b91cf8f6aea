package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/errs"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/policy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "pull [content]",
		Short: "Propose a single memory item from stdin or an argument for policy evaluation and storage",
		Long:  "Content can be a positional argument or piped via stdin. Every pull runs through the policy engine before it is written.",
		Run:   runPull,
	}
	cmd.Flags().String("type", "note", "item type (open vocabulary, e.g. decision, constraint, pattern)")
	cmd.Flags().String("title", "", "short title")
	cmd.Flags().StringP("tags", "t", "", "comma-separated tags")
	cmd.Flags().String("why", "", "why_store justification (required unless provenance is supplied)")
	cmd.Flags().String("source-kind", "", "provenance source kind, e.g. file, conversation, manual")
	cmd.Flags().String("source-id", "", "provenance source id")
	cmd.Flags().String("scope", "", "scope (e.g. a mount name or project id)")
	RootCmd.AddCommand(cmd)
}

func runPull(cmd *cobra.Command, args []string) {
	content := readContentArg(args)
	if strings.TrimSpace(content) == "" {
		exitErr("pull", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	typ, _ := cmd.Flags().GetString("type")
	title, _ := cmd.Flags().GetString("title")
	tagsStr, _ := cmd.Flags().GetString("tags")
	why, _ := cmd.Flags().GetString("why")
	sourceKind, _ := cmd.Flags().GetString("source-kind")
	sourceID, _ := cmd.Flags().GetString("source-id")
	scope, _ := cmd.Flags().GetString("scope")

	prop := memory.Proposal{
		Type: typ, Title: title, Content: strings.TrimSpace(content),
		Tags: splitTags(tagsStr), WhyStore: why, Scope: scope,
		ProvenanceHint: memory.Provenance{
			SourceKind: sourceKind, SourceID: sourceID,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	eng := openPolicy(cfg.Policy)
	verdict := eng.EvaluateProposal(prop)

	if verdict.Action == policy.ActionReject {
		exitErr("pull", errs.Policyf(verdict.RuleID, "rejected: %s", strings.Join(verdict.Reasons, "; ")))
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
		exitErr("pull", err)
	}

	if jsonOutput {
		b, _ := json.MarshalIndent(written, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("%s  tier=%s  validation=%s\n", written.ID, written.Tier, written.Validation)
	if verdict.Action == policy.ActionQuarantine {
		fmt.Printf("quarantined: %s\n", strings.Join(verdict.Reasons, "; "))
	}
}

func readContentArg(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		b, err := io.ReadAll(os.Stdin)
		if err == nil {
			return string(b)
		}
	}
	return ""
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
