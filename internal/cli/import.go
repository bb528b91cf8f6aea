package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/errs"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/policy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [path]",
		Short: "Import items from JSON Lines, from a file or stdin, policy-evaluated line by line",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}
	cmd.Flags().Bool("preserve-ids", false, "keep the source item's id instead of minting a new one")
	cmd.Flags().Bool("dry-run", false, "count without writing")
	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	preserveIDs, _ := cmd.Flags().GetBool("preserve-ids")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("import", err)
		}
		defer f.Close()
		in = f
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

	var imported, rejected, skippedDup, errored int
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var it memory.Item
		if err := json.Unmarshal(line, &it); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", errs.Validationf("malformed line: %v", err))
			errored++
			continue
		}

		prop := memory.Proposal{
			Type: it.Type, Title: it.Title, Content: it.Content, Tags: it.Tags,
			WhyStore: "imported from external export", ProvenanceHint: it.Provenance, Scope: it.Scope,
		}
		verdict := eng.EvaluateProposal(prop)
		if verdict.Action == policy.ActionReject {
			fmt.Fprintf(os.Stderr, "%v\n", errs.Policyf(verdict.RuleID, "rejected: %s", strings.Join(verdict.Reasons, "; ")))
			rejected++
			continue
		}

		hash := it.ContentHash()
		if _, dup, err := s.FindByContentHash(cmd.Context(), hash, it.Scope); err == nil && dup {
			skippedDup++
			continue
		}

		if !preserveIDs {
			it.ID = ""
		}
		it.Validation = memory.ValidationUnverified
		it.Archived = false
		if verdict.Action == policy.ActionQuarantine {
			it.Validation = verdict.ForcedValidation
			it.ExpiresAt = verdict.ForcedExpiresAt
			it.Injectable = !verdict.ForcedNonInjectable
			it.RuleID = verdict.RuleID
		}

		if dryRun {
			imported++
			continue
		}
		if _, _, err := s.WriteItem(cmd.Context(), it, verdict.WriteReason()); err != nil {
			fmt.Fprintf(os.Stderr, "error: write failed: %v\n", err)
			errored++
			continue
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		exitErr("import", err)
	}

	fmt.Fprintf(os.Stderr, "imported=%d rejected=%d duplicate=%d errored=%d dry_run=%v\n",
		imported, rejected, skippedDup, errored, dryRun)

	if imported == 0 && errored > 0 {
		exitErr("import", errs.Validationf("every line failed (errored=%d rejected=%d)", errored, rejected))
	}
}
