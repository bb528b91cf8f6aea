package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/loop"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/mount"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [path] [question]",
		Short: "One-shot folder Q&A: auto-mount, auto-sync, inspect, recall, answer",
		Args:  cobra.ExactArgs(2),
		Run:   runAsk,
	}
	cmd.Flags().String("llm", "", "model subprocess to invoke, e.g. \"claude -p\" (split on spaces)")
	cmd.Flags().Int("inspect-cap", 300, "token budget for the structural-inspect summary handed to the model")
	cmd.Flags().Int("budget-tokens", 1200, "token budget for recalled-item context")
	cmd.Flags().Bool("force-sync", false, "always re-sync the folder before answering, even if not stale")
	cmd.Flags().Duration("timeout", 60*time.Second, "model subprocess timeout")
	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	path, question := args[0], args[1]
	llmCmd, _ := cmd.Flags().GetString("llm")
	if llmCmd == "" {
		exitErr("ask", fmt.Errorf("--llm is required"))
	}
	inspectCap, _ := cmd.Flags().GetInt("inspect-cap")
	budgetTokens, _ := cmd.Flags().GetInt("budget-tokens")
	forceSync, _ := cmd.Flags().GetBool("force-sync")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	abs, err := filepath.Abs(path)
	if err != nil {
		exitErr("ask", err)
	}

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, found, err := s.GetMountByPath(cmd.Context(), abs)
	if err != nil {
		exitErr("ask (auto-mount)", err)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "mounting %s\n", abs)
		m, err = s.AddMount(cmd.Context(), memory.Mount{Path: abs, Name: filepath.Base(abs)})
		if err != nil {
			exitErr("ask (auto-mount)", err)
		}
	}

	sy := &mount.Syncer{Store: s, Policy: openPolicy(cfg.Policy)}
	if forceSync || mountIsStale(cmd, s, m) {
		fmt.Fprintln(os.Stderr, "syncing...")
		if _, err := sy.Sync(cmd.Context(), m); err != nil {
			exitErr("ask (auto-sync)", err)
		}
	}

	digest, err := inspect.Build(cmd.Context(), s, cfg.Inspect, m)
	if err != nil {
		exitErr("ask (inspect)", err)
	}
	summary := truncateToTokens(inspect.FormatText(digest), inspectCap)

	fmt.Fprintln(os.Stderr, "recalling...")
	invoker := loop.SubprocessInvoker{Command: strings.Fields(llmCmd), Timeout: timeout}
	lcfg := loop.Config{
		MaxCalls:            1,
		BudgetTokens:        budgetTokens,
		FixedPointThreshold: 0.92,
		QueryCycleThreshold: 0.85,
		Protocol:            loop.ProtocolPassive,
		Scope:               m.ID,
	}

	query := summary + "\n\n" + question
	res, err := loop.Run(cmd.Context(), s, invoker, lcfg, query)
	if err != nil {
		exitErr("ask", err)
	}

	fmt.Fprintf(os.Stderr, "stop_reason=%s\n", res.StopReason)
	fmt.Println(res.Answer)
}

// truncateToTokens trims text to an approximate token budget using the
// same 4-chars-per-token rule the injection formatter uses, cutting on a
// line boundary so partial lines never leak into the model's context.
func truncateToTokens(text string, tokens int) string {
	limit := tokens * 4
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndex(cut, "\n"); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
