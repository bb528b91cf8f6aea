package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/loop"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/policy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive memory-backed REPL",
		Run:   runChat,
	}
	cmd.Flags().String("scope", "", "restrict recall to one scope")
	cmd.Flags().String("llm", "", "model subprocess to invoke, e.g. \"claude -p\" (split on spaces)")
	cmd.Flags().Bool("persist", false, "store each answer as an STM item through the policy engine")
	cmd.Flags().Int("budget-tokens", 1200, "token budget for recalled-item context per turn")
	cmd.Flags().Duration("timeout", 60*time.Second, "model subprocess timeout per turn")
	RootCmd.AddCommand(cmd)
}

// chatSession is the optional in-memory sliding-window history: bounded
// by both turn count and character budget, oldest trimmed first.
type chatSession struct {
	turns      []string
	maxTurns   int
	maxChars   int
	charsInUse int
}

func newChatSession(maxTurns, maxChars int) *chatSession {
	return &chatSession{maxTurns: maxTurns, maxChars: maxChars}
}

func (c *chatSession) add(turn string) {
	c.turns = append(c.turns, turn)
	c.charsInUse += len(turn)
	for (c.maxTurns > 0 && len(c.turns) > c.maxTurns) || (c.maxChars > 0 && c.charsInUse > c.maxChars) {
		if len(c.turns) == 0 {
			break
		}
		c.charsInUse -= len(c.turns[0])
		c.turns = c.turns[1:]
	}
}

func (c *chatSession) String() string {
	return strings.Join(c.turns, "\n")
}

func runChat(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	llmCmd, _ := cmd.Flags().GetString("llm")
	persist, _ := cmd.Flags().GetBool("persist")
	budgetTokens, _ := cmd.Flags().GetInt("budget-tokens")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if llmCmd == "" {
		exitErr("chat", fmt.Errorf("--llm is required"))
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
	invoker := loop.SubprocessInvoker{Command: strings.Fields(llmCmd), Timeout: timeout}
	session := newChatSession(cfg.Chat.HistoryMax, cfg.Chat.HistoryMax*200)

	fmt.Fprintln(os.Stderr, "memctl chat — type your question, Ctrl-D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		lcfg := loop.Config{
			MaxCalls:            1,
			BudgetTokens:        budgetTokens,
			FixedPointThreshold: 0.92,
			QueryCycleThreshold: 0.85,
			Protocol:            loop.ProtocolPassive,
			Scope:               scope,
		}
		prompt := question
		if session.String() != "" {
			prompt = session.String() + "\n\nQ: " + question
		}

		res, err := loop.Run(cmd.Context(), s, invoker, lcfg, prompt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Println(res.Answer)
		session.add("Q: " + question)
		session.add("A: " + res.Answer)

		if persist {
			prop := memory.Proposal{
				Type: "note", Content: res.Answer, WhyStore: "chat turn persisted by user request",
				Scope: scope,
				ProvenanceHint: memory.Provenance{
					SourceKind: "chat", CreatedAt: time.Now().UTC().Format(time.RFC3339),
				},
			}
			verdict := eng.EvaluateProposal(prop)
			if verdict.Action == policy.ActionReject {
				fmt.Fprintf(os.Stderr, "not persisted: %s\n", strings.Join(verdict.Reasons, "; "))
				continue
			}
			it := prop.ToItem("", memory.TierSTM, 0.5, time.Now())
			if verdict.Action == policy.ActionQuarantine {
				it.Validation = verdict.ForcedValidation
				it.ExpiresAt = verdict.ForcedExpiresAt
				it.Injectable = !verdict.ForcedNonInjectable
				it.RuleID = verdict.RuleID
			}
			if _, _, err := s.WriteItem(cmd.Context(), it, verdict.WriteReason()); err != nil {
				fmt.Fprintf(os.Stderr, "persist failed: %v\n", err)
			}
		}
	}
}
