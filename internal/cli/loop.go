package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/loop"
)

func init() {
	cmd := &cobra.Command{
		Use:   "loop [query]",
		Short: "Run the bounded recall-answer controller against an external model command",
		Args:  cobra.MaximumNArgs(1),
		Run:   runLoop,
	}
	cmd.Flags().String("command", "", "model subprocess to invoke, e.g. \"claude -p\" (split on spaces)")
	cmd.Flags().String("protocol", "json", "directive protocol: json | regex | passive")
	cmd.Flags().Int("max-calls", 8, "hard cap on model invocations")
	cmd.Flags().Int("budget-tokens", 1500, "approximate token budget for injected context per turn")
	cmd.Flags().Float64("fixed-point-threshold", 0.92, "similarity above which two turns are a fixed point")
	cmd.Flags().Int("stable-steps", 2, "consecutive similar-answer pairs required before fixed_point fires")
	cmd.Flags().Float64("query-cycle-threshold", 0.85, "similarity above which a query repeats a prior one")
	cmd.Flags().String("scope", "", "restrict recall to one scope")
	cmd.Flags().Duration("timeout", 60*time.Second, "per-invocation subprocess timeout")
	cmd.Flags().String("trace-out", "", "write a replayable JSONL trace to this path")
	cmd.Flags().String("replay", "", "replay a previously recorded trace instead of running live")
	RootCmd.AddCommand(cmd)
}

func runLoop(cmd *cobra.Command, args []string) {
	replayPath, _ := cmd.Flags().GetString("replay")
	if replayPath != "" {
		f, err := os.Open(replayPath)
		if err != nil {
			exitErr("loop --replay", err)
		}
		defer f.Close()
		res, err := loop.ReplayTrace(f)
		if err != nil {
			exitErr("loop --replay", err)
		}
		printLoopResult(res)
		return
	}

	if len(args) != 1 {
		exitErr("loop", fmt.Errorf("a query is required unless --replay is set"))
	}
	commandStr, _ := cmd.Flags().GetString("command")
	if commandStr == "" {
		exitErr("loop", fmt.Errorf("--command is required unless --replay is set"))
	}
	protocol, _ := cmd.Flags().GetString("protocol")
	maxCalls, _ := cmd.Flags().GetInt("max-calls")
	budget, _ := cmd.Flags().GetInt("budget-tokens")
	fixedPointT, _ := cmd.Flags().GetFloat64("fixed-point-threshold")
	stableSteps, _ := cmd.Flags().GetInt("stable-steps")
	queryCycleT, _ := cmd.Flags().GetFloat64("query-cycle-threshold")
	scope, _ := cmd.Flags().GetString("scope")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	traceOut, _ := cmd.Flags().GetString("trace-out")

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	invoker := loop.SubprocessInvoker{Command: strings.Fields(commandStr), Timeout: timeout}
	lcfg := loop.Config{
		MaxCalls:            maxCalls,
		BudgetTokens:        budget,
		FixedPointThreshold: fixedPointT,
		StableSteps:         stableSteps,
		QueryCycleThreshold: queryCycleT,
		Protocol:            loop.Protocol(protocol),
		Scope:               scope,
	}

	res, err := loop.Run(cmd.Context(), s, invoker, lcfg, args[0])
	if err != nil {
		exitErr("loop", err)
	}

	if traceOut != "" {
		f, err := os.Create(traceOut)
		if err != nil {
			exitErr("loop --trace-out", err)
		}
		defer f.Close()
		if err := loop.EmitTrace(f, res); err != nil {
			exitErr("loop --trace-out", err)
		}
	}

	printLoopResult(res)
}

func printLoopResult(res loop.Result) {
	if jsonOutput {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("stop_reason=%s iterations=%d\n\n%s\n", res.StopReason, len(res.Iterations), res.Answer)
}
