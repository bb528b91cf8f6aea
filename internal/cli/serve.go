package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/consolidate"
	"github.com/memctl/memctl/internal/inject"
	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/mcp"
	"github.com/memctl/memctl/internal/memory"
	"github.com/memctl/memctl/internal/mount"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/query"
	"github.com/memctl/memctl/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP endpoint: one JSON request per stdin line, one JSON response per stdout line",
		Run:   runServe,
	}
	cmd.Flags().String("db-root", "", "directory every served database path must resolve under (default: cwd)")
	cmd.Flags().Int("max-write-bytes", 64*1024, "per-call write size cap")
	cmd.Flags().Int("max-import-batch", 500, "per-call import item cap")
	cmd.Flags().Float64("write-rps", 20.0/60, "steady-state write-tool rate, tokens per second")
	cmd.Flags().Float64("read-rps", 120.0/60, "steady-state read-tool rate, tokens per second")
	cmd.Flags().String("audit-log", "", "path to the JSONL audit log (default: stderr)")
	RootCmd.AddCommand(cmd)
}

// rpcRequest is one line of stdin: a tool name plus its argument object.
type rpcRequest struct {
	Tool      string         `json:"tool"`
	SessionID string         `json:"session_id,omitempty"`
	Args      map[string]any `json:"args"`
}

type rpcResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) {
	dbRoot, _ := cmd.Flags().GetString("db-root")
	if dbRoot == "" {
		dbRoot, _ = os.Getwd()
	}
	maxWriteBytes, _ := cmd.Flags().GetInt("max-write-bytes")
	maxImportBatch, _ := cmd.Flags().GetInt("max-import-batch")
	writeRPS, _ := cmd.Flags().GetFloat64("write-rps")
	readRPS, _ := cmd.Flags().GetFloat64("read-rps")
	auditPath, _ := cmd.Flags().GetString("audit-log")

	cfg := loadConfig()
	log := newLogger()
	defer log.Sync()

	guard := &mcp.Guard{Root: dbRoot, MaxWriteBytes: maxWriteBytes, MaxImportBatch: maxImportBatch}
	resolvedDBPath, err := guard.ValidateDBPath(getDBPath())
	if err != nil {
		exitErr("serve", err)
	}

	s, err := openStore(log, cfg.Store)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	eng := openPolicy(cfg.Policy)

	var auditWriter = os.Stderr
	if auditPath != "" {
		f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			exitErr("serve", err)
		}
		defer f.Close()
		auditWriter = f
	}

	limiter := mcp.NewRateLimiter(writeRPS, readRPS)
	audit := mcp.NewAuditLogger(auditWriter)
	srv := mcp.NewServer(guard, limiter, audit, resolvedDBPath)

	registerTools(srv, s, eng, guard)

	fmt.Fprintln(os.Stderr, "memctl serve: reading tool calls from stdin, one JSON object per line")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			writeRPC(rpcResponse{Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}
		result, err := srv.Call(cmd.Context(), req.SessionID, req.Tool, req.Args)
		if err != nil {
			writeRPC(rpcResponse{Error: err.Error()})
			continue
		}
		writeRPC(rpcResponse{Result: result})
	}
}

func writeRPC(resp rpcResponse) {
	b, _ := json.Marshal(resp)
	fmt.Println(string(b))
}

// registerTools binds the 15 MCP tool names from spec.md section 4.12 to
// store operations, each taking a loosely-typed args map the way a JSON
// transport delivers them.
func registerTools(srv *mcp.Server, s *store.Store, eng *policy.Engine, guard *mcp.Guard) {
	argStr := func(args map[string]any, key string) string {
		if v, ok := args[key].(string); ok {
			return v
		}
		return ""
	}
	argInt := func(args map[string]any, key string, def int) int {
		if v, ok := args[key].(float64); ok {
			return int(v)
		}
		return def
	}

	srv.Register("recall", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		q := query.Normalize(argStr(args, "query"))
		items, meta, err := s.SearchFulltext(ctx, q, store.SearchOptions{Scope: argStr(args, "scope"), Limit: argInt(args, "limit", 20)})
		if err != nil {
			return nil, err
		}
		block := inject.Format(items, "recall", argInt(args, "budget_tokens", 1200), time.Now())
		return map[string]any{"block": block.Text, "meta": meta, "items_used": block.ItemsUsed}, nil
	})

	srv.Register("search", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		q := query.Normalize(argStr(args, "query"))
		items, meta, err := s.SearchFulltext(ctx, q, store.SearchOptions{
			Tier: memory.Tier(argStr(args, "tier")), Type: argStr(args, "type"),
			Scope: argStr(args, "scope"), Limit: argInt(args, "limit", 20),
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": items, "meta": meta}, nil
	})

	srv.Register("write", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		return proposeAndWrite(ctx, s, eng, guard, args)
	})

	srv.Register("propose", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		return proposeAndWrite(ctx, s, eng, guard, args)
	})

	srv.Register("read", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		touch, _ := args["touch"].(bool)
		return s.ReadItem(ctx, argStr(args, "id"), touch)
	})

	srv.Register("stats", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		out := map[string]int{}
		for _, t := range []memory.Tier{memory.TierSTM, memory.TierMTM, memory.TierLTM} {
			n, err := s.CountItems(ctx, t)
			if err != nil {
				return nil, err
			}
			out[string(t)] = n
		}
		return out, nil
	})

	srv.Register("consolidate", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		dryRun, _ := args["dry_run"].(bool)
		cfg := loadConfig()
		p := consolidate.Pipeline{Store: s, Cfg: cfg.Consolidate}
		return p.Run(ctx, dryRun)
	})

	srv.Register("mount", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		switch argStr(args, "action") {
		case "add":
			return s.AddMount(ctx, memory.Mount{Path: argStr(args, "path"), Name: argStr(args, "name")})
		case "rm":
			return nil, s.RemoveMount(ctx, argStr(args, "id"))
		default:
			return s.ListMounts(ctx)
		}
	})

	srv.Register("sync", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		m, err := s.GetMount(ctx, argStr(args, "mount_id"))
		if err != nil {
			return nil, err
		}
		sy := &mount.Syncer{Store: s, Policy: eng}
		return sy.Sync(ctx, m)
	})

	srv.Register("inspect", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		m, err := s.GetMount(ctx, argStr(args, "mount_id"))
		if err != nil {
			return nil, err
		}
		cfg := loadConfig()
		return inspect.Build(ctx, s, cfg.Inspect, m)
	})

	srv.Register("ask", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		return nil, fmt.Errorf("ask is a CLI-only orchestrator; invoke recall + loop directly over MCP")
	})

	srv.Register("export", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		return s.ListItems(ctx, store.ListFilter{
			Tier: memory.Tier(argStr(args, "tier")), Type: argStr(args, "type"), Scope: argStr(args, "scope"),
			Limit: argInt(args, "limit", 1000),
		})
	})

	srv.Register("import", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		rawItems, _ := args["items"].([]any)
		if err := guard.CheckImportBatch(len(rawItems)); err != nil {
			return nil, err
		}
		imported := 0
		for _, raw := range rawItems {
			b, _ := json.Marshal(raw)
			var it memory.Item
			if err := json.Unmarshal(b, &it); err != nil {
				continue
			}
			prop := memory.Proposal{Type: it.Type, Title: it.Title, Content: it.Content, Tags: it.Tags, WhyStore: "mcp import", ProvenanceHint: it.Provenance, Scope: it.Scope}
			verdict := eng.EvaluateProposal(prop)
			if verdict.Action == policy.ActionReject {
				continue
			}
			it.ID = ""
			if _, _, err := s.WriteItem(ctx, it, verdict.WriteReason()); err == nil {
				imported++
			}
		}
		return map[string]int{"imported": imported}, nil
	})

	srv.Register("loop", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		return nil, fmt.Errorf("loop requires a subprocess LLM invoker not available over the MCP transport")
	})

	srv.Register("reindex", func(ctx context.Context, _ string, args map[string]any) (any, error) {
		n, dur, err := s.RebuildFTS(ctx, argStr(args, "tokenizer"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": n, "duration": dur.String()}, nil
	})
}

// writeResult is what "write"/"propose" hand back over the RPC
// transport. detail carries the privacy-preserving content block
// (hash, bounded preview, byte length — never the raw content) that
// Server.Call folds into the audit record for this call instead of
// logging the content verbatim.
type writeResult struct {
	Accepted bool        `json:"accepted"`
	RuleID   string      `json:"rule_id,omitempty"`
	Reasons  []string    `json:"reasons,omitempty"`
	Item     memory.Item `json:"item,omitempty"`

	detail map[string]any
}

func (r writeResult) AuditDetail() map[string]any { return r.detail }

func proposeAndWrite(ctx context.Context, s *store.Store, eng *policy.Engine, guard *mcp.Guard, args map[string]any) (any, error) {
	content, _ := args["content"].(string)
	if err := guard.CheckWriteSize(len(content)); err != nil {
		return nil, err
	}
	typ, _ := args["type"].(string)
	title, _ := args["title"].(string)
	why, _ := args["why_store"].(string)
	scope, _ := args["scope"].(string)

	detail := mcp.MakeContentDetail(content)

	prop := memory.Proposal{Type: typ, Title: title, Content: content, WhyStore: why, Scope: scope}
	verdict := eng.EvaluateProposal(prop)
	if verdict.Action == policy.ActionReject {
		detail["rule_id"] = verdict.RuleID
		return writeResult{Accepted: false, RuleID: verdict.RuleID, Reasons: verdict.Reasons, detail: detail}, nil
	}

	it := prop.ToItem("", memory.TierSTM, 0.5, time.Now())
	if verdict.Action == policy.ActionQuarantine {
		it.Validation = verdict.ForcedValidation
		it.ExpiresAt = verdict.ForcedExpiresAt
		it.Injectable = !verdict.ForcedNonInjectable
		it.RuleID = verdict.RuleID
		detail["rule_id"] = verdict.RuleID
	}
	written, _, err := s.WriteItem(ctx, it, verdict.WriteReason())
	if err != nil {
		return nil, err
	}
	return writeResult{Accepted: true, Item: written, detail: detail}, nil
}
