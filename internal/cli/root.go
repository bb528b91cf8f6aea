// Package cli implements the memctl command-line surface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/errs"
	"github.com/memctl/memctl/internal/logging"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/store"
)

var (
	dbPath     string
	configPath string
	jsonOutput bool
	quiet      bool
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Persistent, policy-governed memory for LLM workflows",
	Long:  "memctl is a single-binary, SQLite-backed memory substrate: store, recall, consolidate, and inject context for LLM agents under an explicit write-side policy.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "database path (default: $MEMCTL_DB or ~/.memctl/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable text")
	RootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error log output")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "emit debug-level log output")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MEMCTL_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memctl", "memory.db")
}

func loadConfig() config.Config {
	return config.Load(configPath)
}

func newLogger() *zap.Logger {
	return logging.New(verbose, quiet)
}

func openStore(log *zap.Logger, cfg config.Store) (*store.Store, error) {
	path := getDBPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	tokenizer := cfg.FTSTokenizer
	if preset, ok := config.FTSTokenizerPreset(tokenizer); ok {
		tokenizer = preset
	}
	s, err := store.Open(path, store.Options{Tokenizer: tokenizer, Logger: log})
	if err != nil {
		return nil, errs.Fatal(err, "open store at %s", path)
	}
	return s, nil
}

func openPolicy(cfg config.Policy) *policy.Engine {
	return policy.New(cfg)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	code := 1
	if ae, ok := errs.As(err); ok {
		code = ae.Kind.ExitCode()
	}
	os.Exit(code)
}
