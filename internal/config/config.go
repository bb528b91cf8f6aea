// Package config loads memctl's JSON configuration file and the five
// MEMCTL_* environment variables, with CLI flag > env var > config file >
// compiled default precedence.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Store configures the SQLite backing store.
type Store struct {
	DBPath      string `mapstructure:"db_path"`
	WALMode     bool   `mapstructure:"wal_mode"`
	FTSTokenizer string `mapstructure:"fts_tokenizer"`
}

// Policy configures the write-governance engine.
type Policy struct {
	MaxContentLength          int      `mapstructure:"max_content_length"`
	SecretPatternsEnabled     bool     `mapstructure:"secret_patterns_enabled"`
	InjectionPatternsEnabled  bool     `mapstructure:"injection_patterns_enabled"`
	InstructionalEnabled      bool     `mapstructure:"instructional_content_enabled"`
	PIIPatternsEnabled        bool     `mapstructure:"pii_patterns_enabled"`
	RequireProvenanceFor      []string `mapstructure:"require_provenance_for"`
	LowConfidenceThreshold    float64  `mapstructure:"low_confidence_threshold"`
	QuarantineExpiryHours     int      `mapstructure:"quarantine_expiry_hours"`
}

// Consolidate configures the deterministic consolidation pipeline.
type Consolidate struct {
	Enabled                   bool     `mapstructure:"enabled"`
	STMThreshold              int      `mapstructure:"stm_threshold"`
	ClusterDistanceThreshold  float64  `mapstructure:"cluster_distance_threshold"`
	UsageCountForLTM          int      `mapstructure:"usage_count_for_ltm"`
	AutoPromoteTypes          []string `mapstructure:"auto_promote_types"`
}

// Inspect configures the four frozen observation thresholds.
type Inspect struct {
	DominanceFrac        float64 `mapstructure:"dominance_frac"`
	LowDensityThreshold  float64 `mapstructure:"low_density_threshold"`
	ExtConcentrationFrac float64 `mapstructure:"ext_concentration_frac"`
	SparseThreshold      int     `mapstructure:"sparse_threshold"`
}

// Chat configures the interactive REPL's sliding-window session.
type Chat struct {
	HistoryMax int `mapstructure:"history_max"`
}

// Config is the top-level aggregate, mirroring spec.md section 6's
// "store / inspect / chat" config sections plus the policy and
// consolidation sections the rest of the components need.
type Config struct {
	Store       Store       `mapstructure:"store"`
	Policy      Policy      `mapstructure:"policy"`
	Consolidate Consolidate `mapstructure:"consolidate"`
	Inspect     Inspect     `mapstructure:"inspect"`
	Chat        Chat        `mapstructure:"chat"`
}

// Defaults returns the compiled-in configuration, matching the original
// implementation's dataclass defaults one field at a time.
func Defaults() Config {
	return Config{
		Store: Store{
			DBPath:       ".memory/memory.db",
			WALMode:      true,
			FTSTokenizer: "unicode61 remove_diacritics 2",
		},
		Policy: Policy{
			MaxContentLength:         2000,
			SecretPatternsEnabled:    true,
			InjectionPatternsEnabled: true,
			InstructionalEnabled:     true,
			PIIPatternsEnabled:       true,
			RequireProvenanceFor:     []string{"mtm", "ltm"},
			LowConfidenceThreshold:   0.3,
			QuarantineExpiryHours:    72,
		},
		Consolidate: Consolidate{
			Enabled:                  true,
			STMThreshold:             20,
			ClusterDistanceThreshold: 0.3,
			UsageCountForLTM:         5,
			AutoPromoteTypes:         []string{"constraint", "decision", "definition"},
		},
		Inspect: Inspect{
			DominanceFrac:        0.40,
			LowDensityThreshold:  0.10,
			ExtConcentrationFrac: 0.75,
			SparseThreshold:      1,
		},
		Chat: Chat{HistoryMax: 1000},
	}
}

// Load reads a JSON config file if path is non-empty, binds the five
// MEMCTL_* environment variables, and falls back silently to Defaults() on
// any read/parse error — matching spec.md section 6's "invalid or missing
// config silently falls back to defaults".
func Load(path string) Config {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("MEMCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seed viper with the compiled defaults so a partial file or partial
	// env override still resolves every key.
	v.SetDefault("store.db_path", cfg.Store.DBPath)
	v.SetDefault("store.wal_mode", cfg.Store.WALMode)
	v.SetDefault("store.fts_tokenizer", cfg.Store.FTSTokenizer)
	v.SetDefault("policy.max_content_length", cfg.Policy.MaxContentLength)
	v.SetDefault("policy.secret_patterns_enabled", cfg.Policy.SecretPatternsEnabled)
	v.SetDefault("policy.injection_patterns_enabled", cfg.Policy.InjectionPatternsEnabled)
	v.SetDefault("policy.instructional_content_enabled", cfg.Policy.InstructionalEnabled)
	v.SetDefault("policy.pii_patterns_enabled", cfg.Policy.PIIPatternsEnabled)
	v.SetDefault("policy.require_provenance_for", cfg.Policy.RequireProvenanceFor)
	v.SetDefault("policy.low_confidence_threshold", cfg.Policy.LowConfidenceThreshold)
	v.SetDefault("policy.quarantine_expiry_hours", cfg.Policy.QuarantineExpiryHours)
	v.SetDefault("consolidate.enabled", cfg.Consolidate.Enabled)
	v.SetDefault("consolidate.stm_threshold", cfg.Consolidate.STMThreshold)
	v.SetDefault("consolidate.cluster_distance_threshold", cfg.Consolidate.ClusterDistanceThreshold)
	v.SetDefault("consolidate.usage_count_for_ltm", cfg.Consolidate.UsageCountForLTM)
	v.SetDefault("consolidate.auto_promote_types", cfg.Consolidate.AutoPromoteTypes)
	v.SetDefault("inspect.dominance_frac", cfg.Inspect.DominanceFrac)
	v.SetDefault("inspect.low_density_threshold", cfg.Inspect.LowDensityThreshold)
	v.SetDefault("inspect.ext_concentration_frac", cfg.Inspect.ExtConcentrationFrac)
	v.SetDefault("inspect.sparse_threshold", cfg.Inspect.SparseThreshold)
	v.SetDefault("chat.history_max", cfg.Chat.HistoryMax)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg // silent fallback, per spec
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return cfg
	}
	return out
}

// Validate returns human-readable validation error messages, mirroring the
// original's per-section range checks. Empty slice means valid.
func (c Config) Validate() []string {
	var errs []string
	checkRange := func(name string, v, lo, hi float64) {
		if v < lo || v > hi {
			errs = append(errs, name)
		}
	}
	checkRange("policy.max_content_length", float64(c.Policy.MaxContentLength), 100, 100000)
	checkRange("policy.low_confidence_threshold", c.Policy.LowConfidenceThreshold, 0.0, 1.0)
	checkRange("policy.quarantine_expiry_hours", float64(c.Policy.QuarantineExpiryHours), 1, 8760)
	checkRange("consolidate.cluster_distance_threshold", c.Consolidate.ClusterDistanceThreshold, 0.0, 1.0)
	checkRange("consolidate.stm_threshold", float64(c.Consolidate.STMThreshold), 1, 10000)
	checkRange("consolidate.usage_count_for_ltm", float64(c.Consolidate.UsageCountForLTM), 1, 1000)
	checkRange("inspect.dominance_frac", c.Inspect.DominanceFrac, 0.01, 1.0)
	checkRange("inspect.low_density_threshold", c.Inspect.LowDensityThreshold, 0.0, 1.0)
	checkRange("inspect.ext_concentration_frac", c.Inspect.ExtConcentrationFrac, 0.01, 1.0)
	checkRange("inspect.sparse_threshold", float64(c.Inspect.SparseThreshold), 0, 100)
	checkRange("chat.history_max", float64(c.Chat.HistoryMax), 10, 100000)
	return errs
}

// FTSTokenizerPreset resolves a short name (fr/en/raw) to the full FTS5
// tokenizer spec, matching spec.md section 4.1's three presets.
func FTSTokenizerPreset(name string) (string, bool) {
	presets := map[string]string{
		"fr":  "unicode61 remove_diacritics 2",
		"en":  "porter unicode61 remove_diacritics 2",
		"raw": "unicode61",
	}
	v, ok := presets[name]
	return v, ok
}
