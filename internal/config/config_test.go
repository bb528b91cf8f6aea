package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreInternallyValid(t *testing.T) {
	if errs := Defaults().Validate(); len(errs) != 0 {
		t.Fatalf("expected the compiled defaults to pass validation, got %v", errs)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg := Load("")
	want := Defaults()
	if cfg.Store.DBPath != want.Store.DBPath || cfg.Policy.MaxContentLength != want.Policy.MaxContentLength {
		t.Fatalf("expected defaults with an empty path, got %+v", cfg)
	}
}

func TestLoadMissingFileFallsBackSilently(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if cfg.Policy.MaxContentLength != Defaults().Policy.MaxContentLength {
		t.Fatalf("expected a silent fallback to defaults for a missing file, got %+v", cfg)
	}
}

func TestLoadPartialFileOverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	os.WriteFile(path, []byte(`{"policy": {"max_content_length": 9000}}`), 0644)

	cfg := Load(path)
	if cfg.Policy.MaxContentLength != 9000 {
		t.Fatalf("expected the overridden field applied, got %d", cfg.Policy.MaxContentLength)
	}
	if cfg.Store.DBPath != Defaults().Store.DBPath {
		t.Fatalf("expected an unset field to keep its default, got %q", cfg.Store.DBPath)
	}
}

func TestLoadMalformedJSONFallsBackSilently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	os.WriteFile(path, []byte(`{not valid json`), 0644)

	cfg := Load(path)
	if cfg.Policy.MaxContentLength != Defaults().Policy.MaxContentLength {
		t.Fatalf("expected a silent fallback to defaults for malformed JSON, got %+v", cfg)
	}
}

func TestValidateFlagsOutOfRangeFields(t *testing.T) {
	cfg := Defaults()
	cfg.Policy.LowConfidenceThreshold = 5.0
	cfg.Consolidate.ClusterDistanceThreshold = -1.0

	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("expected exactly 2 validation errors, got %v", errs)
	}
}

func TestFTSTokenizerPreset(t *testing.T) {
	if v, ok := FTSTokenizerPreset("en"); !ok || v != "porter unicode61 remove_diacritics 2" {
		t.Fatalf("unexpected en preset: %q ok=%v", v, ok)
	}
	if _, ok := FTSTokenizerPreset("unknown"); ok {
		t.Fatal("expected an unknown preset name to report not-found")
	}
}
