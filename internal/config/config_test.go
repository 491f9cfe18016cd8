package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ========== Load ==========

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORE", "EMBED_PROVIDER", "EMBED_DIM", "CALL_TIMEOUT", "TUNING_FILE", "LLM_PROVIDER"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != "postgres" || cfg.EmbedProvider != "huggingface" || cfg.EmbedDim != 384 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.CallTimeout != 30*time.Second || cfg.LLMRPM != 60 {
		t.Errorf("timeout = %v rpm = %d", cfg.CallTimeout, cfg.LLMRPM)
	}
	if cfg.Tuning.Retriever.Threshold != 0.7 || cfg.Tuning.Pools.LinkWorkers != 2 {
		t.Errorf("tuning defaults not applied: %+v", cfg.Tuning)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE", "SQLite")
	t.Setenv("EMBED_DIM", "768")
	t.Setenv("CALL_TIMEOUT", "5s")
	t.Setenv("LLM_RPM", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store != "sqlite" || cfg.EmbedDim != 768 || cfg.CallTimeout != 5*time.Second {
		t.Errorf("overrides = %q %d %v", cfg.Store, cfg.EmbedDim, cfg.CallTimeout)
	}
	if cfg.LLMRPM != 60 {
		t.Errorf("invalid int should fall back, got %d", cfg.LLMRPM)
	}
}

func TestWarnings_SigningKey(t *testing.T) {
	t.Setenv("OBJECT_SIGNING_KEY", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if w := cfg.Warnings(); len(w) != 1 || !strings.Contains(w[0], "OBJECT_SIGNING_KEY") {
		t.Errorf("warnings = %v, want one about OBJECT_SIGNING_KEY", w)
	}

	t.Setenv("OBJECT_SIGNING_KEY", "s3cret")
	if cfg, err = Load(); err != nil {
		t.Fatal(err)
	}
	if w := cfg.Warnings(); len(w) != 0 {
		t.Errorf("warnings = %v, want none with a signing key", w)
	}
}

func TestLoad_BadTuningFile(t *testing.T) {
	t.Setenv("TUNING_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing tuning file")
	}
}

func TestProviderKeys(t *testing.T) {
	cfg := &Config{LLMAPIKey: "or", AnthropicKey: "an", GeminiKey: "ge", HFKey: "hf", OpenAIKey: "oa"}
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "or"},
		{"anthropic", "an"},
		{"gemini", "ge"},
		{"huggingface", "hf"},
	}
	for _, tt := range tests {
		cfg.LLMProvider = tt.provider
		if got := cfg.LLMKey(); got != tt.want {
			t.Errorf("LLMKey(%s) = %q, want %q", tt.provider, got, tt.want)
		}
	}

	cfg.EmbedProvider = "openai"
	if cfg.EmbedKey() != "oa" {
		t.Errorf("EmbedKey(openai) = %q", cfg.EmbedKey())
	}
	cfg.EmbedProvider = "ollama"
	if cfg.EmbedKey() != "" {
		t.Errorf("EmbedKey(ollama) = %q", cfg.EmbedKey())
	}
	if cfg.MathpixEnabled() {
		t.Error("Mathpix needs both credentials")
	}
	cfg.MathpixAppID, cfg.MathpixAppKey = "id", "key"
	if !cfg.MathpixEnabled() {
		t.Error("Mathpix should be enabled")
	}
}

// ========== tuning ==========

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTuning_Overlay(t *testing.T) {
	path := writeTuning(t, `
retriever:
  threshold: 0.8
  question_limit: 12
upload:
  pause: 250ms
keywords:
  extra_terms: [enthalpy]
  extra_groups:
    kinematics: [displacement, velocity]
`)
	tn, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tn.Retriever.Threshold != 0.8 || tn.Retriever.QuestionLimit != 12 {
		t.Errorf("retriever = %+v", tn.Retriever)
	}
	if tn.Retriever.RelaxedThreshold != 0.5 || tn.Retriever.SyllabusLimit != 5 {
		t.Errorf("unset fields should keep defaults: %+v", tn.Retriever)
	}
	if tn.Upload.Pause != 250*time.Millisecond || tn.Upload.BatchSize != 10 {
		t.Errorf("upload = %+v", tn.Upload)
	}
	if len(tn.Keywords.ExtraTerms) != 1 || len(tn.Keywords.ExtraGroups["kinematics"]) != 2 {
		t.Errorf("keywords = %+v", tn.Keywords)
	}
}

func TestLoadTuning_EmptyPath(t *testing.T) {
	tn, err := LoadTuning("")
	if err != nil || tn.Chunker.MaxTokens != 500 || tn.Linker.KeywordTopN != 5 {
		t.Errorf("LoadTuning(\"\") = %+v, %v", tn, err)
	}
}

func TestTuningValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tuning)
		want   string
	}{
		{"relaxed above threshold", func(t *Tuning) { t.Retriever.RelaxedThreshold = 0.9 }, "relaxed_threshold"},
		{"zero limit", func(t *Tuning) { t.Retriever.SyllabusLimit = 0 }, "limits"},
		{"min above max", func(t *Tuning) { t.Chunker.MinTokens = 600 }, "min_tokens"},
		{"floor above ceil", func(t *Tuning) { t.Linker.FloorConfidence = 0.99 }, "floor_confidence"},
		{"zero batch", func(t *Tuning) { t.Upload.BatchSize = 0 }, "batch_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn := DefaultTuning()
			tt.mutate(&tn)
			err := tn.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
	if err := DefaultTuning().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoadTuning_RejectsInvalid(t *testing.T) {
	path := writeTuning(t, "retriever:\n  relaxed_threshold: 0.95\n")
	if _, err := LoadTuning(path); err == nil {
		t.Error("expected validation error")
	}
	bad := writeTuning(t, "retriever: [not, a, map]\n")
	if _, err := LoadTuning(bad); err == nil {
		t.Error("expected parse error")
	}
}
