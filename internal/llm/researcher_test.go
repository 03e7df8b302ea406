package llm

import (
	"testing"

	"augurbot/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DefaultModel = "default-model"
	cfg.HighValueModel = "premium-model"
	cfg.HighValueVolumeThresh = 100000
	cfg.UsePremiumModel = false
	return cfg
}

func TestSelectModelManualOverrideWins(t *testing.T) {
	r := NewResearcher("key", testConfig())
	if got := r.SelectModel(1, "custom-model"); got != "custom-model" {
		t.Fatalf("expected manual override, got %s", got)
	}
}

func TestSelectModelHighVolumeUsesHighValueModel(t *testing.T) {
	r := NewResearcher("key", testConfig())
	if got := r.SelectModel(200000, ""); got != "premium-model" {
		t.Fatalf("expected high-value model for large volume, got %s", got)
	}
}

func TestSelectModelLowVolumeUsesDefault(t *testing.T) {
	r := NewResearcher("key", testConfig())
	if got := r.SelectModel(100, ""); got != "default-model" {
		t.Fatalf("expected default model for small volume, got %s", got)
	}
}

func TestSelectModelPremiumFlagForcesHighValueModel(t *testing.T) {
	cfg := testConfig()
	cfg.UsePremiumModel = true
	r := NewResearcher("key", cfg)
	if got := r.SelectModel(1, ""); got != "premium-model" {
		t.Fatalf("expected high-value model when UsePremiumModel is set, got %s", got)
	}
}

func TestEstimateCostUnknownModelIsZero(t *testing.T) {
	if got := estimateCost(testConfig(), "unknown-model", 1000, 1000); got != 0 {
		t.Fatalf("expected 0 cost for unlisted model, got %v", got)
	}
}

func TestEstimateCostKnownModel(t *testing.T) {
	cfg := testConfig()
	cfg.ModelCosts = map[string]config.ModelCost{
		"m": {InputPerMillion: 3.0, OutputPerMillion: 15.0},
	}
	got := estimateCost(cfg, "m", 1_000_000, 1_000_000)
	want := 3.0 + 15.0
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
