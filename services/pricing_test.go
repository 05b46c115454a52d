package services

import (
	"testing"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

func TestCompletionUsageCost(t *testing.T) {
	record := NewCompletionUsage(model.TierStandard, 1_000_000, 1_000_000)

	rates := CurrentPriceTable().CompletionRates[model.TierStandard]
	want := rates.Input + rates.Output
	if record.Cost != want {
		t.Errorf("standard tier cost %v, want %v", record.Cost, want)
	}
	if record.PriceVersion != CurrentPriceTable().Version {
		t.Errorf("record missing price version")
	}

	advanced := NewCompletionUsage(model.TierAdvanced, 1_000_000, 1_000_000)
	if advanced.Cost <= record.Cost {
		t.Errorf("advanced tier should cost more: %v vs %v", advanced.Cost, record.Cost)
	}
}

func TestCompletionUsageUnknownTierFallsBack(t *testing.T) {
	record := NewCompletionUsage(model.ModelTier("turbo"), 1000, 500)
	if record.Tier != model.TierStandard {
		t.Errorf("unknown tier should fall back to standard, got %s", record.Tier)
	}
}

func TestTranscriptionUsageCost(t *testing.T) {
	// 10 minutes of audio
	record := NewTranscriptionUsage(600)
	want := 10 * CurrentPriceTable().PerMinuteSTT
	if record.Cost != want {
		t.Errorf("transcription cost %v, want %v", record.Cost, want)
	}
	if record.DurationMinutes != 10 {
		t.Errorf("duration %v minutes, want 10", record.DurationMinutes)
	}
}

// Cost reproducibility: a stored record must recompute to its own cost from
// its persisted counts and rates alone, independent of the live price table.
func TestLedgerReproducibility(t *testing.T) {
	records := []model.UsageRecord{
		NewCompletionUsage(model.TierStandard, 12345, 678),
		NewCompletionUsage(model.TierAdvanced, 98765, 4321),
		NewEmbeddingUsage(250_000),
		NewTranscriptionUsage(3725),
	}

	for i, record := range records {
		if got := record.Recompute(); got != record.Cost {
			t.Errorf("record %d: recomputed %v != stored %v", i, got, record.Cost)
		}
	}

	if err := VerifyLedger(records); err != nil {
		t.Errorf("VerifyLedger: %v", err)
	}

	// Tamper with one record and expect drift detection
	records[0].Cost += 0.01
	if err := VerifyLedger(records); err == nil {
		t.Error("VerifyLedger accepted a tampered record")
	}
}
