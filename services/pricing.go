package services

import (
	"fmt"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/openai"
)

// PriceTable is one version of the provider price list. Completion and
// embedding rates are USD per million tokens; transcription is USD per minute.
type PriceTable struct {
	Version string

	CompletionRates map[model.ModelTier]TokenRates
	EmbeddingRate   float64 // input-only, per million tokens
	PerMinuteSTT    float64
}

// TokenRates holds the input/output token rates for one completion tier
type TokenRates struct {
	Input  float64
	Output float64
}

// currentPriceTable is the live table applied to new calls. Historical records
// keep the rates that were applied at call time, so editing this table never
// rewrites past costs.
var currentPriceTable = PriceTable{
	Version: "2025-06",
	CompletionRates: map[model.ModelTier]TokenRates{
		model.TierStandard: {Input: 0.15, Output: 0.60},
		model.TierAdvanced: {Input: 2.50, Output: 10.00},
	},
	EmbeddingRate: 0.02,
	PerMinuteSTT:  0.006,
}

// CurrentPriceTable returns the price table in effect for new calls
func CurrentPriceTable() PriceTable {
	return currentPriceTable
}

// CompletionModel maps a pricing tier to its model name
func CompletionModel(tier model.ModelTier) string {
	if tier == model.TierAdvanced {
		return openai.ModelAdvanced
	}
	return openai.ModelStandard
}

// NewCompletionUsage builds a usage record for one completion call, stamping
// the rates actually applied
func NewCompletionUsage(tier model.ModelTier, inputTokens, outputTokens int) model.UsageRecord {
	table := CurrentPriceTable()
	rates, ok := table.CompletionRates[tier]
	if !ok {
		rates = table.CompletionRates[model.TierStandard]
		tier = model.TierStandard
	}

	record := model.UsageRecord{
		Kind:         model.UsageKindCompletion,
		Tier:         tier,
		Model:        CompletionModel(tier),
		PriceVersion: table.Version,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputRate:    rates.Input,
		OutputRate:   rates.Output,
	}
	record.Cost = record.Recompute()
	return record
}

// NewEmbeddingUsage builds a usage record for one embedding call
func NewEmbeddingUsage(promptTokens int) model.UsageRecord {
	table := CurrentPriceTable()
	record := model.UsageRecord{
		Kind:         model.UsageKindEmbedding,
		Model:        openai.EmbeddingModel,
		PriceVersion: table.Version,
		InputTokens:  promptTokens,
		InputRate:    table.EmbeddingRate,
	}
	record.Cost = record.Recompute()
	return record
}

// NewTranscriptionUsage builds a usage record for one speech-to-text call
// (duration-minutes times the per-minute rate)
func NewTranscriptionUsage(durationSeconds float64) model.UsageRecord {
	table := CurrentPriceTable()
	record := model.UsageRecord{
		Kind:            model.UsageKindTranscription,
		Model:           openai.WhisperModel,
		PriceVersion:    table.Version,
		DurationMinutes: durationSeconds / 60,
		InputRate:       table.PerMinuteSTT,
	}
	record.Cost = record.Recompute()
	return record
}

// VerifyLedger re-derives each record's cost from its persisted counts and
// stored rates. Any drift means a record was mutated after writing.
func VerifyLedger(records []model.UsageRecord) error {
	for _, record := range records {
		if diff := record.Recompute() - record.Cost; diff > 1e-9 || diff < -1e-9 {
			return fmt.Errorf("usage record %d cost drift: stored %.9f, recomputed %.9f",
				record.ID, record.Cost, record.Recompute())
		}
	}
	return nil
}
