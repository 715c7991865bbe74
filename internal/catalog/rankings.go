package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/normanking/quorum/internal/data"
)

// rankModels scores the active catalog for one category and returns the full
// replacement ranking set, positions assigned from 1.
func rankModels(active []data.Model, category Category, now time.Time) []data.Ranking {
	type scored struct {
		idx   int
		score float64
	}

	entries := make([]scored, 0, len(active))
	for i := range active {
		entries = append(entries, scored{idx: i, score: categoryScore(&active[i], category)})
	}

	// Stable sort keeps catalog order for equal scores, so repeated
	// recomputation over an unchanged catalog is deterministic.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	rankings := make([]data.Ranking, 0, len(entries))
	for pos, e := range entries {
		rankings = append(rankings, data.Ranking{
			ModelInternalID: active[e.idx].InternalID,
			Source:          rankingSource,
			Position:        pos + 1,
			Score:           e.score,
			Category:        string(category),
			LastUpdated:     now,
		})
	}

	return rankings
}

// categoryScore computes one model's score for one ranking category.
// The weights are source-chosen heuristics, not derived values.
func categoryScore(m *data.Model, category Category) float64 {
	switch category {
	case CategoryProgramming:
		return programmingScore(m)
	case CategoryCost:
		return costScore(m)
	case CategoryPerformance:
		return performanceScore(m)
	}
	return 0
}

// programmingScore favors coding-focused, instruction-tuned models with
// large context windows.
func programmingScore(m *data.Model) float64 {
	nameLower := strings.ToLower(m.ExternalID + " " + m.Name)

	score := 50.0

	if strings.Contains(nameLower, "coder") || strings.Contains(nameLower, "code") {
		score += 20
	}
	if strings.Contains(nameLower, "instruct") {
		score += 10
	}

	// Frontier families known for tool-following accuracy.
	switch {
	case strings.Contains(nameLower, "claude"):
		score += 15
	case strings.Contains(nameLower, "gpt-4") || strings.Contains(nameLower, "gpt-5"):
		score += 15
	case strings.Contains(nameLower, "gemini"):
		score += 10
	case strings.Contains(nameLower, "qwen"):
		score += 10
	}

	for _, tag := range m.Capabilities {
		if strings.HasPrefix(tag, "instruct:") {
			score += 5
			break
		}
	}

	score += contextBonus(m.ContextWindow, 15)

	return score
}

// costScore ranks cheap models first. Models with no reported price sort as
// free, which matches how the marketplace lists promotional models.
func costScore(m *data.Model) float64 {
	perMillion := m.BlendedPrice() * 1_000_000
	return 100.0 / (1.0 + perMillion)
}

// performanceScore blends context capacity with a flat latency class per
// provider (fast-inference hosts score higher).
func performanceScore(m *data.Model) float64 {
	score := contextBonus(m.ContextWindow, 60)

	switch m.Provider {
	case "groq":
		score += 40
	case "openai", "anthropic", "google":
		score += 25
	case "mistralai", "deepseek":
		score += 15
	default:
		score += 5
	}

	return score
}

// contextBonus maps a context window onto [0, max] with diminishing returns
// past 128k tokens.
func contextBonus(contextWindow int, max float64) float64 {
	if contextWindow <= 0 {
		return 0
	}
	ratio := float64(contextWindow) / 128_000.0
	if ratio > 1 {
		ratio = 1
	}
	return max * ratio
}
