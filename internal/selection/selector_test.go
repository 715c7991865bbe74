package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/quorum/internal/catalog"
	"github.com/normanking/quorum/internal/data"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HARD FILTERS
// ═══════════════════════════════════════════════════════════════════════════════

func candidate(externalID, provider string, cost float64, latencyMs int, successRate float64) Candidate {
	return Candidate{
		Model: data.RankedModel{
			Model: data.Model{
				InternalID: uuid.NewString(),
				ExternalID: externalID,
				Provider:   provider,
				IsActive:   true,
			},
		},
		EstimatedCost:        cost,
		EstimatedLatencyMs:   latencyMs,
		EstimatedSuccessRate: successRate,
	}
}

func testPool() []Candidate {
	return []Candidate{
		candidate("anthropic/claude-3-opus", "anthropic", 0.08, 3000, 0.98),
		candidate("openai/gpt-4o", "openai", 0.04, 2500, 0.98),
		candidate("groq/llama-3-70b", "groq", 0.002, 800, 0.95),
		candidate("somehost/budget-model", "somehost", 0.0005, 5000, 0.90),
	}
}

func externalIDs(pool []Candidate) []string {
	ids := make([]string, 0, len(pool))
	for i := range pool {
		ids = append(ids, pool[i].ExternalID())
	}
	return ids
}

func TestApplyHardFilters_IndividualConstraints(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{
			name:     "max cost per stage",
			criteria: Criteria{Budget: &BudgetConstraints{MaxCostPerStage: 0.01}},
			want:     []string{"groq/llama-3-70b", "somehost/budget-model"},
		},
		{
			name:     "max latency",
			criteria: Criteria{Performance: &PerformanceTargets{MaxLatencyMs: 2500}},
			want:     []string{"openai/gpt-4o", "groq/llama-3-70b"},
		},
		{
			name:     "min success rate",
			criteria: Criteria{Performance: &PerformanceTargets{MinSuccessRate: 0.97}},
			want:     []string{"anthropic/claude-3-opus", "openai/gpt-4o"},
		},
		{
			name:     "preferred providers restrict",
			criteria: Criteria{Preferences: &UserPreferences{PreferredProviders: []string{"groq"}}},
			want:     []string{"groq/llama-3-70b"},
		},
		{
			name:     "avoided providers remove",
			criteria: Criteria{Preferences: &UserPreferences{AvoidedProviders: []string{"somehost"}}},
			want:     []string{"anthropic/claude-3-opus", "openai/gpt-4o", "groq/llama-3-70b"},
		},
		{
			name:     "blacklist removes by external id",
			criteria: Criteria{Preferences: &UserPreferences{Blacklist: []string{"openai/gpt-4o"}}},
			want:     []string{"anthropic/claude-3-opus", "groq/llama-3-70b", "somehost/budget-model"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered := applyHardFilters(testPool(), tt.criteria)
			assert.Equal(t, tt.want, externalIDs(filtered))
		})
	}
}

// Each filter only ever removes candidates: any combination of constraints
// yields a subset of what each constraint yields alone.
func TestApplyHardFilters_Monotonic(t *testing.T) {
	combined := Criteria{
		Budget:      &BudgetConstraints{MaxCostPerStage: 0.05},
		Performance: &PerformanceTargets{MaxLatencyMs: 4000, MinSuccessRate: 0.94},
		Preferences: &UserPreferences{AvoidedProviders: []string{"anthropic"}},
	}

	pool := testPool()
	full := map[string]bool{}
	for _, id := range externalIDs(pool) {
		full[id] = true
	}

	filtered := applyHardFilters(pool, combined)
	for _, id := range externalIDs(filtered) {
		assert.True(t, full[id], "filter admitted %s not present in the input pool", id)
	}

	// Adding a constraint can only shrink the result.
	tighter := combined
	tighter.Budget = &BudgetConstraints{MaxCostPerStage: 0.003}
	for _, id := range externalIDs(applyHardFilters(testPool(), tighter)) {
		found := false
		for _, outer := range externalIDs(filtered) {
			if id == outer {
				found = true
			}
		}
		assert.True(t, found, "tighter filter admitted %s that the looser filter removed", id)
	}
}

func TestApplyHardFilters_NoCriteriaKeepsAll(t *testing.T) {
	filtered := applyHardFilters(testPool(), Criteria{})
	assert.Len(t, filtered, 4)
}

// ═══════════════════════════════════════════════════════════════════════════════
// SOFT SCORING
// ═══════════════════════════════════════════════════════════════════════════════

func TestScorePool_Deterministic(t *testing.T) {
	s := NewSelector(nil, nil, Config{})
	criteria := Criteria{Performance: &PerformanceTargets{PrioritizeSpeed: true}}

	first := testPool()
	s.scorePool(first, StageGenerator, criteria)

	for i := 0; i < 5; i++ {
		again := testPool()
		s.scorePool(again, StageGenerator, criteria)
		assert.Equal(t, externalIDs(first), externalIDs(again))
		for j := range first {
			assert.Equal(t, first[j].SuitabilityScore, again[j].SuitabilityScore)
		}
	}
}

func TestScoreCandidate_StageTerms(t *testing.T) {
	s := NewSelector(nil, nil, Config{})

	big := candidate("openai/big", "openai", 0.01, 2500, 0.98)
	big.Model.ContextWindow = 128000
	small := candidate("openai/small", "openai", 0.01, 2500, 0.98)
	small.Model.ContextWindow = 8000

	// Generator rewards context headroom.
	s.scoreCandidate(&big, StageGenerator, Criteria{})
	s.scoreCandidate(&small, StageGenerator, Criteria{})
	assert.Greater(t, big.SuitabilityScore, small.SuitabilityScore)

	// Validator rewards cheapness.
	cheap := candidate("openai/cheap", "openai", 0.001, 2500, 0.98)
	cheap.Model.PricingInput = new(float64)
	cheap.Model.PricingOutput = new(float64)
	pricy := candidate("openai/pricy", "openai", 0.08, 2500, 0.98)
	in, out := 0.00002, 0.00006
	pricy.Model.PricingInput = &in
	pricy.Model.PricingOutput = &out
	s.scoreCandidate(&cheap, StageValidator, Criteria{})
	s.scoreCandidate(&pricy, StageValidator, Criteria{})
	assert.Greater(t, cheap.SuitabilityScore, pricy.SuitabilityScore)

	// Curator rewards the quality providers.
	quality := candidate("anthropic/claude-3-opus", "anthropic", 0.08, 3000, 0.98)
	commodity := candidate("anthropic/shadow", "anthropic", 0.08, 3000, 0.98)
	commodity.Model.Provider = "somehost"
	s.scoreCandidate(&quality, StageCurator, Criteria{})
	s.scoreCandidate(&commodity, StageCurator, Criteria{})
	assert.Greater(t, quality.SuitabilityScore, commodity.SuitabilityScore)
}

// ═══════════════════════════════════════════════════════════════════════════════
// FULL SELECTION AGAINST A SEEDED CATALOG
// ═══════════════════════════════════════════════════════════════════════════════

func setupSeededSelector(t *testing.T) (*Selector, *data.Store) {
	t.Helper()

	store, err := data.NewDB(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	in1, out1 := 0.000015, 0.000075
	in2, out2 := 0.0000001, 0.0000002
	models := []data.Model{
		{
			InternalID: uuid.NewString(), ExternalID: "anthropic/claude-3-opus",
			Provider: "anthropic", Name: "Claude 3 Opus", ContextWindow: 200000,
			PricingInput: &in1, PricingOutput: &out1,
		},
		{
			InternalID: uuid.NewString(), ExternalID: "deepseek/deepseek-coder",
			Provider: "deepseek", Name: "DeepSeek Coder", ContextWindow: 64000,
			PricingInput: &in2, PricingOutput: &out2,
		},
	}
	require.NoError(t, store.UpsertModels(context.Background(), models, time.Now().UTC()))

	cat := catalog.New(store, nil)
	require.NoError(t, cat.RecomputeRankings(context.Background(), time.Now().UTC()))

	return NewSelector(cat, store, Config{}), store
}

func TestSelectOptimalModel_ReturnsCandidateAndAudits(t *testing.T) {
	s, store := setupSeededSelector(t)
	ctx := context.Background()

	chosen, err := s.SelectOptimalModel(ctx, "conv-1", StageGenerator, Criteria{})
	require.NoError(t, err)
	require.NotNil(t, chosen)
	assert.NotZero(t, chosen.SuitabilityScore)

	audit, err := store.SelectionsFor(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, string(StageGenerator), audit[0].Stage)
	assert.Equal(t, chosen.ExternalID(), audit[0].ExternalID)
}

func TestSelectOptimalModel_FallbackIgnoresFilters(t *testing.T) {
	s, _ := setupSeededSelector(t)
	ctx := context.Background()

	// A budget nothing satisfies must not fail the stage: availability
	// beats strict constraint satisfaction.
	criteria := Criteria{Budget: &BudgetConstraints{MaxCostPerStage: 0.000000001}}
	chosen, err := s.SelectOptimalModel(ctx, "conv-2", StageGenerator, criteria)
	require.NoError(t, err)
	require.NotNil(t, chosen)
}

func TestSelectOptimalModel_EmptyCatalogErrors(t *testing.T) {
	store, err := data.NewDB(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	s := NewSelector(catalog.New(store, nil), store, Config{})
	_, err = s.SelectOptimalModel(context.Background(), "conv-3", StageValidator, Criteria{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSuitableModel))
}

func TestSelectOptimalModel_StagePools(t *testing.T) {
	s, _ := setupSeededSelector(t)
	ctx := context.Background()

	// Every pipeline stage plus the direct path resolves against the
	// seeded two-model catalog.
	for _, stage := range append(PipelineStages, StageDirect) {
		chosen, err := s.SelectOptimalModel(ctx, "conv-4", stage, Criteria{})
		require.NoError(t, err, "stage %s", stage)
		require.NotNil(t, chosen, "stage %s", stage)
	}
}

func TestSelectOptimalModel_PreferredProviderWins(t *testing.T) {
	s, _ := setupSeededSelector(t)
	ctx := context.Background()

	criteria := Criteria{Preferences: &UserPreferences{PreferredProviders: []string{"deepseek"}}}
	chosen, err := s.SelectOptimalModel(ctx, "conv-5", StageGenerator, criteria)
	require.NoError(t, err)
	assert.Equal(t, "deepseek/deepseek-coder", chosen.ExternalID())
}
