package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/quorum/internal/catalog"
	"github.com/normanking/quorum/internal/data"
)

// ErrNoSuitableModel is returned only when the catalog has zero active
// models anywhere relevant to the stage. An empty pool after filtering is
// not an error; the filter-ignoring fallback resolves it.
var ErrNoSuitableModel = errors.New("no suitable model: catalog has no active models for stage")

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the pool sizes and scoring weights. The weights are
// source-chosen constants surfaced as configuration, not derived values.
type Config struct {
	// Pool sizes per stage source.
	ProgrammingPoolSize int
	CostPoolSize        int
	BlendPoolSize       int

	// ProviderReputation is the flat base score per provider name.
	// Unknown providers use DefaultReputation.
	ProviderReputation map[string]float64
	DefaultReputation  float64

	// QualityProviders earn the Curator stage bonus.
	QualityProviders []string

	// Stage and priority bonuses.
	ContextBonusMax    float64
	InverseCostBonus   float64
	QualityStageBonus  float64
	CostPriorityBonus  float64
	SpeedPriorityBonus float64
	QualityPriorityBonus float64

	// EstimatedTokensPerStage sizes the per-stage cost estimate.
	EstimatedTokensPerStage int
}

// DefaultConfig returns the source scoring constants.
func DefaultConfig() Config {
	return Config{
		ProgrammingPoolSize: 20,
		CostPoolSize:        15,
		BlendPoolSize:       10,
		ProviderReputation: map[string]float64{
			"anthropic": 9.5,
			"openai":    9.0,
			"google":    8.5,
			"mistralai": 7.5,
			"deepseek":  7.5,
			"meta-llama": 7.0,
			"qwen":       7.0,
			"groq":       6.5,
		},
		DefaultReputation:    5.0,
		QualityProviders:     []string{"anthropic", "openai", "google"},
		ContextBonusMax:      5.0,
		InverseCostBonus:     5.0,
		QualityStageBonus:    3.0,
		CostPriorityBonus:    2.0,
		SpeedPriorityBonus:   2.0,
		QualityPriorityBonus: 2.0,
		EstimatedTokensPerStage: 4000,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SELECTOR
// ═══════════════════════════════════════════════════════════════════════════════

// Selector picks one model per stage from the catalog's ranked pools.
type Selector struct {
	catalog *catalog.Catalog
	store   *data.Store
	config  Config
}

// NewSelector creates a selector. Zero config fields fall back to defaults.
func NewSelector(cat *catalog.Catalog, store *data.Store, cfg Config) *Selector {
	defaults := DefaultConfig()
	if cfg.ProgrammingPoolSize == 0 {
		cfg.ProgrammingPoolSize = defaults.ProgrammingPoolSize
	}
	if cfg.CostPoolSize == 0 {
		cfg.CostPoolSize = defaults.CostPoolSize
	}
	if cfg.BlendPoolSize == 0 {
		cfg.BlendPoolSize = defaults.BlendPoolSize
	}
	if cfg.ProviderReputation == nil {
		cfg.ProviderReputation = defaults.ProviderReputation
	}
	if cfg.DefaultReputation == 0 {
		cfg.DefaultReputation = defaults.DefaultReputation
	}
	if cfg.QualityProviders == nil {
		cfg.QualityProviders = defaults.QualityProviders
	}
	if cfg.ContextBonusMax == 0 {
		cfg.ContextBonusMax = defaults.ContextBonusMax
	}
	if cfg.InverseCostBonus == 0 {
		cfg.InverseCostBonus = defaults.InverseCostBonus
	}
	if cfg.QualityStageBonus == 0 {
		cfg.QualityStageBonus = defaults.QualityStageBonus
	}
	if cfg.CostPriorityBonus == 0 {
		cfg.CostPriorityBonus = defaults.CostPriorityBonus
	}
	if cfg.SpeedPriorityBonus == 0 {
		cfg.SpeedPriorityBonus = defaults.SpeedPriorityBonus
	}
	if cfg.QualityPriorityBonus == 0 {
		cfg.QualityPriorityBonus = defaults.QualityPriorityBonus
	}
	if cfg.EstimatedTokensPerStage == 0 {
		cfg.EstimatedTokensPerStage = defaults.EstimatedTokensPerStage
	}

	return &Selector{catalog: cat, store: store, config: cfg}
}

// SelectOptimalModel picks the best candidate for one stage: gather the
// stage pool, apply hard filters in order, soft-score the survivors, and
// fall back to the best-ranked active model when filtering empties the pool.
// The decision is recorded as a best-effort audit row.
func (s *Selector) SelectOptimalModel(ctx context.Context, conversationID string, stage Stage, criteria Criteria) (*Candidate, error) {
	pool, err := s.gatherPool(ctx, stage)
	if err != nil {
		return nil, fmt.Errorf("gather %s pool: %w", stage, err)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuitableModel, stage)
	}

	filtered := applyHardFilters(pool, criteria)

	var chosen *Candidate
	if len(filtered) == 0 {
		// Availability beats strict constraint satisfaction: ignore the
		// filters and take the best-ranked active model of the primary pool.
		chosen = &pool[0]
		s.scoreCandidate(chosen, stage, criteria)
		log.Warn().Str("stage", string(stage)).
			Str("model", chosen.ExternalID()).
			Msg("all candidates filtered out, using unfiltered fallback")
	} else {
		s.scorePool(filtered, stage, criteria)
		chosen = &filtered[0]
	}

	s.recordSelection(ctx, conversationID, stage, chosen, criteria)

	return chosen, nil
}

// gatherPool assembles the stage-specific candidate pool from the catalog
// rankings. Candidates are ephemeral; nothing here is cached across calls.
func (s *Selector) gatherPool(ctx context.Context, stage Stage) ([]Candidate, error) {
	var ranked []data.RankedModel
	var err error

	switch stage {
	case StageGenerator, StageCurator, StageDirect:
		ranked, err = s.catalog.TopRanked(ctx, catalog.CategoryProgramming, s.config.ProgrammingPoolSize)
	case StageValidator:
		ranked, err = s.catalog.TopRanked(ctx, catalog.CategoryCost, s.config.CostPoolSize)
	case StageRefiner:
		ranked, err = s.blendedPool(ctx)
	default:
		return nil, fmt.Errorf("unknown stage: %s", stage)
	}
	if err != nil {
		return nil, err
	}

	pool := make([]Candidate, 0, len(ranked))
	for _, rm := range ranked {
		pool = append(pool, s.newCandidate(rm))
	}
	return pool, nil
}

// blendedPool merges the programming and cost pools for the Refiner stage,
// programming entries first, deduplicated by internal id.
func (s *Selector) blendedPool(ctx context.Context) ([]data.RankedModel, error) {
	programming, err := s.catalog.TopRanked(ctx, catalog.CategoryProgramming, s.config.BlendPoolSize)
	if err != nil {
		return nil, err
	}
	cost, err := s.catalog.TopRanked(ctx, catalog.CategoryCost, s.config.BlendPoolSize)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(programming))
	blended := make([]data.RankedModel, 0, len(programming)+len(cost))
	for _, rm := range programming {
		seen[rm.InternalID] = true
		blended = append(blended, rm)
	}
	for _, rm := range cost {
		if !seen[rm.InternalID] {
			blended = append(blended, rm)
		}
	}

	return blended, nil
}

// newCandidate derives the per-call cost/latency/reliability estimates.
func (s *Selector) newCandidate(rm data.RankedModel) Candidate {
	tokens := float64(s.config.EstimatedTokensPerStage)

	return Candidate{
		Model:                rm,
		EstimatedCost:        rm.BlendedPrice() * tokens,
		EstimatedLatencyMs:   estimateLatencyMs(rm.Provider),
		EstimatedSuccessRate: estimateSuccessRate(rm.Provider),
	}
}

// estimateLatencyMs is a flat latency class per provider. Heuristic.
func estimateLatencyMs(provider string) int {
	switch provider {
	case "groq":
		return 800
	case "openai", "google":
		return 2500
	case "anthropic":
		return 3000
	case "mistralai", "deepseek":
		return 3500
	default:
		return 5000
	}
}

// estimateSuccessRate is a flat reliability class per provider. Heuristic.
func estimateSuccessRate(provider string) float64 {
	switch provider {
	case "openai", "anthropic", "google":
		return 0.98
	case "groq", "mistralai", "deepseek":
		return 0.95
	default:
		return 0.90
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HARD FILTERS
// ═══════════════════════════════════════════════════════════════════════════════

// applyHardFilters applies each constraint in a fixed order. Every filter is
// independently monotonic: it only ever removes candidates, so the result is
// a subset of the input for any combination of constraints.
func applyHardFilters(pool []Candidate, criteria Criteria) []Candidate {
	out := make([]Candidate, 0, len(pool))
	out = append(out, pool...)

	if b := criteria.Budget; b != nil && b.MaxCostPerStage > 0 {
		out = keep(out, func(c *Candidate) bool { return c.EstimatedCost <= b.MaxCostPerStage })
	}
	if p := criteria.Performance; p != nil {
		if p.MaxLatencyMs > 0 {
			out = keep(out, func(c *Candidate) bool { return c.EstimatedLatencyMs <= p.MaxLatencyMs })
		}
		if p.MinSuccessRate > 0 {
			out = keep(out, func(c *Candidate) bool { return c.EstimatedSuccessRate >= p.MinSuccessRate })
		}
	}
	if u := criteria.Preferences; u != nil {
		if len(u.PreferredProviders) > 0 {
			preferred := toSet(u.PreferredProviders)
			out = keep(out, func(c *Candidate) bool { return preferred[c.Model.Provider] })
		}
		if len(u.AvoidedProviders) > 0 {
			avoided := toSet(u.AvoidedProviders)
			out = keep(out, func(c *Candidate) bool { return !avoided[c.Model.Provider] })
		}
		if len(u.Blacklist) > 0 {
			blocked := toSet(u.Blacklist)
			out = keep(out, func(c *Candidate) bool { return !blocked[c.Model.ExternalID] })
		}
	}

	return out
}

func keep(pool []Candidate, pred func(*Candidate) bool) []Candidate {
	out := pool[:0]
	for i := range pool {
		if pred(&pool[i]) {
			out = append(out, pool[i])
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// ═══════════════════════════════════════════════════════════════════════════════
// SOFT SCORING
// ═══════════════════════════════════════════════════════════════════════════════

// scorePool fills in suitability scores and sorts descending. The sort is
// stable so ties keep catalog rank order, making repeated calls with the
// same inputs deterministic.
func (s *Selector) scorePool(pool []Candidate, stage Stage, criteria Criteria) {
	for i := range pool {
		s.scoreCandidate(&pool[i], stage, criteria)
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].SuitabilityScore > pool[j].SuitabilityScore
	})
}

// scoreCandidate computes one candidate's suitability score: provider
// reputation base, a stage-specific term, and optional priority bonuses.
func (s *Selector) scoreCandidate(c *Candidate, stage Stage, criteria Criteria) {
	score, ok := s.config.ProviderReputation[c.Model.Provider]
	if !ok {
		score = s.config.DefaultReputation
	}

	switch stage {
	case StageGenerator, StageDirect:
		// Generation wants headroom: reward large context windows.
		ratio := float64(c.Model.ContextWindow) / 128_000.0
		if ratio > 1 {
			ratio = 1
		}
		score += s.config.ContextBonusMax * ratio
	case StageRefiner, StageValidator:
		// Refinement and validation run often: reward cheapness.
		perMillion := c.Model.BlendedPrice() * 1_000_000
		score += s.config.InverseCostBonus / (1.0 + perMillion)
	case StageCurator:
		for _, p := range s.config.QualityProviders {
			if c.Model.Provider == p {
				score += s.config.QualityStageBonus
				break
			}
		}
	}

	if b := criteria.Budget; b != nil && b.PrioritizeCost {
		perMillion := c.Model.BlendedPrice() * 1_000_000
		score += s.config.CostPriorityBonus / (1.0 + perMillion)
	}
	if p := criteria.Performance; p != nil {
		if p.PrioritizeSpeed {
			score += s.config.SpeedPriorityBonus * 1000.0 / float64(c.EstimatedLatencyMs+1000)
		}
		if p.PrioritizeQuality {
			rep, ok := s.config.ProviderReputation[c.Model.Provider]
			if !ok {
				rep = s.config.DefaultReputation
			}
			score += s.config.QualityPriorityBonus * rep / 10.0
		}
	}
	if u := criteria.Preferences; u != nil && len(u.PreferredFeatures) > 0 {
		tags := toSet(c.Model.Capabilities)
		for _, feature := range u.PreferredFeatures {
			if tags[feature] {
				score += 0.5
			}
		}
	}

	c.SuitabilityScore = score
}

// ═══════════════════════════════════════════════════════════════════════════════
// AUDIT
// ═══════════════════════════════════════════════════════════════════════════════

// recordSelection persists the decision as an audit row. Persistence failure
// must not fail the selection itself.
func (s *Selector) recordSelection(ctx context.Context, conversationID string, stage Stage, c *Candidate, criteria Criteria) {
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		criteriaJSON = []byte("{}")
	}

	sel := &data.Selection{
		ConversationID:   conversationID,
		Stage:            string(stage),
		ModelInternalID:  c.Model.InternalID,
		ExternalID:       c.Model.ExternalID,
		CriteriaJSON:     string(criteriaJSON),
		SuitabilityScore: c.SuitabilityScore,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.store.RecordSelection(ctx, sel); err != nil {
		log.Warn().Err(err).Str("stage", string(stage)).
			Str("model", c.Model.ExternalID).
			Msg("failed to record selection audit row")
	}
}
