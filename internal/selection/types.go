// Package selection converts catalog rankings into stage-specific candidate
// lists and picks one model per pipeline stage under hard constraints and
// soft scoring.
package selection

import (
	"github.com/normanking/quorum/internal/data"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STAGES
// ═══════════════════════════════════════════════════════════════════════════════

// Stage is one step of the consensus pipeline.
type Stage string

const (
	StageGenerator Stage = "generator"
	StageRefiner   Stage = "refiner"
	StageValidator Stage = "validator"
	StageCurator   Stage = "curator"

	// StageDirect is the single ad-hoc stage of the fast path. It draws
	// from the Generator pool.
	StageDirect Stage = "direct"
)

// PipelineStages lists the consensus stages in execution order.
var PipelineStages = []Stage{StageGenerator, StageRefiner, StageValidator, StageCurator}

// String returns the stage name for display.
func (s Stage) String() string {
	return string(s)
}

// ═══════════════════════════════════════════════════════════════════════════════
// SELECTION CRITERIA
// ═══════════════════════════════════════════════════════════════════════════════

// BudgetConstraints are optional per-selection cost limits.
type BudgetConstraints struct {
	// MaxCostPerStage caps the estimated cost of one stage (0 = unlimited).
	MaxCostPerStage float64 `json:"max_cost_per_stage,omitempty"`

	// MaxTotalCost caps the whole run (advisory; enforced by the caller).
	MaxTotalCost float64 `json:"max_total_cost,omitempty"`

	// CostEfficiencyTarget is an advisory cost-per-quality target.
	CostEfficiencyTarget float64 `json:"cost_efficiency_target,omitempty"`

	// PrioritizeCost adds a cheapness bonus during soft scoring.
	PrioritizeCost bool `json:"prioritize_cost,omitempty"`
}

// PerformanceTargets are optional latency/reliability requirements.
type PerformanceTargets struct {
	// MaxLatencyMs filters out candidates estimated slower than this
	// (0 = unlimited).
	MaxLatencyMs int `json:"max_latency_ms,omitempty"`

	// MinSuccessRate filters out candidates estimated below it (0 = off).
	MinSuccessRate float64 `json:"min_success_rate,omitempty"`

	// PrioritizeSpeed / PrioritizeQuality add soft-scoring bonuses.
	PrioritizeSpeed   bool `json:"prioritize_speed,omitempty"`
	PrioritizeQuality bool `json:"prioritize_quality,omitempty"`
}

// UserPreferences are optional provider/model restrictions.
type UserPreferences struct {
	// PreferredProviders, when non-empty, restricts the pool to them.
	PreferredProviders []string `json:"preferred_providers,omitempty"`

	// AvoidedProviders removes matching providers.
	AvoidedProviders []string `json:"avoided_providers,omitempty"`

	// PreferredFeatures are capability tags that earn a scoring bonus.
	PreferredFeatures []string `json:"preferred_features,omitempty"`

	// Blacklist removes matching external model identifiers.
	Blacklist []string `json:"blacklist,omitempty"`
}

// Criteria drive one selection call.
type Criteria struct {
	// Complexity and Category are free-form labels recorded in the audit row.
	Complexity string `json:"complexity,omitempty"`
	Category   string `json:"category,omitempty"`

	Budget      *BudgetConstraints  `json:"budget,omitempty"`
	Performance *PerformanceTargets `json:"performance,omitempty"`
	Preferences *UserPreferences    `json:"preferences,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// CANDIDATES
// ═══════════════════════════════════════════════════════════════════════════════

// Candidate is a scored, ephemeral binding of one model to one stage for a
// single selection call. It is recomputed per call, never cached.
type Candidate struct {
	Model data.RankedModel

	// EstimatedCost is the projected cost of one stage with this model.
	EstimatedCost float64

	// EstimatedLatencyMs is the projected stage latency.
	EstimatedLatencyMs int

	// EstimatedSuccessRate is the projected completion probability.
	EstimatedSuccessRate float64

	// SuitabilityScore is filled in only after soft scoring.
	SuitabilityScore float64
}

// ExternalID is a convenience accessor for the candidate's marketplace id.
func (c *Candidate) ExternalID() string {
	return c.Model.ExternalID
}
