// Package routing classifies a unit of work as Direct, Consensus-Assisted,
// or Consensus-Required, deciding whether the full pipeline runs at all.
package routing

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Decision is the routing outcome for one unit of work.
type Decision string

const (
	// DecisionDirect bypasses the pipeline via the single-stage fast path.
	DecisionDirect Decision = "direct"

	// DecisionConsensusAssisted runs the pipeline with partial validation.
	DecisionConsensusAssisted Decision = "consensus_assisted"

	// DecisionConsensusRequired runs the pipeline with full validation.
	DecisionConsensusRequired Decision = "consensus_required"
)

// String returns the decision name for display.
func (d Decision) String() string {
	return string(d)
}

// Trigger names one of the six classification signals.
type Trigger string

const (
	TriggerHighRisk           Trigger = "high_risk_operation"
	TriggerArchitecturalChange Trigger = "architectural_change"
	TriggerUserRequested      Trigger = "user_requested_analysis"
	TriggerLowConfidence      Trigger = "low_confidence"
	TriggerHighComplexity     Trigger = "high_complexity"
	TriggerMultipleApproaches Trigger = "multiple_approaches"
)

// Criteria are the six signals the classification is a pure function of.
type Criteria struct {
	ArchitecturalChange   bool    `json:"architectural_change"`
	HighRiskOperation     bool    `json:"high_risk_operation"`
	ConfidenceLevel       float64 `json:"confidence_level"`
	MultipleApproaches    bool    `json:"multiple_approaches"`
	UserRequestedAnalysis bool    `json:"user_requested_analysis"`
	ComplexityScore       float64 `json:"complexity_score"`
}

// Result carries the decision and the triggers that fired, for audit logs.
type Result struct {
	Decision Decision
	Triggers []Trigger
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the classification thresholds and the policy mapping triggers
// to consensus depth. All values are source-chosen constants surfaced as
// configuration; they are not derived.
type Config struct {
	// ConfidenceThreshold fires the low-confidence trigger below it.
	ConfidenceThreshold float64

	// ComplexityThreshold fires the high-complexity trigger above it.
	ComplexityThreshold float64

	// Policy maps a fired trigger to a consensus depth. The most demanding
	// depth across all fired triggers wins. Triggers absent from the map
	// default to ConsensusAssisted.
	Policy map[Trigger]Decision

	// SimplePhrases and ComplexPhrases drive the free-text direct-path hint.
	SimplePhrases  []string
	ComplexPhrases []string
}

// DefaultConfig returns the source policy: high-risk operations demand full
// validation, every other trigger gets assisted consensus.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		ComplexityThreshold: 0.8,
		Policy: map[Trigger]Decision{
			TriggerHighRisk: DecisionConsensusRequired,
		},
		SimplePhrases: []string{
			"rename", "fix typo", "add comment", "format", "update import",
			"bump version", "small change", "quick fix",
		},
		ComplexPhrases: []string{
			"refactor", "architecture", "redesign", "migrate", "analyze",
			"security", "concurrency", "performance review", "trade-off",
		},
	}
}

// Engine classifies units of work.
type Engine struct {
	config Config
}

// NewEngine creates a routing engine. A zero-threshold config falls back to
// the defaults so a partially filled config file cannot disable triggers.
func NewEngine(cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if cfg.ComplexityThreshold == 0 {
		cfg.ComplexityThreshold = defaults.ComplexityThreshold
	}
	if cfg.Policy == nil {
		cfg.Policy = defaults.Policy
	}
	if cfg.SimplePhrases == nil {
		cfg.SimplePhrases = defaults.SimplePhrases
	}
	if cfg.ComplexPhrases == nil {
		cfg.ComplexPhrases = defaults.ComplexPhrases
	}

	return &Engine{config: cfg}
}

// Classify evaluates the six triggers as a pure OR. All false means Direct;
// otherwise the policy decides consensus depth, with the most demanding
// depth across fired triggers winning.
func (e *Engine) Classify(c Criteria) Result {
	var fired []Trigger

	if c.HighRiskOperation {
		fired = append(fired, TriggerHighRisk)
	}
	if c.ArchitecturalChange {
		fired = append(fired, TriggerArchitecturalChange)
	}
	if c.UserRequestedAnalysis {
		fired = append(fired, TriggerUserRequested)
	}
	if c.ConfidenceLevel < e.config.ConfidenceThreshold {
		fired = append(fired, TriggerLowConfidence)
	}
	if c.ComplexityScore > e.config.ComplexityThreshold {
		fired = append(fired, TriggerHighComplexity)
	}
	if c.MultipleApproaches {
		fired = append(fired, TriggerMultipleApproaches)
	}

	if len(fired) == 0 {
		return Result{Decision: DecisionDirect}
	}

	decision := DecisionConsensusAssisted
	for _, t := range fired {
		if e.config.Policy[t] == DecisionConsensusRequired {
			decision = DecisionConsensusRequired
			break
		}
	}

	log.Debug().Str("decision", string(decision)).
		Interface("triggers", fired).
		Msg("work classified")

	return Result{Decision: decision, Triggers: fired}
}

// ShouldUseDirectPath is a cheap free-text pre-filter used before the full
// criteria are known. It is an early, reversible hint only: once an explicit
// Classify result exists, that result always wins.
func (e *Engine) ShouldUseDirectPath(text string) bool {
	lower := strings.ToLower(text)

	for _, phrase := range e.config.ComplexPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	for _, phrase := range e.config.SimplePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	return false
}
