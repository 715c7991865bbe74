// Package maintenance keeps the catalog and the stored routing profiles
// healthy: it syncs the catalog, validates every profile's per-stage model
// references, and migrates stale references onto replacement models.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/quorum/internal/catalog"
	"github.com/normanking/quorum/internal/data"
)

// ErrMigrationUnresolvable marks a profile migration that found no active
// replacement for a stale slot. The profile is left untouched.
var ErrMigrationUnresolvable = errors.New("migration unresolvable")

// Clock abstracts time for deterministic interval tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Config holds maintenance tuning. The keyword lists drive the replacement
// search heuristics; the defaults are deliberate, not derived.
type Config struct {
	// Interval between automatic runs.
	Interval time.Duration

	// FlagshipProviders bounds the cross-provider replacement tier.
	FlagshipProviders []string

	// Tier keywords classify models by name substring for cross-provider
	// replacement ordering.
	FlagshipKeywords []string
	FastKeywords     []string

	// PatternTokens are the name tokens considered shared "model family"
	// markers in the same-provider replacement tier.
	PatternTokens []string
}

// DefaultConfig returns the stock maintenance settings.
func DefaultConfig() Config {
	return Config{
		Interval:          24 * time.Hour,
		FlagshipProviders: []string{"anthropic", "openai", "google"},
		FlagshipKeywords:  []string{"opus", "gpt-4", "gpt-5", "ultra", "pro"},
		FastKeywords:      []string{"turbo", "haiku", "flash", "mini"},
		PatternTokens: []string{
			"opus", "sonnet", "haiku", "turbo", "mini", "flash",
			"pro", "ultra", "coder", "instruct", "claude", "gpt",
			"gemini", "llama", "qwen", "deepseek",
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// REPORT TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// ModelValidation is the outcome of checking one profile slot.
type ModelValidation struct {
	Slot        data.ProfileSlot `json:"slot"`
	ExternalID  string           `json:"external_id"`
	Valid       bool             `json:"valid"`
	Replacement string           `json:"replacement,omitempty"`
}

// MaintenanceReport summarizes one run. Immutable once returned.
type MaintenanceReport struct {
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	SyncedModels     int       `json:"synced_models"`
	SyncError        string    `json:"sync_error,omitempty"`
	ProfilesChecked  int       `json:"profiles_checked"`
	InvalidProfiles  []string  `json:"invalid_profiles,omitempty"`
	MigratedProfiles []string  `json:"migrated_profiles,omitempty"`
	Errors           []string  `json:"errors,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE
// ═══════════════════════════════════════════════════════════════════════════════

// Maintenance runs periodic catalog and profile upkeep.
type Maintenance struct {
	catalog *catalog.Catalog
	store   *data.Store
	clock   Clock
	config  Config

	lastRun time.Time
}

// New creates a maintenance runner. A nil clock uses the system clock.
func New(cat *catalog.Catalog, store *data.Store, clock Clock, cfg Config) *Maintenance {
	if clock == nil {
		clock = SystemClock{}
	}
	defaults := DefaultConfig()
	if cfg.Interval == 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.FlagshipProviders == nil {
		cfg.FlagshipProviders = defaults.FlagshipProviders
	}
	if cfg.FlagshipKeywords == nil {
		cfg.FlagshipKeywords = defaults.FlagshipKeywords
	}
	if cfg.FastKeywords == nil {
		cfg.FastKeywords = defaults.FastKeywords
	}
	if cfg.PatternTokens == nil {
		cfg.PatternTokens = defaults.PatternTokens
	}

	return &Maintenance{catalog: cat, store: store, clock: clock, config: cfg}
}

// NeedsMaintenance reports whether the configured interval has elapsed
// since the last completed run.
func (m *Maintenance) NeedsMaintenance() bool {
	if m.lastRun.IsZero() {
		return true
	}
	return m.clock.Now().Sub(m.lastRun) >= m.config.Interval
}

// Run performs one maintenance pass: sync, validate, migrate. A sync
// failure is recorded and the pass continues against the last-known-good
// catalog. Profile migrations are isolated; one profile's unresolvable
// migration never blocks the others.
func (m *Maintenance) Run(ctx context.Context) *MaintenanceReport {
	report := &MaintenanceReport{StartedAt: m.clock.Now()}

	count, err := m.catalog.Sync(ctx)
	if err != nil {
		report.SyncError = err.Error()
		log.Warn().Err(err).Msg("catalog sync failed, continuing with existing catalog")
	} else {
		report.SyncedModels = count
	}

	profiles, err := m.store.Profiles(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list profiles: %v", err))
		report.FinishedAt = m.clock.Now()
		m.lastRun = report.FinishedAt
		return report
	}
	report.ProfilesChecked = len(profiles)

	for i := range profiles {
		p := &profiles[i]

		validations, err := m.validateProfile(ctx, p)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("profile %s: %v", p.ID, err))
			continue
		}
		if allValid(validations) {
			continue
		}
		report.InvalidProfiles = append(report.InvalidProfiles, p.ID)

		if err := m.migrateProfile(ctx, p); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("migrate profile %s: %v", p.ID, err))
			log.Error().Err(err).Str("profile", p.ID).Msg("profile migration failed")
			continue
		}
		report.MigratedProfiles = append(report.MigratedProfiles, p.ID)
		log.Info().Str("profile", p.ID).Msg("profile migrated to active models")
	}

	report.FinishedAt = m.clock.Now()
	m.lastRun = report.FinishedAt

	log.Info().Int("synced", report.SyncedModels).
		Int("checked", report.ProfilesChecked).
		Int("invalid", len(report.InvalidProfiles)).
		Int("migrated", len(report.MigratedProfiles)).
		Msg("maintenance run complete")

	return report
}

// validateProfile checks all four slots of one profile against the active
// catalog.
func (m *Maintenance) validateProfile(ctx context.Context, p *data.Profile) ([]ModelValidation, error) {
	validations := make([]ModelValidation, 0, len(data.ProfileSlots))
	for _, slot := range data.ProfileSlots {
		v, err := m.validateModel(ctx, slot, p.ModelFor(slot))
		if err != nil {
			return nil, err
		}
		validations = append(validations, v)
	}
	return validations, nil
}

// validateModel checks one slot reference and, when invalid, searches for a
// replacement. A missing replacement is not an error here; migration
// decides whether that fails the profile.
func (m *Maintenance) validateModel(ctx context.Context, slot data.ProfileSlot, externalID string) (ModelValidation, error) {
	v := ModelValidation{Slot: slot, ExternalID: externalID}

	active, err := m.store.ActiveModelByExternalID(ctx, externalID)
	if err != nil {
		return v, fmt.Errorf("look up %s: %w", externalID, err)
	}
	if active != nil {
		v.Valid = true
		return v, nil
	}

	replacement, err := m.FindReplacement(ctx, externalID)
	if err != nil {
		return v, fmt.Errorf("find replacement for %s: %w", externalID, err)
	}
	if replacement != nil {
		v.Replacement = replacement.ExternalID
	}
	return v, nil
}

// migrateProfile re-validates each slot independently and substitutes
// replacements only for invalid slots. The migration fails as a whole when
// any invalid slot's replacement search comes up empty.
func (m *Maintenance) migrateProfile(ctx context.Context, p *data.Profile) error {
	updated := *p
	changed := false

	for _, slot := range data.ProfileSlots {
		v, err := m.validateModel(ctx, slot, updated.ModelFor(slot))
		if err != nil {
			return err
		}
		if v.Valid {
			continue
		}
		if v.Replacement == "" {
			return fmt.Errorf("%w: no replacement for %s slot model %s", ErrMigrationUnresolvable, slot, v.ExternalID)
		}
		updated.SetModelFor(slot, v.Replacement)
		changed = true
		log.Info().Str("profile", p.ID).
			Str("slot", string(slot)).
			Str("from", v.ExternalID).
			Str("to", v.Replacement).
			Msg("migrating profile slot")
	}

	if !changed {
		return nil
	}
	if err := m.store.UpdateProfileModels(ctx, p.ID, &updated, m.clock.Now().UTC()); err != nil {
		return fmt.Errorf("persist migration: %w", err)
	}
	*p = updated
	return nil
}

func allValid(validations []ModelValidation) bool {
	for _, v := range validations {
		if !v.Valid {
			return false
		}
	}
	return true
}

// ═══════════════════════════════════════════════════════════════════════════════
// REPLACEMENT SEARCH
// ═══════════════════════════════════════════════════════════════════════════════

// FindReplacement searches for an active substitute for a stale external
// id, trying three tiers in order:
//
//	(a) same provider, sharing a name-pattern token with the stale model,
//	    ordered by context window desc then blended price asc;
//	(b) same provider, best available by the same ordering;
//	(c) cross-provider among the flagship providers, ordered by a
//	    name-substring tier heuristic (flagship, fast, standard).
//
// The token and keyword matching is fuzzy by construction; it can pair
// unrelated families that happen to share a marker like "turbo".
// Returns (nil, nil) when all three tiers are exhausted.
func (m *Maintenance) FindReplacement(ctx context.Context, staleExternalID string) (*data.Model, error) {
	provider, name := splitExternalID(staleExternalID)
	staleTokens := m.patternTokensIn(name)

	if provider != "" {
		// ActiveModels already orders by context window desc, price asc.
		sameProvider, err := m.store.ActiveModels(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("list %s models: %w", provider, err)
		}

		// Tier (a): shared name-pattern token.
		if len(staleTokens) > 0 {
			for i := range sameProvider {
				if sharesToken(m.patternTokensIn(sameProvider[i].Name), staleTokens) {
					return &sameProvider[i], nil
				}
			}
		}

		// Tier (b): best same-provider model.
		if len(sameProvider) > 0 {
			return &sameProvider[0], nil
		}
	}

	// Tier (c): cross-provider flagships, best tier first.
	var best *data.Model
	bestTier := tierStandard + 1
	for _, fp := range m.config.FlagshipProviders {
		models, err := m.store.ActiveModels(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("list %s models: %w", fp, err)
		}
		for i := range models {
			t := m.nameTier(models[i].Name)
			if t < bestTier {
				best = &models[i]
				bestTier = t
			}
		}
	}
	return best, nil
}

type modelTier int

const (
	tierFlagship modelTier = iota
	tierFast
	tierStandard
)

// nameTier classifies a model name by substring keyword.
func (m *Maintenance) nameTier(name string) modelTier {
	lower := strings.ToLower(name)
	for _, kw := range m.config.FlagshipKeywords {
		if strings.Contains(lower, kw) {
			return tierFlagship
		}
	}
	for _, kw := range m.config.FastKeywords {
		if strings.Contains(lower, kw) {
			return tierFast
		}
	}
	return tierStandard
}

// patternTokensIn returns the configured family tokens present in a name.
func (m *Maintenance) patternTokensIn(name string) []string {
	lower := strings.ToLower(name)
	var tokens []string
	for _, tok := range m.config.PatternTokens {
		if strings.Contains(lower, tok) {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func sharesToken(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// splitExternalID splits "provider/model-name" into its parts. A bare name
// yields an empty provider.
func splitExternalID(externalID string) (provider, name string) {
	if i := strings.IndexByte(externalID, '/'); i >= 0 {
		return externalID[:i], externalID[i+1:]
	}
	return "", externalID
}
