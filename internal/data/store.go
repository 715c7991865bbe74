package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CATALOG WRITES
// ═══════════════════════════════════════════════════════════════════════════════

// UpsertModels applies one sync batch as a single atomic transaction.
// Rows are upserted by external identifier; the internal identifier is
// assigned on first sight and never changes. Rows absent from the batch are
// flipped inactive but never deleted, so a transient marketplace omission
// cannot destroy history.
func (s *Store) UpsertModels(ctx context.Context, models []Model, syncedAt time.Time) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		upsert := `
			INSERT INTO models (
				internal_id, external_id, provider_name, model_name,
				context_window, pricing_input, pricing_output,
				capabilities_json, is_active, last_updated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(external_id) DO UPDATE SET
				provider_name = excluded.provider_name,
				model_name = excluded.model_name,
				context_window = excluded.context_window,
				pricing_input = excluded.pricing_input,
				pricing_output = excluded.pricing_output,
				capabilities_json = excluded.capabilities_json,
				is_active = 1,
				last_updated = excluded.last_updated
		`

		stmt, err := tx.PrepareContext(ctx, upsert)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for i := range models {
			m := &models[i]
			capsJSON, err := json.Marshal(m.Capabilities)
			if err != nil {
				return fmt.Errorf("marshal capabilities for %s: %w", m.ExternalID, err)
			}

			_, err = stmt.ExecContext(ctx,
				m.InternalID, m.ExternalID, m.Provider, m.Name,
				m.ContextWindow, nullFloat(m.PricingInput), nullFloat(m.PricingOutput),
				string(capsJSON), syncedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert model %s: %w", m.ExternalID, err)
			}
		}

		// Flip rows absent from this batch inactive.
		deactivate := "UPDATE models SET is_active = 0, last_updated = ? WHERE is_active = 1"
		args := []any{syncedAt}
		if len(models) > 0 {
			placeholders := make([]string, len(models))
			for i := range models {
				placeholders[i] = "?"
				args = append(args, models[i].ExternalID)
			}
			deactivate += " AND external_id NOT IN (" + strings.Join(placeholders, ",") + ")"
		}

		if _, err := tx.ExecContext(ctx, deactivate, args...); err != nil {
			return fmt.Errorf("deactivate absent models: %w", err)
		}

		return nil
	})
}

// ReplaceRankings atomically replaces the current ranking set for one
// category. Stale rankings are deleted, never merged.
func (s *Store) ReplaceRankings(ctx context.Context, category string, entries []Ranking) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM rankings WHERE category = ?", category); err != nil {
			return fmt.Errorf("delete stale rankings: %w", err)
		}

		insert := `
			INSERT INTO rankings (
				model_internal_id, ranking_source, rank_position, score, category, last_updated
			) VALUES (?, ?, ?, ?, ?, ?)
		`

		for _, e := range entries {
			_, err := tx.ExecContext(ctx, insert,
				e.ModelInternalID, e.Source, e.Position, e.Score, category, e.LastUpdated)
			if err != nil {
				return fmt.Errorf("insert ranking %s/%s: %w", category, e.ModelInternalID, err)
			}
		}

		return nil
	})
}

// ═══════════════════════════════════════════════════════════════════════════════
// CATALOG QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

const modelColumns = `
	m.internal_id, m.external_id, m.provider_name, m.model_name,
	m.context_window, m.pricing_input, m.pricing_output,
	m.capabilities_json, m.is_active, m.last_updated
`

// TopRanked returns the top-N active models for one ranking category,
// ordered by rank position ascending.
func (s *Store) TopRanked(ctx context.Context, category string, limit int) ([]RankedModel, error) {
	query := `
		SELECT ` + modelColumns + `, r.rank_position, r.score
		FROM rankings r
		JOIN models m ON m.internal_id = r.model_internal_id
		WHERE r.category = ? AND m.is_active = 1
		ORDER BY r.rank_position ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, category, limit)
	if err != nil {
		return nil, fmt.Errorf("query rankings %s: %w", category, err)
	}
	defer rows.Close()

	var ranked []RankedModel
	for rows.Next() {
		var rm RankedModel
		if err := scanModel(rows, &rm.Model, &rm.Position, &rm.Score); err != nil {
			return nil, err
		}
		ranked = append(ranked, rm)
	}

	return ranked, rows.Err()
}

// ModelByInternalID fetches one model by its stable internal identifier.
func (s *Store) ModelByInternalID(ctx context.Context, internalID string) (*Model, error) {
	query := "SELECT " + modelColumns + " FROM models m WHERE m.internal_id = ?"
	return s.queryOneModel(ctx, query, internalID)
}

// ActiveModelByExternalID fetches one model by external identifier,
// restricted to currently active rows.
func (s *Store) ActiveModelByExternalID(ctx context.Context, externalID string) (*Model, error) {
	query := "SELECT " + modelColumns + " FROM models m WHERE m.external_id = ? AND m.is_active = 1"
	return s.queryOneModel(ctx, query, externalID)
}

// ActiveModels returns all active models, optionally restricted to one
// provider. Ordered by context window descending then blended price
// ascending, the order the replacement search wants.
func (s *Store) ActiveModels(ctx context.Context, provider string) ([]Model, error) {
	query := "SELECT " + modelColumns + " FROM models m WHERE m.is_active = 1"
	args := []any{}
	if provider != "" {
		query += " AND m.provider_name = ?"
		args = append(args, provider)
	}
	query += ` ORDER BY m.context_window DESC,
		(COALESCE(m.pricing_input, 0) + COALESCE(m.pricing_output, 0)) ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active models: %w", err)
	}
	defer rows.Close()

	var models []Model
	for rows.Next() {
		var m Model
		if err := scanModel(rows, &m, nil, nil); err != nil {
			return nil, err
		}
		models = append(models, m)
	}

	return models, rows.Err()
}

// queryOneModel runs a single-row model query.
// Returns (nil, nil) when no row matches.
func (s *Store) queryOneModel(ctx context.Context, query string, args ...any) (*Model, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var m Model
	if err := scanModel(rows, &m, nil, nil); err != nil {
		return nil, err
	}
	return &m, nil
}

// scanModel scans one models row, plus optional ranking columns.
func scanModel(rows *sql.Rows, m *Model, position *int, score *float64) error {
	var pricingIn, pricingOut sql.NullFloat64
	var capsJSON string
	var active int

	dest := []any{
		&m.InternalID, &m.ExternalID, &m.Provider, &m.Name,
		&m.ContextWindow, &pricingIn, &pricingOut,
		&capsJSON, &active, &m.LastUpdated,
	}
	if position != nil {
		dest = append(dest, position, score)
	}

	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan model: %w", err)
	}

	if pricingIn.Valid {
		v := pricingIn.Float64
		m.PricingInput = &v
	}
	if pricingOut.Valid {
		v := pricingOut.Float64
		m.PricingOutput = &v
	}
	m.IsActive = active == 1

	if err := json.Unmarshal([]byte(capsJSON), &m.Capabilities); err != nil {
		m.Capabilities = nil
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SELECTION AUDIT
// ═══════════════════════════════════════════════════════════════════════════════

// RecordSelection persists one selection decision as an audit row.
func (s *Store) RecordSelection(ctx context.Context, sel *Selection) error {
	query := `
		INSERT INTO selections (
			conversation_id, stage, model_internal_id, external_id,
			criteria_json, suitability_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sel.ConversationID, sel.Stage, sel.ModelInternalID, sel.ExternalID,
		sel.CriteriaJSON, sel.SuitabilityScore, sel.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert selection: %w", err)
	}

	return nil
}

// SelectionsFor returns the audit rows recorded for one conversation.
func (s *Store) SelectionsFor(ctx context.Context, conversationID string) ([]Selection, error) {
	query := `
		SELECT conversation_id, stage, model_internal_id, external_id,
			criteria_json, suitability_score, created_at
		FROM selections
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	var sels []Selection
	for rows.Next() {
		var sel Selection
		err := rows.Scan(&sel.ConversationID, &sel.Stage, &sel.ModelInternalID,
			&sel.ExternalID, &sel.CriteriaJSON, &sel.SuitabilityScore, &sel.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		sels = append(sels, sel)
	}

	return sels, rows.Err()
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTING PROFILES
// ═══════════════════════════════════════════════════════════════════════════════

// SaveProfile inserts or replaces a routing profile.
func (s *Store) SaveProfile(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (
			id, name, generator_model, refiner_model, validator_model, curator_model, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			generator_model = excluded.generator_model,
			refiner_model = excluded.refiner_model,
			validator_model = excluded.validator_model,
			curator_model = excluded.curator_model,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.GeneratorModel, p.RefinerModel,
		p.ValidatorModel, p.CuratorModel, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.ID, err)
	}

	return nil
}

// Profiles returns all stored routing profiles.
func (s *Store) Profiles(ctx context.Context) ([]Profile, error) {
	query := `
		SELECT id, name, generator_model, refiner_model, validator_model, curator_model, updated_at
		FROM profiles
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		err := rows.Scan(&p.ID, &p.Name, &p.GeneratorModel, &p.RefinerModel,
			&p.ValidatorModel, &p.CuratorModel, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// ProfileByID fetches one routing profile. Returns (nil, nil) when absent.
func (s *Store) ProfileByID(ctx context.Context, id string) (*Profile, error) {
	query := `
		SELECT id, name, generator_model, refiner_model, validator_model, curator_model, updated_at
		FROM profiles
		WHERE id = ?
	`

	var p Profile
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name,
		&p.GeneratorModel, &p.RefinerModel, &p.ValidatorModel, &p.CuratorModel, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile %s: %w", id, err)
	}

	return &p, nil
}

// UpdateProfileModels replaces the four per-stage model references of one
// profile and bumps its update timestamp.
func (s *Store) UpdateProfileModels(ctx context.Context, id string, p *Profile, updatedAt time.Time) error {
	query := `
		UPDATE profiles SET
			generator_model = ?, refiner_model = ?, validator_model = ?, curator_model = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		p.GeneratorModel, p.RefinerModel, p.ValidatorModel, p.CuratorModel, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}

	return nil
}

// nullFloat converts an optional float to its sql form.
func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
