package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/quorum/internal/data"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RANKING CATEGORIES
// ═══════════════════════════════════════════════════════════════════════════════

// Category is one of the three ranking dimensions maintained by the catalog.
type Category string

const (
	CategoryProgramming Category = "programming"
	CategoryCost        Category = "cost"
	CategoryPerformance Category = "performance"
)

// Categories lists all ranking categories in recomputation order.
var Categories = []Category{CategoryProgramming, CategoryCost, CategoryPerformance}

// rankingSource identifies rankings computed by this engine, as opposed to
// rankings imported from an external scoreboard.
const rankingSource = "quorum"

// ═══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ═══════════════════════════════════════════════════════════════════════════════

// Catalog holds synced model metadata and per-category rankings.
type Catalog struct {
	store  *data.Store
	client *Client
}

// New creates a catalog backed by the given store and marketplace client.
func New(store *data.Store, client *Client) *Catalog {
	return &Catalog{store: store, client: client}
}

// Sync fetches the full marketplace catalog and applies it as one atomic
// upsert batch, then recomputes all ranking categories. A fetch or decode
// failure aborts the cycle and preserves the last-known-good catalog.
// Returns the number of models in the applied batch.
func (c *Catalog) Sync(ctx context.Context) (int, error) {
	fetched, err := c.client.FetchModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync catalog: %w", err)
	}

	now := time.Now().UTC()
	models := make([]data.Model, 0, len(fetched))
	for _, mm := range fetched {
		if mm.ID == "" {
			continue
		}
		models = append(models, data.Model{
			InternalID:    uuid.NewString(), // used only when the row is new
			ExternalID:    mm.ID,
			Provider:      providerOf(mm.ID),
			Name:          displayName(mm),
			ContextWindow: mm.ContextLength,
			PricingInput:  parsePrice(mm.Pricing.Prompt),
			PricingOutput: parsePrice(mm.Pricing.Completion),
			Capabilities:  capabilityTags(mm),
		})
	}

	if err := c.store.UpsertModels(ctx, models, now); err != nil {
		return 0, fmt.Errorf("apply sync batch: %w", err)
	}

	log.Info().Int("models", len(models)).Msg("catalog synced")

	if err := c.RecomputeRankings(ctx, now); err != nil {
		return len(models), fmt.Errorf("recompute rankings: %w", err)
	}

	return len(models), nil
}

// RecomputeRankings rebuilds all three category rankings from the current
// active catalog. Each category's stale set is deleted and replaced whole.
func (c *Catalog) RecomputeRankings(ctx context.Context, now time.Time) error {
	active, err := c.store.ActiveModels(ctx, "")
	if err != nil {
		return fmt.Errorf("load active models: %w", err)
	}

	for _, category := range Categories {
		entries := rankModels(active, category, now)
		if err := c.store.ReplaceRankings(ctx, string(category), entries); err != nil {
			return fmt.Errorf("replace %s rankings: %w", category, err)
		}
		log.Debug().Str("category", string(category)).Int("entries", len(entries)).
			Msg("rankings replaced")
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY SURFACE
// ═══════════════════════════════════════════════════════════════════════════════

// TopRanked returns the top-N active models for one category.
func (c *Catalog) TopRanked(ctx context.Context, category Category, limit int) ([]data.RankedModel, error) {
	return c.store.TopRanked(ctx, string(category), limit)
}

// ModelByInternalID fetches one model by internal identifier.
func (c *Catalog) ModelByInternalID(ctx context.Context, id string) (*data.Model, error) {
	return c.store.ModelByInternalID(ctx, id)
}

// ActiveModelByExternalID fetches one active model by external identifier.
func (c *Catalog) ActiveModelByExternalID(ctx context.Context, id string) (*data.Model, error) {
	return c.store.ActiveModelByExternalID(ctx, id)
}

// ActiveModels returns active models, optionally restricted to one provider.
func (c *Catalog) ActiveModels(ctx context.Context, provider string) ([]data.Model, error) {
	return c.store.ActiveModels(ctx, provider)
}

// ═══════════════════════════════════════════════════════════════════════════════
// FIELD DERIVATION
// ═══════════════════════════════════════════════════════════════════════════════

// providerOf extracts the provider name from a marketplace identifier such
// as "anthropic/claude-3-opus".
func providerOf(externalID string) string {
	if idx := strings.Index(externalID, "/"); idx > 0 {
		return externalID[:idx]
	}
	return "unknown"
}

// displayName prefers the marketplace display name, falling back to the
// model part of the identifier.
func displayName(mm marketplaceModel) string {
	if mm.Name != "" {
		return mm.Name
	}
	if idx := strings.Index(mm.ID, "/"); idx >= 0 && idx+1 < len(mm.ID) {
		return mm.ID[idx+1:]
	}
	return mm.ID
}

// capabilityTags derives capability tags from the architecture block.
func capabilityTags(mm marketplaceModel) []string {
	var tags []string
	if mm.Architecture.Modality != "" {
		tags = append(tags, mm.Architecture.Modality)
	}
	if mm.Architecture.InstructType != "" {
		tags = append(tags, "instruct:"+mm.Architecture.InstructType)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags
}
