package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func price(v float64) *float64 { return &v }

func testModel(externalID, provider, name string) Model {
	return Model{
		InternalID:    uuid.NewString(),
		ExternalID:    externalID,
		Provider:      provider,
		Name:          name,
		ContextWindow: 128000,
		PricingInput:  price(0.000001),
		PricingOutput: price(0.000002),
		Capabilities:  []string{"text"},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MODEL UPSERTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestUpsertModels_InsertAndFetch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := testModel("openai/gpt-4o", "openai", "GPT-4o")
	if err := store.UpsertModels(ctx, []Model{m}, time.Now().UTC()); err != nil {
		t.Fatalf("UpsertModels: %v", err)
	}

	got, err := store.ActiveModelByExternalID(ctx, "openai/gpt-4o")
	if err != nil {
		t.Fatalf("ActiveModelByExternalID: %v", err)
	}
	if got == nil {
		t.Fatal("model not found after upsert")
	}
	if got.InternalID != m.InternalID {
		t.Errorf("internal id = %s, want %s", got.InternalID, m.InternalID)
	}
	if !got.IsActive {
		t.Error("model not active after upsert")
	}
	if got.InputPrice() != 0.000001 || got.OutputPrice() != 0.000002 {
		t.Errorf("prices = %v/%v", got.InputPrice(), got.OutputPrice())
	}
	if len(got.Capabilities) != 1 || got.Capabilities[0] != "text" {
		t.Errorf("capabilities = %v", got.Capabilities)
	}
}

func TestUpsertModels_InternalIDImmutableAcrossSyncs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := testModel("openai/gpt-4o", "openai", "GPT-4o")
	if err := store.UpsertModels(ctx, []Model{m}, time.Now().UTC()); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Second sync carries a fresh candidate internal id for the same
	// external id; the stored one must survive.
	again := testModel("openai/gpt-4o", "openai", "GPT-4o v2")
	if err := store.UpsertModels(ctx, []Model{again}, time.Now().UTC()); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	got, err := store.ActiveModelByExternalID(ctx, "openai/gpt-4o")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.InternalID != m.InternalID {
		t.Errorf("internal id changed across syncs: %s → %s", m.InternalID, got.InternalID)
	}
	if got.Name != "GPT-4o v2" {
		t.Errorf("name not updated: %s", got.Name)
	}
}

func TestUpsertModels_AbsentRowsDeactivatedNeverDeleted(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := testModel("openai/gpt-4o", "openai", "GPT-4o")
	b := testModel("anthropic/claude-3", "anthropic", "Claude 3")
	if err := store.UpsertModels(ctx, []Model{a, b}, time.Now().UTC()); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Second sync omits b: it must go inactive but keep its row.
	if err := store.UpsertModels(ctx, []Model{a}, time.Now().UTC()); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if got, _ := store.ActiveModelByExternalID(ctx, "anthropic/claude-3"); got != nil {
		t.Error("omitted model still active")
	}
	kept, err := store.ModelByInternalID(ctx, b.InternalID)
	if err != nil {
		t.Fatalf("ModelByInternalID: %v", err)
	}
	if kept == nil {
		t.Fatal("omitted model row deleted")
	}
	if kept.IsActive {
		t.Error("omitted model row still flagged active")
	}

	// Reappearing in a later sync reactivates the same row.
	if err := store.UpsertModels(ctx, []Model{a, b}, time.Now().UTC()); err != nil {
		t.Fatalf("third sync: %v", err)
	}
	back, _ := store.ActiveModelByExternalID(ctx, "anthropic/claude-3")
	if back == nil || back.InternalID != b.InternalID {
		t.Error("reappearing model did not reactivate its original row")
	}
}

func TestUpsertModels_EmptyBatchDeactivatesAll(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := testModel("openai/gpt-4o", "openai", "GPT-4o")
	if err := store.UpsertModels(ctx, []Model{m}, time.Now().UTC()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := store.UpsertModels(ctx, nil, time.Now().UTC()); err != nil {
		t.Fatalf("empty sync: %v", err)
	}

	active, err := store.ActiveModels(ctx, "")
	if err != nil {
		t.Fatalf("ActiveModels: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("%d models still active after empty batch", len(active))
	}
}

func TestActiveModels_Ordering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	big := testModel("openai/big", "openai", "Big")
	big.ContextWindow = 200000
	cheap := testModel("openai/cheap", "openai", "Cheap")
	cheap.ContextWindow = 128000
	cheap.PricingInput = price(0.0000001)
	cheap.PricingOutput = price(0.0000001)
	pricy := testModel("openai/pricy", "openai", "Pricy")
	pricy.ContextWindow = 128000
	pricy.PricingInput = price(0.00001)
	pricy.PricingOutput = price(0.00002)

	if err := store.UpsertModels(ctx, []Model{pricy, cheap, big}, time.Now().UTC()); err != nil {
		t.Fatalf("UpsertModels: %v", err)
	}

	models, err := store.ActiveModels(ctx, "openai")
	if err != nil {
		t.Fatalf("ActiveModels: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("got %d models, want 3", len(models))
	}
	want := []string{"openai/big", "openai/cheap", "openai/pricy"}
	for i, w := range want {
		if models[i].ExternalID != w {
			t.Errorf("position %d = %s, want %s", i, models[i].ExternalID, w)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// RANKINGS
// ═══════════════════════════════════════════════════════════════════════════════

func TestReplaceRankings_FullReplacement(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := testModel("openai/a", "openai", "A")
	b := testModel("openai/b", "openai", "B")
	if err := store.UpsertModels(ctx, []Model{a, b}, time.Now().UTC()); err != nil {
		t.Fatalf("UpsertModels: %v", err)
	}

	now := time.Now().UTC()
	first := []Ranking{
		{ModelInternalID: a.InternalID, Source: "test", Position: 1, Score: 90, LastUpdated: now},
		{ModelInternalID: b.InternalID, Source: "test", Position: 2, Score: 80, LastUpdated: now},
	}
	if err := store.ReplaceRankings(ctx, "programming", first); err != nil {
		t.Fatalf("first ReplaceRankings: %v", err)
	}

	// The replacement set inverts the order; nothing from the first set
	// may survive.
	second := []Ranking{
		{ModelInternalID: b.InternalID, Source: "test", Position: 1, Score: 95, LastUpdated: now},
	}
	if err := store.ReplaceRankings(ctx, "programming", second); err != nil {
		t.Fatalf("second ReplaceRankings: %v", err)
	}

	ranked, err := store.TopRanked(ctx, "programming", 10)
	if err != nil {
		t.Fatalf("TopRanked: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("got %d ranked models, want 1", len(ranked))
	}
	if ranked[0].ExternalID != "openai/b" || ranked[0].Position != 1 {
		t.Errorf("top = %s at %d", ranked[0].ExternalID, ranked[0].Position)
	}
}

func TestTopRanked_ExcludesInactiveModels(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := testModel("openai/a", "openai", "A")
	b := testModel("openai/b", "openai", "B")
	if err := store.UpsertModels(ctx, []Model{a, b}, time.Now().UTC()); err != nil {
		t.Fatalf("UpsertModels: %v", err)
	}

	now := time.Now().UTC()
	rankings := []Ranking{
		{ModelInternalID: a.InternalID, Source: "test", Position: 1, Score: 90, LastUpdated: now},
		{ModelInternalID: b.InternalID, Source: "test", Position: 2, Score: 80, LastUpdated: now},
	}
	if err := store.ReplaceRankings(ctx, "cost", rankings); err != nil {
		t.Fatalf("ReplaceRankings: %v", err)
	}

	// Deactivate a; it must drop out of ranked queries while keeping its
	// ranking row.
	if err := store.UpsertModels(ctx, []Model{b}, time.Now().UTC()); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	ranked, err := store.TopRanked(ctx, "cost", 10)
	if err != nil {
		t.Fatalf("TopRanked: %v", err)
	}
	if len(ranked) != 1 || ranked[0].ExternalID != "openai/b" {
		t.Errorf("ranked = %+v, want only openai/b", ranked)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SELECTIONS
// ═══════════════════════════════════════════════════════════════════════════════

func TestRecordSelection_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	m := testModel("openai/gpt-4o", "openai", "GPT-4o")
	if err := store.UpsertModels(ctx, []Model{m}, time.Now().UTC()); err != nil {
		t.Fatalf("UpsertModels: %v", err)
	}

	sel := &Selection{
		ConversationID:   "conv-1",
		Stage:            "generator",
		ModelInternalID:  m.InternalID,
		ExternalID:       m.ExternalID,
		CriteriaJSON:     `{"complexity":"0.50"}`,
		SuitabilityScore: 12.5,
		CreatedAt:        time.Now().UTC(),
	}
	if err := store.RecordSelection(ctx, sel); err != nil {
		t.Fatalf("RecordSelection: %v", err)
	}

	got, err := store.SelectionsFor(ctx, "conv-1")
	if err != nil {
		t.Fatalf("SelectionsFor: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d selections, want 1", len(got))
	}
	if got[0].Stage != "generator" || got[0].SuitabilityScore != 12.5 {
		t.Errorf("selection = %+v", got[0])
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROFILES
// ═══════════════════════════════════════════════════════════════════════════════

func testProfile() *Profile {
	return &Profile{
		ID:             uuid.NewString(),
		Name:           "default",
		GeneratorModel: "openai/gpt-4o",
		RefinerModel:   "anthropic/claude-3",
		ValidatorModel: "google/gemini-pro",
		CuratorModel:   "openai/gpt-4o",
		UpdatedAt:      time.Now().UTC(),
	}
}

func TestProfiles_SaveAndFetch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := testProfile()
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	got, err := store.ProfileByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("ProfileByID: %v", err)
	}
	if got == nil {
		t.Fatal("profile not found")
	}
	if got.GeneratorModel != p.GeneratorModel || got.CuratorModel != p.CuratorModel {
		t.Errorf("profile = %+v", got)
	}

	if missing, err := store.ProfileByID(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("missing profile = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestUpdateProfileModels(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := testProfile()
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	p.SetModelFor(SlotRefiner, "deepseek/deepseek-coder")
	if err := store.UpdateProfileModels(ctx, p.ID, p, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateProfileModels: %v", err)
	}

	got, _ := store.ProfileByID(ctx, p.ID)
	if got.RefinerModel != "deepseek/deepseek-coder" {
		t.Errorf("refiner = %s", got.RefinerModel)
	}

	if err := store.UpdateProfileModels(ctx, "nope", p, time.Now().UTC()); err == nil {
		t.Error("updating a missing profile did not error")
	}
}
