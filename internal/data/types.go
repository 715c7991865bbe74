package data

import "time"

// ═══════════════════════════════════════════════════════════════════════════════
// PERSISTED ROW TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Model is one synced row of the external model catalog.
// InternalID is immutable once assigned; ExternalID and IsActive may change
// on every sync.
type Model struct {
	// InternalID is the stable internal identifier (uuid, never reused).
	InternalID string

	// ExternalID is the marketplace identifier (e.g. "openai/gpt-4o").
	// It can go stale or be renamed by the marketplace.
	ExternalID string

	// Provider is the provider name parsed from the external identifier.
	Provider string

	// Name is the human-readable model name.
	Name string

	// ContextWindow is the model's context length in tokens (0 if unknown).
	ContextWindow int

	// PricingInput / PricingOutput are per-token unit prices.
	// Nil means the marketplace did not report a parsable price.
	PricingInput  *float64
	PricingOutput *float64

	// Capabilities are free-form capability tags (modality, instruct type).
	Capabilities []string

	// IsActive reflects presence in the most recent sync response.
	IsActive bool

	// LastUpdated is the timestamp of the sync that last touched this row.
	LastUpdated time.Time
}

// InputPrice returns the input unit price, or 0 when absent.
func (m *Model) InputPrice() float64 {
	if m.PricingInput == nil {
		return 0
	}
	return *m.PricingInput
}

// OutputPrice returns the output unit price, or 0 when absent.
func (m *Model) OutputPrice() float64 {
	if m.PricingOutput == nil {
		return 0
	}
	return *m.PricingOutput
}

// BlendedPrice returns the average of input and output unit prices.
// Absent prices count as zero, which sorts free/unknown models first.
func (m *Model) BlendedPrice() float64 {
	return (m.InputPrice() + m.OutputPrice()) / 2
}

// Ranking is one entry of a per-category model ranking.
// Exactly one ranking set per category is current; a maintenance pass
// replaces the whole set, never merges.
type Ranking struct {
	ModelInternalID string
	Source          string
	Position        int
	Score           float64
	Category        string
	LastUpdated     time.Time
}

// RankedModel joins a catalog row with its position in one category.
type RankedModel struct {
	Model
	Position int
	Score    float64
}

// Selection is one audit row recording a per-stage model decision.
type Selection struct {
	ConversationID   string
	Stage            string
	ModelInternalID  string
	ExternalID       string
	CriteriaJSON     string
	SuitabilityScore float64
	CreatedAt        time.Time
}

// Profile is a stored named binding of one model per pipeline stage.
// After a maintenance pass every slot must reference an active model.
type Profile struct {
	ID             string
	Name           string
	GeneratorModel string
	RefinerModel   string
	ValidatorModel string
	CuratorModel   string
	UpdatedAt      time.Time
}

// ProfileSlot names one of the four per-stage model references.
type ProfileSlot string

const (
	SlotGenerator ProfileSlot = "generator"
	SlotRefiner   ProfileSlot = "refiner"
	SlotValidator ProfileSlot = "validator"
	SlotCurator   ProfileSlot = "curator"
)

// ProfileSlots lists the four slots in pipeline order.
var ProfileSlots = []ProfileSlot{SlotGenerator, SlotRefiner, SlotValidator, SlotCurator}

// ModelFor returns the model reference stored in the given slot.
func (p *Profile) ModelFor(slot ProfileSlot) string {
	switch slot {
	case SlotGenerator:
		return p.GeneratorModel
	case SlotRefiner:
		return p.RefinerModel
	case SlotValidator:
		return p.ValidatorModel
	case SlotCurator:
		return p.CuratorModel
	}
	return ""
}

// SetModelFor replaces the model reference in the given slot.
func (p *Profile) SetModelFor(slot ProfileSlot, model string) {
	switch slot {
	case SlotGenerator:
		p.GeneratorModel = model
	case SlotRefiner:
		p.RefinerModel = model
	case SlotValidator:
		p.ValidatorModel = model
	case SlotCurator:
		p.CuratorModel = model
	}
}
