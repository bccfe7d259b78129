package memory

import "context"

// Concept is an idea the book has introduced, deduped case-insensitively by
// name.
type Concept struct {
	Name         string `json:"name"`
	Definition   string `json:"definition,omitempty"`
	IntroducedIn int    `json:"introduced_in"`
}

const (
	PromiseStatusPending   = "pending"
	PromiseStatusFulfilled = "fulfilled"
)

// Promise is a commitment made to the reader ("we will return to X in a
// later chapter").
type Promise struct {
	Text            string `json:"text"`
	MadeInUnit      int    `json:"made_in_unit"`
	FulfilledInUnit int    `json:"fulfilled_in_unit,omitempty"`
	Status          string `json:"status"`
}

// ContextState is the book-level state mutated only by the orchestrator
// after a unit commits.
type ContextState struct {
	Thesis       string    `json:"thesis"`
	CoreArgument string    `json:"core_argument"`
	Audience     string    `json:"audience"`
	Archetype    string    `json:"archetype"`
	ToneMarkers  []string  `json:"tone_markers,omitempty"`
	StyleGuide   string    `json:"style_guide,omitempty"`
	KeyDecisions []string  `json:"key_decisions,omitempty"`
	Concepts     []Concept `json:"concepts,omitempty"`
	Promises     []Promise `json:"promises,omitempty"`
	Entities     []string  `json:"entities,omitempty"`
}

// UnitSummary is one warm-tier entry: a compact stand-in for a committed
// unit, always included in the prompt context.
type UnitSummary struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// HotUnit is one hot-tier entry: the full text of a recently committed unit.
type HotUnit struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// Snapshot is the persisted form of the engine's state.
type Snapshot struct {
	State  ContextState  `json:"state"`
	Warm   []UnitSummary `json:"warm"`
	Hot    []HotUnit     `json:"hot"`
	Digest string        `json:"digest"`
}

// Store persists context snapshots keyed by book id. Implemented by
// bookstore (file or Postgres backend).
type Store interface {
	SaveContext(ctx context.Context, bookID string, snap Snapshot) error
	LoadContext(ctx context.Context, bookID string) (Snapshot, bool, error)
}

// ColdStore owns the full text of every committed unit, keyed by unit
// number. Append-only from the engine's point of view; retrieved only on
// demand, never auto-included in a prompt.
type ColdStore interface {
	Put(ctx context.Context, bookID string, unit HotUnit) error
	Get(ctx context.Context, bookID string, number int) (HotUnit, bool, error)
}
