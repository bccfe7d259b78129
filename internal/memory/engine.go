// Package memory maintains book-level state and a four-tier memory of past
// units (permanent digest, warm summaries, hot full texts, cold archive),
// producing one bounded context string per generation request regardless of
// how much history has accumulated.
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"bookforge/internal/textparse"
)

const (
	hotTierCap       = 2
	hotTextRuneLimit = 2000
	recentDecisions  = 5
)

// Engine is the per-book tiered context memory. One engine instance per
// book; the orchestrator is the only writer.
type Engine struct {
	mu sync.Mutex

	bookID string
	store  Store
	cold   ColdStore

	initialized bool
	state       ContextState
	warm        []UnitSummary
	hot         []HotUnit
	digest      string
}

// NewEngine creates the engine for one book. store may be nil (no snapshot
// persistence); cold must not be nil.
func NewEngine(bookID string, store Store, cold ColdStore) *Engine {
	return &Engine{bookID: bookID, store: store, cold: cold}
}

// Load restores a previously persisted snapshot, if any.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap, ok, err := e.store.LoadContext(ctx, e.bookID)
	if err != nil {
		return fmt.Errorf("memory: load context %s: %w", e.bookID, err)
	}
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = snap.State
	e.warm = snap.Warm
	e.hot = snap.Hot
	e.digest = snap.Digest
	e.initialized = snap.State.Thesis != "" || len(snap.Warm) > 0
	return nil
}

// Initialize creates the book context once. A second call is an idempotent
// no-op.
func (e *Engine) Initialize(ctx context.Context, thesis, coreArgument, audience, archetype string, toneMarkers []string) {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return
	}
	e.state = ContextState{
		Thesis:       thesis,
		CoreArgument: coreArgument,
		Audience:     audience,
		Archetype:    archetype,
		ToneMarkers:  append([]string(nil), toneMarkers...),
	}
	e.initialized = true
	e.mu.Unlock()
	e.persist(ctx)
}

// SetStyleGuide replaces the style guide text.
func (e *Engine) SetStyleGuide(ctx context.Context, guide string) {
	e.mu.Lock()
	e.state.StyleGuide = guide
	e.mu.Unlock()
	e.persist(ctx)
}

// RecordDecision appends a key decision statement.
func (e *Engine) RecordDecision(ctx context.Context, decision string) {
	decision = strings.TrimSpace(decision)
	if decision == "" {
		return
	}
	e.mu.Lock()
	e.state.KeyDecisions = append(e.state.KeyDecisions, decision)
	e.mu.Unlock()
	e.persist(ctx)
}

// RecordConceptIntroduction registers a concept, deduping case-insensitively
// by name. A re-introduction keeps the first entry.
func (e *Engine) RecordConceptIntroduction(ctx context.Context, name, definition string, unit int) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	e.mu.Lock()
	for _, c := range e.state.Concepts {
		if strings.EqualFold(c.Name, name) {
			e.mu.Unlock()
			return
		}
	}
	e.state.Concepts = append(e.state.Concepts, Concept{Name: name, Definition: definition, IntroducedIn: unit})
	e.mu.Unlock()
	e.persist(ctx)
}

// RecordPromise registers a pending commitment to the reader.
func (e *Engine) RecordPromise(ctx context.Context, text string, unit int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	e.mu.Lock()
	e.state.Promises = append(e.state.Promises, Promise{Text: text, MadeInUnit: unit, Status: PromiseStatusPending})
	e.mu.Unlock()
	e.persist(ctx)
}

// FulfillPromise marks the promise at index as fulfilled in the given unit.
// Out-of-range indices are ignored.
func (e *Engine) FulfillPromise(ctx context.Context, index, unit int) {
	e.mu.Lock()
	if index < 0 || index >= len(e.state.Promises) {
		e.mu.Unlock()
		return
	}
	e.state.Promises[index].Status = PromiseStatusFulfilled
	e.state.Promises[index].FulfilledInUnit = unit
	e.mu.Unlock()
	e.persist(ctx)
}

// RecordEntity registers a named entity, deduped case-insensitively.
func (e *Engine) RecordEntity(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	e.mu.Lock()
	for _, existing := range e.state.Entities {
		if strings.EqualFold(existing, name) {
			e.mu.Unlock()
			return
		}
	}
	e.state.Entities = append(e.state.Entities, name)
	e.mu.Unlock()
	e.persist(ctx)
}

// CommitUnit records a completed unit across the tiers: full text into the
// cold archive, summary into warm, full text into hot with front eviction
// down to the hot cap.
func (e *Engine) CommitUnit(ctx context.Context, number int, title, fullText, summary string, keyPoints []string) {
	unit := HotUnit{Number: number, Title: title, Text: fullText}
	if e.cold != nil {
		if err := e.cold.Put(ctx, e.bookID, unit); err != nil {
			// The hot/warm tiers still carry the unit; retrying cold writes
			// is the store's concern, not the pipeline's.
			log.Printf("memory: cold-tier write for unit %d failed: %v", number, err)
		}
	}

	e.mu.Lock()
	e.warm = append(e.warm, UnitSummary{
		Number:    number,
		Title:     title,
		Summary:   summary,
		KeyPoints: append([]string(nil), keyPoints...),
	})
	e.hot = append(e.hot, unit)
	for len(e.hot) > hotTierCap {
		e.hot = append(e.hot[:0:0], e.hot[1:]...)
	}
	e.mu.Unlock()
	e.persist(ctx)
}

// Unit retrieves a committed unit's full text from the cold tier on demand.
func (e *Engine) Unit(ctx context.Context, number int) (HotUnit, bool) {
	if e.cold == nil {
		return HotUnit{}, false
	}
	unit, ok, err := e.cold.Get(ctx, e.bookID, number)
	if err != nil {
		log.Printf("memory: cold-tier read for unit %d failed: %v", number, err)
		return HotUnit{}, false
	}
	return unit, ok
}

// CommittedUnits reports how many units have been committed.
func (e *Engine) CommittedUnits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.warm)
}

// State returns a copy of the book-level context state.
func (e *Engine) State() ContextState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// BuildPromptContext assembles the single bounded context string sent with
// every generation request: permanent digest, the last five key decisions,
// all pending promises, every warm summary, then the hot-tier full texts
// truncated per unit. The cold tier is never read here.
func (e *Engine) BuildPromptContext() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	b.WriteString(e.digestLocked())

	if n := len(e.state.KeyDecisions); n > 0 {
		b.WriteString("\n[KEY DECISIONS]\n")
		start := n - recentDecisions
		if start < 0 {
			start = 0
		}
		for _, d := range e.state.KeyDecisions[start:] {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	pending := false
	for _, p := range e.state.Promises {
		if p.Status != PromiseStatusPending {
			continue
		}
		if !pending {
			b.WriteString("\n[OPEN PROMISES]\n")
			pending = true
		}
		fmt.Fprintf(&b, "- %s (made in chapter %d)\n", p.Text, p.MadeInUnit)
	}

	if len(e.warm) > 0 {
		b.WriteString("\n[PREVIOUS CHAPTERS]\n")
		for _, w := range e.warm {
			fmt.Fprintf(&b, "Chapter %d — %s: %s\n", w.Number, w.Title, w.Summary)
			for _, kp := range w.KeyPoints {
				fmt.Fprintf(&b, "  • %s\n", kp)
			}
		}
	}

	for _, h := range e.hot {
		fmt.Fprintf(&b, "\n[RECENT CHAPTER %d — %s FULL TEXT]\n%s\n", h.Number, h.Title, textparse.TruncateRunes(h.Text, hotTextRuneLimit))
	}

	return b.String()
}

// digestLocked regenerates the permanent digest from the context state.
func (e *Engine) digestLocked() string {
	var b strings.Builder
	b.WriteString("[BOOK CONTEXT]\n")
	fmt.Fprintf(&b, "Thesis: %s\n", e.state.Thesis)
	if e.state.CoreArgument != "" {
		fmt.Fprintf(&b, "Core argument: %s\n", e.state.CoreArgument)
	}
	fmt.Fprintf(&b, "Audience: %s\n", e.state.Audience)
	fmt.Fprintf(&b, "Archetype: %s\n", e.state.Archetype)
	if len(e.state.ToneMarkers) > 0 {
		fmt.Fprintf(&b, "Tone: %s\n", strings.Join(e.state.ToneMarkers, ", "))
	}
	if e.state.StyleGuide != "" {
		fmt.Fprintf(&b, "Style guide: %s\n", e.state.StyleGuide)
	}
	if len(e.state.Concepts) > 0 {
		names := make([]string, len(e.state.Concepts))
		for i, c := range e.state.Concepts {
			names[i] = c.Name
		}
		fmt.Fprintf(&b, "Concepts introduced: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

// persist regenerates the digest and writes the snapshot. One retry, then
// log-and-continue: a persistence failure must not block the pipeline.
func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	e.digest = e.digestLocked()
	snap := Snapshot{
		State:  e.state,
		Warm:   append([]UnitSummary(nil), e.warm...),
		Hot:    append([]HotUnit(nil), e.hot...),
		Digest: e.digest,
	}
	e.mu.Unlock()

	if err := e.store.SaveContext(ctx, e.bookID, snap); err != nil {
		if err2 := e.store.SaveContext(ctx, e.bookID, snap); err2 != nil {
			log.Printf("memory: context snapshot for %s failed twice, continuing: %v", e.bookID, err2)
		}
	}
}
