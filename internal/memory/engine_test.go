package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type memStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
	fail  bool
	saves int
}

func newMemStore() *memStore { return &memStore{snaps: map[string]Snapshot{}} }

func (s *memStore) SaveContext(ctx context.Context, bookID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.fail {
		return errors.New("store down")
	}
	s.snaps[bookID] = snap
	return nil
}

func (s *memStore) LoadContext(ctx context.Context, bookID string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[bookID]
	return snap, ok, nil
}

type memCold struct {
	mu    sync.Mutex
	units map[int]HotUnit
	fail  bool
}

func newMemCold() *memCold { return &memCold{units: map[int]HotUnit{}} }

func (c *memCold) Put(ctx context.Context, bookID string, unit HotUnit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("archive down")
	}
	c.units[unit.Number] = unit
	return nil
}

func (c *memCold) Get(ctx context.Context, bookID string, number int) (HotUnit, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	unit, ok := c.units[number]
	return unit, ok, nil
}

func newTestEngine() (*Engine, *memStore, *memCold) {
	store := newMemStore()
	cold := newMemCold()
	e := NewEngine("book-1", store, cold)
	e.Initialize(context.Background(), "the thesis", "the argument", "busy professionals", "how-to", []string{"direct", "warm"})
	return e, store, cold
}

func commitN(e *Engine, n int) {
	for i := 1; i <= n; i++ {
		e.CommitUnit(context.Background(), i, fmt.Sprintf("Chapter %d", i),
			fmt.Sprintf("full text of chapter %d", i),
			fmt.Sprintf("summary %d", i),
			[]string{fmt.Sprintf("point %d", i)})
	}
}

func TestHotTierKeepsLastTwo(t *testing.T) {
	e, _, _ := newTestEngine()
	commitN(e, 3)

	got := e.BuildPromptContext()
	if !strings.Contains(got, "[RECENT CHAPTER 2 — Chapter 2 FULL TEXT]") {
		t.Fatalf("chapter 2 missing from hot tier:\n%s", got)
	}
	if !strings.Contains(got, "[RECENT CHAPTER 3 — Chapter 3 FULL TEXT]") {
		t.Fatalf("chapter 3 missing from hot tier:\n%s", got)
	}
	if strings.Contains(got, "[RECENT CHAPTER 1") {
		t.Fatalf("chapter 1 must have been evicted from hot:\n%s", got)
	}
	// Evicted from hot, still summarized in warm.
	if !strings.Contains(got, "Chapter 1 — Chapter 1: summary 1") {
		t.Fatalf("chapter 1 summary missing from warm tier:\n%s", got)
	}
}

func TestColdTierHoldsEveryUnit(t *testing.T) {
	e, _, cold := newTestEngine()
	commitN(e, 3)

	if len(cold.units) != 3 {
		t.Fatalf("cold tier holds %d units, want 3", len(cold.units))
	}
	unit, ok := e.Unit(context.Background(), 1)
	if !ok || unit.Text != "full text of chapter 1" {
		t.Fatalf("cold read: %+v ok=%v", unit, ok)
	}
}

func TestConceptAndEntityDedup(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	e.RecordConceptIntroduction(ctx, "Deep Work", "focused effort", 1)
	e.RecordConceptIntroduction(ctx, "deep work", "a duplicate", 2)
	e.RecordConceptIntroduction(ctx, "  ", "blank name", 2)
	e.RecordEntity(ctx, "Cal Newport")
	e.RecordEntity(ctx, "cal newport")

	state := e.State()
	if len(state.Concepts) != 1 {
		t.Fatalf("concepts %+v, want 1", state.Concepts)
	}
	if state.Concepts[0].IntroducedIn != 1 || state.Concepts[0].Definition != "focused effort" {
		t.Fatalf("re-introduction must keep the first entry: %+v", state.Concepts[0])
	}
	if len(state.Entities) != 1 {
		t.Fatalf("entities %+v, want 1", state.Entities)
	}
}

func TestPromiseLifecycle(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	e.RecordPromise(ctx, "we will revisit pricing", 1)
	e.RecordPromise(ctx, "a full case study follows", 2)
	e.FulfillPromise(ctx, 0, 3)
	e.FulfillPromise(ctx, 99, 3) // out of range, ignored

	state := e.State()
	if state.Promises[0].Status != PromiseStatusFulfilled || state.Promises[0].FulfilledInUnit != 3 {
		t.Fatalf("first promise %+v", state.Promises[0])
	}
	if state.Promises[1].Status != PromiseStatusPending {
		t.Fatalf("second promise %+v", state.Promises[1])
	}

	got := e.BuildPromptContext()
	if strings.Contains(got, "we will revisit pricing") {
		t.Fatalf("fulfilled promise still listed as open:\n%s", got)
	}
	if !strings.Contains(got, "a full case study follows (made in chapter 2)") {
		t.Fatalf("open promise missing:\n%s", got)
	}
}

func TestKeyDecisionsKeepLastFive(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		e.RecordDecision(ctx, fmt.Sprintf("decision %d", i))
	}
	got := e.BuildPromptContext()
	if strings.Contains(got, "decision 2\n") {
		t.Fatalf("old decision leaked into context:\n%s", got)
	}
	for i := 3; i <= 7; i++ {
		if !strings.Contains(got, fmt.Sprintf("decision %d", i)) {
			t.Fatalf("decision %d missing:\n%s", i, got)
		}
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine()
	e.Initialize(context.Background(), "another thesis", "x", "y", "z", nil)
	if got := e.State().Thesis; got != "the thesis" {
		t.Fatalf("second initialize overwrote the state: %q", got)
	}
}

func TestLoadRestoresSnapshot(t *testing.T) {
	e, store, cold := newTestEngine()
	commitN(e, 2)
	e.RecordDecision(context.Background(), "stay informal")

	restored := NewEngine("book-1", store, cold)
	if err := restored.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored.CommittedUnits() != 2 {
		t.Fatalf("restored %d units, want 2", restored.CommittedUnits())
	}
	got := restored.BuildPromptContext()
	if !strings.Contains(got, "Thesis: the thesis") || !strings.Contains(got, "stay informal") {
		t.Fatalf("restored context incomplete:\n%s", got)
	}
	// A restored engine must not be re-initializable.
	restored.Initialize(context.Background(), "overwrite", "", "", "", nil)
	if restored.State().Thesis != "the thesis" {
		t.Fatalf("restored engine was re-initialized")
	}
}

func TestPersistFailureDoesNotBlock(t *testing.T) {
	e, store, _ := newTestEngine()
	store.fail = true
	commitN(e, 2)
	if e.CommittedUnits() != 2 {
		t.Fatalf("commit must proceed past persistence failures")
	}
	// One retry per failed persist.
	if store.saves < 4 {
		t.Fatalf("expected save retries, saw %d attempts", store.saves)
	}
}

func TestColdFailureDoesNotBlockCommit(t *testing.T) {
	e, _, cold := newTestEngine()
	cold.fail = true
	commitN(e, 1)
	if e.CommittedUnits() != 1 {
		t.Fatalf("commit must survive a cold-tier failure")
	}
	got := e.BuildPromptContext()
	if !strings.Contains(got, "[RECENT CHAPTER 1") {
		t.Fatalf("hot tier must still carry the unit:\n%s", got)
	}
}

func TestBuildPromptContextSectionOrder(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()
	e.RecordDecision(ctx, "keep it short")
	e.RecordPromise(ctx, "more later", 1)
	commitN(e, 1)

	got := e.BuildPromptContext()
	idx := func(marker string) int {
		i := strings.Index(got, marker)
		if i < 0 {
			t.Fatalf("%q missing:\n%s", marker, got)
		}
		return i
	}
	book := idx("[BOOK CONTEXT]")
	decisions := idx("[KEY DECISIONS]")
	promises := idx("[OPEN PROMISES]")
	warm := idx("[PREVIOUS CHAPTERS]")
	hot := idx("[RECENT CHAPTER 1")
	if !(book < decisions && decisions < promises && promises < warm && warm < hot) {
		t.Fatalf("section order wrong: %d %d %d %d %d", book, decisions, promises, warm, hot)
	}
}
