package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"bookforge/internal/bookstore"
	"bookforge/internal/llm"
	"bookforge/internal/llmclient"
	"bookforge/internal/memory"
	"bookforge/internal/panel"
	"bookforge/internal/perf"
	"bookforge/internal/quality"
	"bookforge/internal/research"
	"bookforge/internal/resilience"
)

type failingClient struct{ calls int }

func (f *failingClient) Name() string { return "failing" }
func (f *failingClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	f.calls++
	return "", errors.New("provider down")
}
func (f *failingClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.calls++
	return nil, errors.New("provider down")
}
func (f *failingClient) CountTokens(text string) int { return len(text) / 4 }
func (f *failingClient) TokenCapacity() int          { return 1000 }
func (f *failingClient) Close() error                { return nil }

func testPlan(chapters int) BookPlan {
	plan := BookPlan{
		BookID:       "test-book",
		Title:        "Deep Focus",
		Niche:        "productivity",
		Thesis:       "attention is the scarcest resource",
		CoreArgument: "guarding attention beats managing time",
		Audience:     "knowledge workers",
		Archetype:    "how-to",
		ToneMarkers:  []string{"direct"},
	}
	for i := 1; i <= chapters; i++ {
		plan.Chapters = append(plan.Chapters, ChapterPlan{
			Number:    i,
			Title:     "Chapter " + string(rune('A'+i-1)),
			Goal:      "establish one pillar of the argument",
			KeyPoints: []string{"a key point", "another key point"},
		})
	}
	return plan
}

func testOrchestrator(t *testing.T, client llmclient.LLMClient, cfg Config) (*Orchestrator, *bookstore.Store, *memory.Engine) {
	t.Helper()
	root := t.TempDir()
	store := bookstore.New(root)
	cold := bookstore.NewFSColdStore(root)
	mem := memory.NewEngine("test-book", store, cold)
	ledger := perf.NewLedger()
	client = llm.Wrap(client, llm.WithPerf(ledger))
	o := &Orchestrator{
		LLM:        client,
		Ledger:     ledger,
		Controller: resilience.NewControllerWithSleep(func(time.Duration) {}),
		Memory:     mem,
		Panel:      panel.New(client, 1),
		Research:   research.NewCached(&research.LLMProvider{LLM: client}),
		Quality:    &quality.Checker{LLM: client},
		Versions:   store,
		Cfg:        cfg,
	}
	return o, store, mem
}

func TestRunBookEndToEndOffline(t *testing.T) {
	client := llm.NewFakeClient(0)
	o, store, mem := testOrchestrator(t, client, Config{})
	ctx := context.Background()

	report, err := o.RunBook(ctx, testPlan(3))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Units) != 3 {
		t.Fatalf("got %d units", len(report.Units))
	}
	for _, u := range report.Units {
		if u.FinalStage != StageCommitted {
			t.Fatalf("unit %d ended at %s", u.Number, u.FinalStage)
		}
		if u.Degraded || u.EmergencyContent || u.NeedsRegeneration {
			t.Fatalf("unit %d flagged: %+v", u.Number, u)
		}
		if !u.Assessment.OverallPassed {
			t.Fatalf("unit %d failed the gate: %+v", u.Number, u.Assessment)
		}
		if u.WordCount < quality.MinWords {
			t.Fatalf("unit %d only %d words", u.Number, u.WordCount)
		}
	}
	// Later units receive the previous unit's top questions.
	if len(report.Units[0].Forwarded) == 0 {
		t.Fatalf("no questions forwarded from unit 1")
	}

	if mem.CommittedUnits() != 3 {
		t.Fatalf("memory committed %d units", mem.CommittedUnits())
	}
	state := mem.State()
	if len(state.Concepts) != 1 {
		t.Fatalf("metadata concepts not deduped: %+v", state.Concepts)
	}

	v, ok, err := store.LatestVersion(ctx, "test-book", 2)
	if err != nil || !ok {
		t.Fatalf("latest version: ok=%v err=%v", ok, err)
	}
	if v.Stage != StageCommitted {
		t.Fatalf("latest stage %q", v.Stage)
	}

	if o.Ledger.Len() == 0 {
		t.Fatalf("pipeline must feed the performance ledger")
	}
}

func TestRunBookSkipsCommittedUnits(t *testing.T) {
	client := llm.NewFakeClient(0)
	o, _, _ := testOrchestrator(t, client, Config{})
	ctx := context.Background()

	if _, err := o.RunBook(ctx, testPlan(2)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := o.RunBook(ctx, testPlan(2))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(report.Units) != 0 {
		t.Fatalf("second run regenerated %d units", len(report.Units))
	}
}

func TestRunBookEmergencyMode(t *testing.T) {
	client := &failingClient{}
	o, _, mem := testOrchestrator(t, client, Config{MaxRetries: 2, EmergencyMode: true})
	ctx := context.Background()

	report, err := o.RunBook(ctx, testPlan(2))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if mem.CommittedUnits() != 2 {
		t.Fatalf("emergency mode must still commit, got %d", mem.CommittedUnits())
	}
	for _, u := range report.Units {
		if u.FinalStage != StageCommitted {
			t.Fatalf("unit %d ended at %s", u.Number, u.FinalStage)
		}
		if !u.EmergencyContent || !u.Degraded {
			t.Fatalf("unit %d not flagged as emergency: %+v", u.Number, u)
		}
		if u.Assessment.OverallPassed {
			t.Fatalf("templated content must not pass the gate")
		}
	}

	unit, ok := mem.Unit(ctx, 1)
	if !ok || !strings.Contains(unit.Text, "could not be generated") {
		t.Fatalf("emergency text missing: ok=%v %q", ok, unit.Text)
	}
}

func TestRunBookFlagsWithoutEmergencyMode(t *testing.T) {
	client := &failingClient{}
	o, _, mem := testOrchestrator(t, client, Config{MaxRetries: 2, EmergencyMode: false})
	ctx := context.Background()

	report, err := o.RunBook(ctx, testPlan(1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	u := report.Units[0]
	if !u.NeedsRegeneration {
		t.Fatalf("unit must be flagged for regeneration: %+v", u)
	}
	if u.FinalStage == StageCommitted {
		t.Fatalf("flagged unit must not commit")
	}
	if mem.CommittedUnits() != 0 {
		t.Fatalf("memory committed %d units, want 0", mem.CommittedUnits())
	}
}

func TestGateRetryGrantsOneRevision(t *testing.T) {
	client := llm.NewFakeClient(0)
	o, _, _ := testOrchestrator(t, client, Config{RetryOnGateFail: true})
	// The fake always clears the gate, so the retry path stays dormant;
	// this exercises that the flag does not disturb a passing run.
	report, err := o.RunBook(context.Background(), testPlan(1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Units[0].Assessment.OverallPassed {
		t.Fatalf("expected a passing unit")
	}
}
