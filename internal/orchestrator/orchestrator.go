// Package orchestrator drives the multi-pass generation pipeline: every
// unit moves research → skeleton → draft → critique → revision → polish →
// quality gate → committed. Each generation pass goes through the
// resilience controller with a timeout recommended by the performance
// ledger, and every pass output is saved as a version before the next pass
// runs. A unit commits to memory even when the quality gate fails; the
// gate outcome is reported, never used to discard work.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"bookforge/internal/bookstore"
	"bookforge/internal/llmclient"
	"bookforge/internal/memory"
	"bookforge/internal/panel"
	"bookforge/internal/perf"
	"bookforge/internal/quality"
	"bookforge/internal/research"
	"bookforge/internal/resilience"
)

// Pipeline stages, in order. Stage names double as version-store stage
// labels.
const (
	StageResearch    = "research"
	StageSkeleton    = "skeleton"
	StageDraft       = "draft"
	StageCritique    = "critique"
	StageRevision    = "revision"
	StagePolish      = "polish"
	StageQualityGate = "quality_gate"
	StageCommitted   = "committed"
)

// ChapterPlan is one unit of the book plan.
type ChapterPlan struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Goal      string   `json:"goal"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// BookPlan is the full input to a run.
type BookPlan struct {
	BookID       string        `json:"book_id"`
	Title        string        `json:"title"`
	Niche        string        `json:"niche"`
	Thesis       string        `json:"thesis"`
	CoreArgument string        `json:"core_argument"`
	Audience     string        `json:"audience"`
	Archetype    string        `json:"archetype"`
	ToneMarkers  []string      `json:"tone_markers,omitempty"`
	StyleGuide   string        `json:"style_guide,omitempty"`
	Chapters     []ChapterPlan `json:"chapters"`
}

// UnitReport records how one unit made it through the pipeline.
type UnitReport struct {
	Number     int                `json:"number"`
	Title      string             `json:"title"`
	FinalStage string             `json:"final_stage"`
	WordCount  int                `json:"word_count"`
	Assessment quality.Assessment `json:"assessment"`

	// Degraded is set when any pass needed a fallback strategy or
	// emergency content.
	Degraded          bool     `json:"degraded"`
	EmergencyContent  bool     `json:"emergency_content"`
	NeedsRegeneration bool     `json:"needs_regeneration"`
	StrategiesUsed    []string `json:"strategies_used,omitempty"`
	Forwarded         []string `json:"forwarded,omitempty"`
	Elapsed           time.Duration `json:"elapsed"`
}

// BookReport is the run-level summary.
type BookReport struct {
	BookID  string       `json:"book_id"`
	Units   []UnitReport `json:"units"`
	Elapsed time.Duration `json:"elapsed"`
}

// Config tunes a run.
type Config struct {
	// MaxRetries and Strategies shape the fallback chain for every
	// resilient pass.
	MaxRetries int
	Strategies []resilience.Strategy
	// EmergencyMode substitutes templated content when a pass exhausts its
	// chain; when false the unit is flagged for manual regeneration
	// instead.
	EmergencyMode bool
	// RetryOnGateFail grants one extra revision pass when the quality gate
	// fails, then re-checks. The second verdict is final either way.
	RetryOnGateFail bool
	// PanelSize is the number of critique profiles per round.
	PanelSize int
	// Backoff between fallback attempts; 0 keeps the controller default.
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 4
	}
	if len(c.Strategies) == 0 {
		c.Strategies = []resilience.Strategy{
			resilience.StrategyRetry,
			resilience.StrategyReduceLength,
			resilience.StrategySimplifyPrompt,
			resilience.StrategyLowerTemperature,
		}
	}
	if c.PanelSize <= 0 {
		c.PanelSize = 5
	}
	return c
}

// Orchestrator wires the pipeline collaborators. All fields except LLM and
// Memory may be nil; nil collaborators disable their pass gracefully.
type Orchestrator struct {
	LLM        llmclient.LLMClient
	Ledger     *perf.Ledger
	Controller *resilience.Controller
	Memory     *memory.Engine
	Panel      *panel.Panel
	Research   research.Provider
	Quality    *quality.Checker
	Versions   bookstore.VersionStore
	Cfg        Config
}

// New builds an orchestrator with sane defaults for optional collaborators.
func New(client llmclient.LLMClient, mem *memory.Engine, cfg Config) *Orchestrator {
	return &Orchestrator{
		LLM:        client,
		Ledger:     perf.NewLedger(),
		Controller: resilience.NewController(),
		Memory:     mem,
		Panel:      panel.New(client, time.Now().UnixNano()),
		Research:   research.NewCached(&research.LLMProvider{LLM: client}),
		Quality:    &quality.Checker{LLM: client},
		Cfg:        cfg,
	}
}

// RunBook runs every chapter in plan order. Top critique questions from
// each unit are forwarded into the next unit's draft prompt, so the book
// reads as one argument rather than a list of essays.
func (o *Orchestrator) RunBook(ctx context.Context, plan BookPlan) (BookReport, error) {
	start := time.Now()
	o.Cfg = o.Cfg.withDefaults()

	if err := o.Memory.Load(ctx); err != nil {
		return BookReport{}, fmt.Errorf("load book context: %w", err)
	}
	o.Memory.Initialize(ctx, plan.Thesis, plan.CoreArgument, plan.Audience, plan.Archetype, plan.ToneMarkers)
	if plan.StyleGuide != "" {
		o.Memory.SetStyleGuide(ctx, plan.StyleGuide)
	}

	report := BookReport{BookID: plan.BookID}
	var forwarded []string
	for _, ch := range plan.Chapters {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if ch.Number <= o.Memory.CommittedUnits() {
			log.Printf("orchestrator: unit %d already committed, skipping", ch.Number)
			continue
		}
		unit := o.RunUnit(ctx, plan, ch, forwarded)
		report.Units = append(report.Units, unit)
		forwarded = unit.Forwarded
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

// timeoutFor asks the ledger for the adaptive per-attempt timeout of one
// operation kind.
func (o *Orchestrator) timeoutFor(op string) time.Duration {
	if o.Ledger == nil {
		return perf.DefaultTimeout
	}
	return o.Ledger.RecommendedTimeout(o.LLM.Name(), op)
}

func (o *Orchestrator) fallbackConfig(op string) resilience.Config {
	return resilience.Config{
		MaxRetries:    o.Cfg.MaxRetries,
		Strategies:    o.Cfg.Strategies,
		EmergencyMode: o.Cfg.EmergencyMode,
		Timeout:       o.timeoutFor(op),
		Backoff:       o.Cfg.Backoff,
	}
}

func (o *Orchestrator) saveVersion(ctx context.Context, bookID string, unit int, stage, body string) {
	if o.Versions == nil {
		return
	}
	if err := o.Versions.SaveVersion(ctx, bookID, unit, stage, body); err != nil {
		log.Printf("orchestrator: save %s version for unit %d: %v", stage, unit, err)
	}
}
