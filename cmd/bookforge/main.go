package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookforge/internal/bookstore"
	"bookforge/internal/config"
	"bookforge/internal/llm"
	"bookforge/internal/llmclient"
	"bookforge/internal/memory"
	"bookforge/internal/orchestrator"
	"bookforge/internal/panel"
	"bookforge/internal/perf"
	"bookforge/internal/quality"
	"bookforge/internal/research"
	"bookforge/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	var plan orchestrator.BookPlan
	readJSON(cfg.PlanPath, &plan)
	if plan.BookID == "" || len(plan.Chapters) == 0 {
		log.Fatalf("plan %s needs a book_id and at least one chapter", cfg.PlanPath)
	}

	ctx := context.Background()
	ledger := perf.NewPersistentLedger(cfg.LedgerPath)

	client, err := buildClient(ctx, cfg, ledger)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	store := bookstore.NewFromEnv(filepath.Join(cfg.DataDir, "books"))
	defer store.Close()

	var cold memory.ColdStore
	if cfg.Cold.Enabled {
		cold, err = bookstore.NewS3ColdStore(cfg.Cold.S3)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		cold = bookstore.NewFSColdStore(filepath.Join(cfg.DataDir, "books"))
	}

	mem := memory.NewEngine(plan.BookID, store, cold)

	o := &orchestrator.Orchestrator{
		LLM:        client,
		Ledger:     ledger,
		Controller: resilience.NewController(),
		Memory:     mem,
		Panel:      panel.New(client, cfg.Seed),
		Research:   research.NewCached(&research.LLMProvider{LLM: client}),
		Quality:    &quality.Checker{LLM: client},
		Versions:   store,
		Cfg: orchestrator.Config{
			MaxRetries:      cfg.MaxRetries,
			Strategies:      cfg.Strategies,
			EmergencyMode:   cfg.EmergencyMode,
			RetryOnGateFail: cfg.RetryOnGateFail,
			PanelSize:       cfg.PanelSize,
		},
	}

	log.Printf("bookforge: provider=%s book=%s chapters=%d", cfg.Provider, plan.BookID, len(plan.Chapters))
	report, err := o.RunBook(ctx, plan)
	if err != nil {
		log.Fatal(err)
	}

	outDir := filepath.Join(cfg.DataDir, "out", plan.BookID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatal(err)
	}
	writeJSON(filepath.Join(outDir, "report.json"), report)
	writeChapters(ctx, outDir, mem, report)
	printSummary(report, ledger, client.Name())
}

func buildClient(ctx context.Context, cfg *config.Config, ledger *perf.Ledger) (llmclient.LLMClient, error) {
	var base llmclient.LLMClient
	var err error
	switch cfg.Provider {
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		base, err = llmclient.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel, 1_000_000)
	case "groq":
		if cfg.GroqKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY is not set")
		}
		base, err = llmclient.NewGroqClient(cfg.GroqKey, cfg.GroqModel, 128_000)
	case "fake":
		base = llm.NewFakeClient(128_000)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	mws := []llm.Middleware{
		llm.WithLogging(log.Default()),
		llm.Retry(2, 2*time.Second),
		llm.WithPerf(ledger),
	}
	if cfg.RPS > 0 {
		mws = append([]llm.Middleware{llm.RateLimit(cfg.RPS, cfg.Burst)}, mws...)
	}
	return llm.Wrap(base, mws...), nil
}

func writeChapters(ctx context.Context, outDir string, mem *memory.Engine, report orchestrator.BookReport) {
	for _, u := range report.Units {
		if u.FinalStage != orchestrator.StageCommitted {
			continue
		}
		unit, ok := mem.Unit(ctx, u.Number)
		if !ok {
			continue
		}
		name := fmt.Sprintf("chapter_%02d.md", u.Number)
		body := fmt.Sprintf("# %s\n\n%s\n", unit.Title, strings.TrimSpace(unit.Text))
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(body), 0o644); err != nil {
			log.Printf("write %s: %v", name, err)
		}
	}
}

func printSummary(report orchestrator.BookReport, ledger *perf.Ledger, model string) {
	for _, u := range report.Units {
		status := "ok"
		switch {
		case u.NeedsRegeneration:
			status = "NEEDS REGENERATION"
		case u.EmergencyContent:
			status = "emergency content"
		case u.Degraded:
			status = "degraded"
		}
		gate := "passed"
		if !u.Assessment.OverallPassed {
			gate = "failed"
		}
		log.Printf("unit %d %-28q %5d words  gate %s  %s", u.Number, u.Title, u.WordCount, gate, status)
	}
	prof := ledger.Profile(model, "")
	log.Printf("done in %s: %d/%d units committed, model success rate %.0f%%",
		report.Elapsed.Round(time.Second), committed(report), len(report.Units), prof.SuccessRate*100)
}

func committed(report orchestrator.BookReport) int {
	n := 0
	for _, u := range report.Units {
		if u.FinalStage == orchestrator.StageCommitted {
			n++
		}
	}
	return n
}

func readJSON(path string, v any) {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read %s: %v", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		log.Fatalf("failed to unmarshal %s: %v", path, err)
	}
}

func writeJSON(path string, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		log.Printf("write %s: %v", path, err)
	}
}
