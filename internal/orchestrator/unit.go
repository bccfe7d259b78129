package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"bookforge/internal/jsonx"
	"bookforge/internal/llm"
	"bookforge/internal/llmclient"
	"bookforge/internal/panel"
	"bookforge/internal/quality"
	"bookforge/internal/research"
	"bookforge/internal/resilience"
	"bookforge/internal/textparse"
)

const promptSkeleton = `You are planning one chapter of a nonfiction book.
The input holds the book context, the chapter goal and its key points.

Write a section-by-section outline for this chapter: 4 to 7 sections, each
as a numbered item with a one-sentence description of what the section
argues. Output only the numbered list.`

const promptDraft = `You are the author of a nonfiction book, writing one full chapter.
The input holds the book context so far, research notes, the chapter
outline, and open reader questions from the previous chapter.

Write the complete chapter in markdown. Requirements:
- Follow the outline, but write flowing prose, not bullet lists.
- Use "##" headings for sections.
- Stay consistent with every decision, concept and promise in the book
  context.
- Where the research notes offer a statistic or quote that strengthens a
  point, work it in naturally.
- Aim for 1200 to 1800 words.
Output only the chapter text.`

const promptRevision = `You are revising a chapter draft.
The input holds the book context, the current draft, and the reviewer
questions the revision must address.

Rewrite the chapter so each reviewer question is answered within the
prose. Keep the structure and voice, keep the length similar. Output only
the revised chapter text.`

const promptPolish = `You are doing a final line-edit pass on a chapter.
The input holds the book context and the chapter text.

Tighten the prose: cut filler, smooth transitions, fix awkward phrasing.
Do not change the argument, the structure or the facts. Output only the
polished chapter text.`

const promptGateRevision = `You are fixing a chapter that failed an editorial review.
The input holds the book context, the chapter text, and the specific
review findings.

Rewrite the chapter to fix every finding. Output only the revised chapter
text.`

const promptMetadata = `You are indexing a finished book chapter.
The input holds the chapter text.

Return STRICT JSON ONLY:
{
  "summary": "2-3 sentence chapter summary",
  "key_points": ["string"],
  "concepts": [{"name": "string", "definition": "string"}],
  "decisions": ["string"],
  "promises": ["string"],
  "entities": ["string"]
}
concepts are ideas this chapter introduces and defines. decisions are
authorial choices later chapters must respect. promises are commitments to
the reader ("we will return to X"). Empty arrays where nothing applies.`

// RunUnit takes one chapter through every pass. It always returns a
// report; the unit commits to memory in all cases except a draft pass that
// exhausted its fallback chain with emergency mode off.
func (o *Orchestrator) RunUnit(ctx context.Context, plan BookPlan, ch ChapterPlan, forwarded []string) UnitReport {
	start := time.Now()
	rep := UnitReport{Number: ch.Number, Title: ch.Title, FinalStage: StageResearch}

	res := o.runResearch(ctx, plan, ch)
	bookContext := o.Memory.BuildPromptContext()

	rep.FinalStage = StageSkeleton
	outline := o.runSkeleton(ctx, plan, ch, bookContext, &rep)

	rep.FinalStage = StageDraft
	body, ok := o.runDraft(ctx, plan, ch, bookContext, res, outline, forwarded, &rep)
	if !ok {
		// Nothing to work with and no emergency substitute: the unit is
		// flagged and skipped so the rest of the book can proceed.
		rep.NeedsRegeneration = true
		rep.Elapsed = time.Since(start)
		return rep
	}
	o.saveVersion(ctx, plan.BookID, ch.Number, StageDraft, body)

	rep.FinalStage = StageCritique
	ranked := o.runCritique(ctx, plan, ch, body)
	questions := questionTexts(ranked)
	o.saveVersion(ctx, plan.BookID, ch.Number, StageCritique, strings.Join(questions, "\n"))

	rep.FinalStage = StageRevision
	body = o.runRewrite(ctx, StageRevision, "revision", promptRevision, body, map[string]any{
		"book_context": bookContext,
		"draft":        body,
		"questions":    questions,
	}, plan, ch, &rep)

	rep.FinalStage = StagePolish
	body = o.runRewrite(ctx, StagePolish, "redraft", promptPolish, body, map[string]any{
		"book_context": bookContext,
		"text":         body,
	}, plan, ch, &rep)

	rep.FinalStage = StageQualityGate
	rep.Assessment = o.Quality.Check(ctx, ch.Title, body, questions)
	if !rep.Assessment.OverallPassed && o.Cfg.RetryOnGateFail && !rep.EmergencyContent {
		log.Printf("orchestrator: unit %d failed the quality gate, granting one revision", ch.Number)
		body = o.runRewrite(ctx, StageRevision, "revision", promptGateRevision, body, map[string]any{
			"book_context": bookContext,
			"text":         body,
			"findings":     gateFindings(rep.Assessment),
		}, plan, ch, &rep)
		rep.Assessment = o.Quality.Check(ctx, ch.Title, body, questions)
	}

	summary, keyPoints := o.extractMetadata(ctx, ch, body)

	// Commit regardless of the gate verdict. A failed assessment travels
	// with the report; discarding a finished unit would cost more than
	// shipping a flagged one.
	o.Memory.CommitUnit(ctx, ch.Number, ch.Title, body, summary, keyPoints)
	o.saveVersion(ctx, plan.BookID, ch.Number, StageCommitted, body)

	rep.FinalStage = StageCommitted
	rep.WordCount = textparse.WordCount(body)
	rep.Forwarded = forwardedQuestions(ranked)
	rep.Elapsed = time.Since(start)
	return rep
}

func (o *Orchestrator) runResearch(ctx context.Context, plan BookPlan, ch ChapterPlan) research.Result {
	if o.Research == nil {
		return research.Result{}
	}
	res, err := o.Research.Research(ctx, ch.Title, plan.Niche)
	if err != nil {
		// Research is an enrichment, never a dependency.
		log.Printf("orchestrator: research for unit %d unavailable: %v", ch.Number, err)
		return research.Result{}
	}
	return res
}

func (o *Orchestrator) runSkeleton(ctx context.Context, plan BookPlan, ch ChapterPlan, bookContext string, rep *UnitReport) []string {
	out := o.generate(ctx, "skeleton", resilience.Attempt{
		Prompt: promptSkeleton,
		Input: map[string]any{
			"book_context": bookContext,
			"chapter":      ch.Title,
			"goal":         ch.Goal,
			"key_points":   ch.KeyPoints,
		},
	}, rep)
	if !out.Succeeded {
		log.Printf("orchestrator: unit %d outline generation exhausted, using plan key points", ch.Number)
		return defaultOutline(ch)
	}
	outline := textparse.NumberedList(out.Payload)
	if len(outline) == 0 {
		outline = defaultOutline(ch)
	}
	o.saveVersion(ctx, plan.BookID, ch.Number, StageSkeleton, strings.Join(outline, "\n"))
	return outline
}

func (o *Orchestrator) runDraft(ctx context.Context, plan BookPlan, ch ChapterPlan, bookContext string, res research.Result, outline, forwarded []string, rep *UnitReport) (string, bool) {
	out := o.generate(ctx, "section", resilience.Attempt{
		Prompt: promptDraft,
		Input: map[string]any{
			"book_context":   bookContext,
			"chapter":        ch.Title,
			"goal":           ch.Goal,
			"outline":        outline,
			"research":       res,
			"open_questions": forwarded,
		},
		Temperature:    0.7,
		HasTemperature: true,
	}, rep)
	if out.Succeeded {
		return textparse.CleanupDraft(out.Payload), true
	}
	if o.Cfg.EmergencyMode {
		log.Printf("orchestrator: unit %d draft exhausted, substituting emergency content", ch.Number)
		rep.EmergencyContent = true
		rep.Degraded = true
		return emergencyContent(ch), true
	}
	log.Printf("orchestrator: unit %d draft exhausted, flagging for regeneration: %s", ch.Number, out.ErrMessage)
	return "", false
}

func (o *Orchestrator) runCritique(ctx context.Context, plan BookPlan, ch ChapterPlan, body string) []panel.RankedQuestion {
	if o.Panel == nil {
		return nil
	}
	return o.Panel.Critique(ctx, plan.Niche+" "+ch.Title, body, o.Cfg.PanelSize)
}

// runRewrite runs one rewrite pass over current. Exhaustion keeps the
// incoming text: a committed draft beats a lost revision.
func (o *Orchestrator) runRewrite(ctx context.Context, stage, op, prompt, current string, input map[string]any, plan BookPlan, ch ChapterPlan, rep *UnitReport) string {
	out := o.generate(ctx, op, resilience.Attempt{Prompt: prompt, Input: input}, rep)
	if !out.Succeeded {
		log.Printf("orchestrator: unit %d %s pass exhausted, keeping previous text", ch.Number, stage)
		return current
	}
	body := textparse.CleanupDraft(out.Payload)
	o.saveVersion(ctx, plan.BookID, ch.Number, stage, body)
	return body
}

func (o *Orchestrator) generate(ctx context.Context, op string, att resilience.Attempt, rep *UnitReport) resilience.Outcome {
	ctx = llm.WithPhase(ctx, op)
	out := o.Controller.Run(ctx, op, att, o.callLLM, o.fallbackConfig(op))
	if out.Degraded {
		rep.Degraded = true
	}
	if out.Succeeded && out.StrategyUsed != "primary" {
		rep.StrategiesUsed = append(rep.StrategiesUsed, out.StrategyUsed)
	}
	return out
}

func (o *Orchestrator) callLLM(ctx context.Context, att resilience.Attempt) (string, error) {
	if att.HasTemperature {
		ctx = llmclient.WithTemperature(ctx, att.Temperature)
	}
	prompt := att.Prompt
	if att.MaxWords > 0 {
		prompt += fmt.Sprintf("\n\nKeep the response under %d words.", att.MaxWords)
	}
	return o.LLM.GenerateText(ctx, prompt, att.Input)
}

type unitMetadata struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Concepts  []struct {
		Name       string `json:"name"`
		Definition string `json:"definition"`
	} `json:"concepts"`
	Decisions []string `json:"decisions"`
	Promises  []string `json:"promises"`
	Entities  []string `json:"entities"`
}

// extractMetadata indexes the finished unit into book memory. A failed
// extraction degrades to a truncated-text summary plus the plan's key
// points.
func (o *Orchestrator) extractMetadata(ctx context.Context, ch ChapterPlan, body string) (string, []string) {
	fallbackSummary := textparse.TruncateRunes(strings.TrimSpace(body), 400)

	ctx = llm.WithPhase(ctx, "metadata")
	raw, err := o.LLM.GenerateJSON(ctx, promptMetadata, map[string]any{"text": body})
	if err != nil {
		log.Printf("orchestrator: metadata extraction for unit %d failed: %v", ch.Number, err)
		return fallbackSummary, ch.KeyPoints
	}
	var md unitMetadata
	if err := jsonx.Unmarshal(raw, &md); err != nil {
		log.Printf("orchestrator: metadata for unit %d is not valid JSON: %v", ch.Number, err)
		return fallbackSummary, ch.KeyPoints
	}

	for _, c := range md.Concepts {
		o.Memory.RecordConceptIntroduction(ctx, c.Name, c.Definition, ch.Number)
	}
	for _, d := range md.Decisions {
		o.Memory.RecordDecision(ctx, d)
	}
	for _, p := range md.Promises {
		o.Memory.RecordPromise(ctx, p, ch.Number)
	}
	for _, e := range md.Entities {
		o.Memory.RecordEntity(ctx, e)
	}

	summary := md.Summary
	if summary == "" {
		summary = fallbackSummary
	}
	keyPoints := md.KeyPoints
	if len(keyPoints) == 0 {
		keyPoints = ch.KeyPoints
	}
	return summary, keyPoints
}

// emergencyContent renders a deterministic placeholder chapter from the
// plan alone. It will not pass the quality gate; it keeps the book moving.
func emergencyContent(ch ChapterPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", ch.Title)
	if ch.Goal != "" {
		fmt.Fprintf(&b, "%s\n\n", ch.Goal)
	}
	b.WriteString("This chapter could not be generated automatically. The planned argument follows in outline form; a regeneration pass should replace this text.\n")
	for _, kp := range ch.KeyPoints {
		fmt.Fprintf(&b, "\n%s.\n", strings.TrimSuffix(kp, "."))
	}
	return b.String()
}

func defaultOutline(ch ChapterPlan) []string {
	if len(ch.KeyPoints) > 0 {
		return append([]string(nil), ch.KeyPoints...)
	}
	return []string{ch.Goal}
}

func questionTexts(qs []panel.RankedQuestion) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Text)
	}
	return out
}

// forwardedQuestions picks the top 2 critique questions to seed the next
// unit's draft.
func forwardedQuestions(qs []panel.RankedQuestion) []string {
	texts := questionTexts(qs)
	if len(texts) > 2 {
		texts = texts[:2]
	}
	return texts
}

func gateFindings(a quality.Assessment) []string {
	var out []string
	for _, g := range a.Gates {
		if !g.Passed {
			out = append(out, fmt.Sprintf("failed check %s: %s", g.Name, g.Detail))
		}
	}
	for _, d := range a.Dimensions {
		if !d.Passed() {
			out = append(out, fmt.Sprintf("weak %s (scored %d/10)", d.Name, d.Score))
		}
	}
	out = append(out, a.Suggestions...)
	return out
}
