package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/CompanyPulse/internal/classify"
	"github.com/TobiSchelling/CompanyPulse/internal/config"
	"github.com/TobiSchelling/CompanyPulse/internal/database"
	"github.com/TobiSchelling/CompanyPulse/internal/llm"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
	"github.com/TobiSchelling/CompanyPulse/internal/report"
	"github.com/TobiSchelling/CompanyPulse/internal/search"
	"github.com/TobiSchelling/CompanyPulse/internal/sentiment"
	"github.com/TobiSchelling/CompanyPulse/internal/speech"
	"github.com/TobiSchelling/CompanyPulse/internal/translate"
)

// Stage is a state of a pipeline run.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageFetching     Stage = "fetching"
	StageClassifying  Stage = "classifying"
	StageAggregating  Stage = "aggregating"
	StagePartitioning Stage = "partitioning"
	StageSynthesizing Stage = "synthesizing"
	StageTranslating  Stage = "translating"
	StageNarrating    Stage = "narrating"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// FetchStage names the search stage in backend errors.
const FetchStage = "fetch"

var (
	// ErrNoSources is returned when the search finds nothing for a company.
	// Its message is shown to users verbatim.
	ErrNoSources = errors.New("No sources found.")

	// ErrEmptyCompany is returned for a blank company name.
	ErrEmptyCompany = errors.New("company name is required")
)

const timeFormat = "2006-01-02 15:04:05"

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a pipeline run. Analysis is set only when the
// run reached StageDone.
type Result struct {
	Company  string
	Stage    Stage
	Steps    []StepResult
	Analysis *database.Analysis
}

// Pipeline runs fetch, classify, aggregate, partition, synthesize, translate
// and narrate for one company per call. It holds no per-request state.
type Pipeline struct {
	cfg      *config.Config
	searcher search.Searcher
	narrator *speech.Narrator
	db       *database.DB
	observer func(Stage)
}

// New creates a new pipeline. narrator and db may be nil, which disables
// speech output and persistence respectively.
func New(cfg *config.Config, searcher search.Searcher, narrator *speech.Narrator, db *database.DB) *Pipeline {
	return &Pipeline{cfg: cfg, searcher: searcher, narrator: narrator, db: db}
}

// OnStage registers fn to be called on every stage transition.
func (p *Pipeline) OnStage(fn func(Stage)) {
	p.observer = fn
}

type run struct {
	company  string
	backend  llm.Backend
	result   *Result
	warnings []string

	sources     []search.Source
	records     []*sentiment.Record
	comparative sentiment.Comparative
	buckets     sentiment.Buckets
	report      string
	translation string
	audioFile   string
}

// Run executes the pipeline for company using backend for every language
// model call. ErrNoSources and *llm.BackendError are the expected failures.
func (p *Pipeline) Run(ctx context.Context, company string, backend llm.Backend) (*Result, error) {
	company = strings.TrimSpace(company)
	r := &run{company: company, backend: backend, result: &Result{Company: company, Stage: StageIdle}}
	if company == "" {
		return p.fail(r, ErrEmptyCompany)
	}

	p.enter(r, StageFetching)
	step := p.runFetch(ctx, r)
	r.result.Steps = append(r.result.Steps, step)
	if step.Err != nil {
		return p.fail(r, step.Err)
	}

	p.enter(r, StageClassifying)
	r.result.Steps = append(r.result.Steps, p.runClassify(ctx, r))

	p.enter(r, StageAggregating)
	r.result.Steps = append(r.result.Steps, p.runAggregate(r))

	p.enter(r, StagePartitioning)
	r.result.Steps = append(r.result.Steps, p.runPartition(r))

	p.enter(r, StageSynthesizing)
	step = p.runSynthesize(ctx, r)
	r.result.Steps = append(r.result.Steps, step)
	if step.Err != nil {
		return p.fail(r, step.Err)
	}

	p.enter(r, StageTranslating)
	step = p.runTranslate(ctx, r)
	r.result.Steps = append(r.result.Steps, step)
	if step.Err != nil {
		return p.fail(r, step.Err)
	}

	p.enter(r, StageNarrating)
	r.result.Steps = append(r.result.Steps, p.runNarrate(ctx, r))

	r.result.Analysis = p.buildAnalysis(r)
	p.persist(r.result.Analysis)

	p.enter(r, StageDone)
	return r.result, nil
}

func (p *Pipeline) enter(r *run, s Stage) {
	r.result.Stage = s
	if p.observer != nil {
		p.observer(s)
	}
}

func (p *Pipeline) fail(r *run, err error) (*Result, error) {
	p.enter(r, StageFailed)
	if errors.Is(err, ErrNoSources) {
		logger.Log.Infof("No sources found for %q", r.company)
	} else {
		logger.Log.Errorf("Analysis of %q failed: %v", r.company, err)
	}
	return r.result, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (p *Pipeline) runFetch(ctx context.Context, r *run) StepResult {
	logger.Log.Infof("Step 1/7: Searching news for %s...", r.company)
	ctx, cancel := withTimeout(ctx, p.cfg.Timeouts.Search)
	defer cancel()

	resp, err := p.searcher.Search(ctx, search.RequestFor(p.cfg, r.company))
	if err != nil {
		return StepResult{Name: "Fetch", Err: &llm.BackendError{Stage: FetchStage, Provider: p.searcher.Name(), Err: err}}
	}
	if resp == nil || len(resp.Sources) == 0 {
		return StepResult{Name: "Fetch", Err: ErrNoSources}
	}

	r.sources = resp.Sources
	if limit := p.cfg.ArticleLimit(); len(r.sources) > limit {
		r.sources = r.sources[:limit]
	}
	return StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Found %d sources, analysing %d", len(resp.Sources), len(r.sources)),
	}
}

func (p *Pipeline) runClassify(ctx context.Context, r *run) StepResult {
	logger.Log.Infof("Step 2/7: Classifying %d articles...", len(r.sources))
	c := classify.NewClassifier(r.backend, p.cfg.Analysis.ClassifyConcurrency, p.cfg.Timeouts.Classify)
	res := c.ClassifyAll(ctx, r.sources)
	r.records = res.Records
	for _, e := range res.Errors {
		r.warnings = append(r.warnings, fmt.Sprintf("article %d could not be classified: %v", e.Index+1, e.Err))
	}
	return StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("Classified %d articles, %d failed", res.Classified, res.Failed),
	}
}

func (p *Pipeline) runAggregate(r *run) StepResult {
	logger.Log.Info("Step 3/7: Aggregating sentiment...")
	var opts []sentiment.AggregateOption
	if p.cfg.Analysis.LegacyUniqueTopics {
		opts = append(opts, sentiment.WithLegacyUniqueTopics())
	}
	r.comparative = sentiment.Aggregate(r.records, opts...)
	d := r.comparative.Distribution
	return StepResult{
		Name: "Aggregate",
		Summary: fmt.Sprintf("%d positive, %d negative, %d neutral; %d common topics",
			d.Positive, d.Negative, d.Neutral, len(r.comparative.TopicOverlap.CommonTopics)),
	}
}

func (p *Pipeline) runPartition(r *run) StepResult {
	logger.Log.Info("Step 4/7: Partitioning summaries...")
	r.buckets = sentiment.Partition(r.records)
	return StepResult{Name: "Partition", Summary: "Grouped summaries by sentiment"}
}

func (p *Pipeline) runSynthesize(ctx context.Context, r *run) StepResult {
	logger.Log.Info("Step 5/7: Synthesizing report...")
	ctx, cancel := withTimeout(ctx, p.cfg.Timeouts.Synthesize)
	defer cancel()

	s := report.NewSynthesizer(r.backend, p.cfg.Report.MaxPromptChars)
	text, err := s.Synthesize(ctx, r.company, r.buckets, r.comparative)
	if err != nil {
		return StepResult{Name: "Synthesize", Err: err}
	}
	r.report = text
	return StepResult{Name: "Synthesize", Summary: fmt.Sprintf("Report of %d chars", len(text))}
}

func (p *Pipeline) runTranslate(ctx context.Context, r *run) StepResult {
	logger.Log.Infof("Step 6/7: Translating report to %s...", p.cfg.Translation.Language)
	ctx, cancel := withTimeout(ctx, p.cfg.Timeouts.Translate)
	defer cancel()

	t := translate.NewTranslator(r.backend, p.cfg.Translation.Language)
	text, err := t.Translate(ctx, r.report)
	if err != nil {
		return StepResult{Name: "Translate", Err: err}
	}
	r.translation = text
	return StepResult{Name: "Translate", Summary: fmt.Sprintf("Translated to %s", t.Language())}
}

func (p *Pipeline) runNarrate(ctx context.Context, r *run) StepResult {
	logger.Log.Info("Step 7/7: Narrating translation...")
	if p.narrator == nil {
		r.warnings = append(r.warnings, "speech output disabled")
		return StepResult{Name: "Narrate", Summary: "Skipped (speech disabled)"}
	}

	ctx, cancel := withTimeout(ctx, p.cfg.Timeouts.Speech)
	defer cancel()

	text := r.translation
	if text == "" {
		text = r.report
	}
	name, err := p.narrator.Narrate(ctx, text)
	if err != nil {
		logger.Log.Warnf("Narration failed: %v", err)
		r.warnings = append(r.warnings, fmt.Sprintf("audio unavailable: %v", err))
		return StepResult{Name: "Narrate", Summary: "Audio unavailable", Err: err}
	}
	r.audioFile = name
	return StepResult{Name: "Narrate", Summary: "Saved " + name}
}

func (p *Pipeline) buildAnalysis(r *run) *database.Analysis {
	sources := make([]database.SourceRef, len(r.sources))
	for i, s := range r.sources {
		sources[i] = database.SourceRef{Title: s.Title, URL: s.URL}
	}
	warnings := r.warnings
	if warnings == nil {
		warnings = []string{}
	}
	return &database.Analysis{
		ID:            uuid.NewString(),
		CompanyName:   r.company,
		ModelProvider: r.backend.Name(),
		Articles:      r.records,
		Sources:       sources,
		Comparative:   r.comparative,
		FinalReport:   r.report,
		Translation:   r.translation,
		Language:      p.cfg.Translation.Language,
		AudioFile:     r.audioFile,
		AudioURL:      database.AudioURLFor(r.audioFile),
		Warnings:      warnings,
		CreatedAt:     time.Now().UTC().Format(timeFormat),
	}
}

func (p *Pipeline) persist(a *database.Analysis) {
	if p.db == nil {
		return
	}
	if err := p.db.InsertAnalysis(a); err != nil {
		logger.Log.Errorf("Error saving analysis %s: %v", a.ID, err)
	}
}
