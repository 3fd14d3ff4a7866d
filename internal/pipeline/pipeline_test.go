package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/CompanyPulse/internal/config"
	"github.com/TobiSchelling/CompanyPulse/internal/database"
	"github.com/TobiSchelling/CompanyPulse/internal/llm"
	"github.com/TobiSchelling/CompanyPulse/internal/search"
	"github.com/TobiSchelling/CompanyPulse/internal/speech"
)

type fakeSearcher struct {
	resp  *search.Response
	err   error
	calls int
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(context.Context, *search.Request) (*search.Response, error) {
	f.calls++
	return f.resp, f.err
}

// mockBackend answers each prompt kind with a canned response.
type mockBackend struct {
	mu             sync.Mutex
	classifyCalls  int
	classifyByBody map[string]string
	synthErr       error
	translateErr   error
	prompts        []string

	// classifyDelay is spent before answering a classification prompt.
	classifyDelay time.Duration
}

func (m *mockBackend) Generate(ctx context.Context, prompt string, _ llm.Schema) (string, error) {
	if m.classifyDelay > 0 && strings.HasPrefix(prompt, "Analyze the following news article") {
		select {
		case <-time.After(m.classifyDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	switch {
	case strings.HasPrefix(prompt, "Analyze the following news article"):
		m.classifyCalls++
		for body, resp := range m.classifyByBody {
			if strings.Contains(prompt, "Article: "+body) {
				return resp, nil
			}
		}
		return "", errors.New("no canned classification")
	case strings.Contains(prompt, "comparative news sentiment report"):
		if m.synthErr != nil {
			return "", m.synthErr
		}
		return "## Executive Summary\nMixed coverage.", nil
	case strings.HasPrefix(prompt, "Translate the following report"):
		if m.translateErr != nil {
			return "", m.translateErr
		}
		return "## कार्यकारी सारांश", nil
	}
	return "", errors.New("unexpected prompt")
}

func (m *mockBackend) Name() string       { return "Ollama" }
func (m *mockBackend) IsConfigured() bool { return true }

func classification(t *testing.T, sent string, topics ...string) string {
	t.Helper()
	data, _ := json.Marshal(map[string]any{
		"summary": sent + " summary", "reasoning": "r", "topics": topics, "sentiment": sent,
	})
	return string(data)
}

type fakeSynth struct{ err error }

func (f fakeSynth) Speak(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("mp3")), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.DataDir = t.TempDir()
	return cfg
}

func twoSources() *search.Response {
	return &search.Response{Sources: []search.Source{
		{Title: "Acme beats", URL: "https://a.example/1", RawContent: "body-one"},
		{Title: "Acme recall", URL: "https://a.example/2", RawContent: "body-two"},
	}}
}

func twoClassifications(t *testing.T) map[string]string {
	return map[string]string{
		"body-one": classification(t, "positive", "A", "B"),
		"body-two": classification(t, "negative", "B", "C"),
	}
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	db, err := database.Open(filepath.Join(cfg.GetDataDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	store := speech.NewStore(cfg.AudioDir())
	p := New(cfg, &fakeSearcher{resp: twoSources()}, speech.NewNarrator(fakeSynth{}, store), db)

	var stages []Stage
	p.OnStage(func(s Stage) { stages = append(stages, s) })

	backend := &mockBackend{classifyByBody: twoClassifications(t)}
	res, err := p.Run(context.Background(), " Acme ", backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Stage{StageFetching, StageClassifying, StageAggregating, StagePartitioning,
		StageSynthesizing, StageTranslating, StageNarrating, StageDone}
	if len(stages) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], stages[i])
		}
	}

	a := res.Analysis
	if a == nil {
		t.Fatal("expected analysis")
	}
	if a.CompanyName != "Acme" || a.ModelProvider != "Ollama" {
		t.Errorf("unexpected identity %q / %q", a.CompanyName, a.ModelProvider)
	}
	d := a.Comparative.Distribution
	if d.Positive != 1 || d.Negative != 1 || d.Neutral != 0 {
		t.Errorf("unexpected distribution %+v", d)
	}
	if len(a.Comparative.TopicOverlap.CommonTopics) != 1 || a.Comparative.TopicOverlap.CommonTopics[0] != "B" {
		t.Errorf("unexpected common topics %v", a.Comparative.TopicOverlap.CommonTopics)
	}
	if a.FinalReport == "" || a.Translation != "## कार्यकारी सारांश" {
		t.Errorf("unexpected report/translation %q / %q", a.FinalReport, a.Translation)
	}
	if !strings.HasPrefix(a.AudioURL, "/audio/") {
		t.Errorf("unexpected audio url %q", a.AudioURL)
	}
	if _, err := os.Stat(filepath.Join(cfg.AudioDir(), a.AudioFile)); err != nil {
		t.Errorf("expected audio file on disk: %v", err)
	}
	if len(a.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", a.Warnings)
	}
	if len(res.Steps) != 7 {
		t.Errorf("expected 7 steps, got %d", len(res.Steps))
	}

	// The report prompt carries the partitioned summaries.
	var reportPrompt string
	for _, pr := range backend.prompts {
		if strings.Contains(pr, "comparative news sentiment report") {
			reportPrompt = pr
		}
	}
	if !strings.Contains(reportPrompt, "Title: Acme beats\nSummary: positive summary") {
		t.Errorf("expected positive bucket in report prompt, got %q", reportPrompt)
	}

	stored, err := db.GetAnalysis(a.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected stored analysis, got %v, %v", stored, err)
	}
	if stored.FinalReport != a.FinalReport {
		t.Errorf("stored report mismatch")
	}
}

func TestRunNoSourcesSkipsClassification(t *testing.T) {
	for name, resp := range map[string]*search.Response{
		"nil sources":   {},
		"empty sources": {Sources: []search.Source{}},
		"nil response":  nil,
	} {
		t.Run(name, func(t *testing.T) {
			backend := &mockBackend{}
			p := New(testConfig(t), &fakeSearcher{resp: resp}, nil, nil)

			res, err := p.Run(context.Background(), "Nobody Inc", backend)
			if !errors.Is(err, ErrNoSources) {
				t.Fatalf("expected ErrNoSources, got %v", err)
			}
			if err.Error() != "No sources found." {
				t.Errorf("unexpected message %q", err.Error())
			}
			if len(backend.prompts) != 0 {
				t.Errorf("expected no backend calls, got %d", len(backend.prompts))
			}
			if res.Stage != StageFailed || res.Analysis != nil {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}
}

func TestRunSearchErrorIsFetchStageError(t *testing.T) {
	p := New(testConfig(t), &fakeSearcher{err: errors.New("dial tcp: refused")}, nil, nil)
	_, err := p.Run(context.Background(), "Acme", &mockBackend{})

	var be *llm.BackendError
	if !errors.As(err, &be) || be.Stage != FetchStage || be.Provider != "fake" {
		t.Errorf("expected fetch BackendError, got %v", err)
	}
}

func TestRunEmptyCompany(t *testing.T) {
	s := &fakeSearcher{resp: twoSources()}
	_, err := New(testConfig(t), s, nil, nil).Run(context.Background(), "   ", &mockBackend{})
	if !errors.Is(err, ErrEmptyCompany) {
		t.Errorf("expected ErrEmptyCompany, got %v", err)
	}
	if s.calls != 0 {
		t.Error("expected no search for empty company")
	}
}

func sevenSources(t *testing.T) (*search.Response, map[string]string) {
	var sources []search.Source
	bodies := map[string]string{}
	for _, b := range []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7"} {
		sources = append(sources, search.Source{Title: b, RawContent: b})
		bodies[b] = classification(t, "neutral", b)
	}
	return &search.Response{Sources: sources}, bodies
}

func TestRunClassifiesAtMostConfiguredArticles(t *testing.T) {
	for name, tt := range map[string]struct {
		maxArticles int
		want        int
	}{
		"default":        {5, 5},
		"lower":          {3, 3},
		"unset":          {0, 5},
		"above the cap":  {20, 5},
		"negative value": {-1, 5},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Analysis.MaxArticles = tt.maxArticles
			resp, bodies := sevenSources(t)

			backend := &mockBackend{classifyByBody: bodies}
			res, err := New(cfg, &fakeSearcher{resp: resp}, nil, nil).Run(context.Background(), "Acme", backend)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if backend.classifyCalls != tt.want {
				t.Errorf("expected %d classifications, got %d", tt.want, backend.classifyCalls)
			}
			if len(res.Analysis.Articles) != tt.want || res.Analysis.Comparative.Distribution.Neutral != tt.want {
				t.Errorf("unexpected articles %d / %+v", len(res.Analysis.Articles), res.Analysis.Comparative.Distribution)
			}
		})
	}
}

func TestRunClassifyTimeoutAppliesPerArticle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.ClassifyConcurrency = 1
	cfg.Timeouts.Classify = 150 * time.Millisecond
	resp, bodies := sevenSources(t)

	// Five serial calls of 60ms each outlast a single 150ms budget.
	backend := &mockBackend{classifyByBody: bodies, classifyDelay: 60 * time.Millisecond}
	res, err := New(cfg, &fakeSearcher{resp: resp}, nil, nil).Run(context.Background(), "Acme", backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, rec := range res.Analysis.Articles {
		if rec == nil {
			t.Errorf("article %d: expected a classification", i+1)
		}
	}
	for _, w := range res.Analysis.Warnings {
		if strings.Contains(w, "could not be classified") {
			t.Errorf("unexpected classification warning %q", w)
		}
	}
}

func TestRunFailedClassificationKeepsEmptySlot(t *testing.T) {
	backend := &mockBackend{classifyByBody: map[string]string{
		"body-one": "not json",
		"body-two": classification(t, "negative", "C"),
	}}
	res, err := New(testConfig(t), &fakeSearcher{resp: twoSources()}, nil, nil).
		Run(context.Background(), "Acme", backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := res.Analysis
	if a.Articles[0] != nil || a.Articles[1] == nil {
		t.Errorf("expected nil first slot, got %+v", a.Articles)
	}
	if got, ok := a.Comparative.TopicOverlap.Unique[1]; !ok || len(got) != 0 {
		t.Errorf("expected empty unique topics for the failed slot, got %v (present %v)", got, ok)
	}
	if got := a.Comparative.TopicOverlap.Unique[2]; len(got) != 1 || got[0] != "C" {
		t.Errorf("expected [C] for the second slot, got %v", got)
	}
	found := false
	for _, w := range a.Warnings {
		if strings.Contains(w, "article 1 could not be classified") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected classification warning, got %v", a.Warnings)
	}
}

func TestRunSynthesisFailureAborts(t *testing.T) {
	backend := &mockBackend{classifyByBody: twoClassifications(t), synthErr: errors.New("model crashed")}
	res, err := New(testConfig(t), &fakeSearcher{resp: twoSources()}, nil, nil).
		Run(context.Background(), "Acme", backend)

	var be *llm.BackendError
	if !errors.As(err, &be) || be.Stage != "synthesize" {
		t.Fatalf("expected synthesize BackendError, got %v", err)
	}
	if res.Stage != StageFailed || res.Analysis != nil {
		t.Errorf("unexpected result %+v", res)
	}
	for _, pr := range backend.prompts {
		if strings.HasPrefix(pr, "Translate") {
			t.Error("expected translation not attempted")
		}
	}
}

func TestRunTranslationFailureAborts(t *testing.T) {
	backend := &mockBackend{classifyByBody: twoClassifications(t), translateErr: errors.New("timeout")}
	_, err := New(testConfig(t), &fakeSearcher{resp: twoSources()}, nil, nil).
		Run(context.Background(), "Acme", backend)

	var be *llm.BackendError
	if !errors.As(err, &be) || be.Stage != "translate" {
		t.Errorf("expected translate BackendError, got %v", err)
	}
}

func TestRunSpeechFailureStillCompletes(t *testing.T) {
	cfg := testConfig(t)
	narrator := speech.NewNarrator(fakeSynth{err: errors.New("quota exceeded")}, speech.NewStore(cfg.AudioDir()))
	res, err := New(cfg, &fakeSearcher{resp: twoSources()}, narrator, nil).
		Run(context.Background(), "Acme", &mockBackend{classifyByBody: twoClassifications(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stage != StageDone {
		t.Errorf("expected done, got %s", res.Stage)
	}
	if res.Analysis.AudioURL != "" {
		t.Errorf("expected empty audio url, got %q", res.Analysis.AudioURL)
	}
	if len(res.Analysis.Warnings) != 1 || !strings.Contains(res.Analysis.Warnings[0], "quota exceeded") {
		t.Errorf("expected speech warning, got %v", res.Analysis.Warnings)
	}
}

func TestRunLegacyUniqueTopics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.LegacyUniqueTopics = true
	sources := &search.Response{Sources: []search.Source{
		{Title: "one", RawContent: "x1"}, {Title: "two", RawContent: "x2"}, {Title: "three", RawContent: "x3"},
	}}
	backend := &mockBackend{classifyByBody: map[string]string{
		"x1": classification(t, "positive", "A", "B"),
		"x2": classification(t, "positive", "A", "C"),
		"x3": classification(t, "positive", "D"),
	}}

	res, err := New(cfg, &fakeSearcher{resp: sources}, nil, nil).Run(context.Background(), "Acme", backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.Analysis.Comparative.TopicOverlap.Unique[1]; len(got) != 2 {
		t.Errorf("expected legacy last-pair difference [A B], got %v", got)
	}
}
