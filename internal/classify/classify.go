package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/CompanyPulse/internal/llm"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
	"github.com/TobiSchelling/CompanyPulse/internal/search"
	"github.com/TobiSchelling/CompanyPulse/internal/sentiment"
)

const classifyPrompt = `Analyze the following news article about a company:

1. **Summary**: Provide a comprehensive summary of the article's key points.

2. **Sentiment Analysis**:
- Classify the overall sentiment toward the company as: POSITIVE, NEGATIVE, or NEUTRAL
- Support your classification with specific quotes, tone analysis, and factual evidence from the article
- Explain your reasoning for this sentiment classification

3. **Key Topics**:
- Identify 3-5 main topics discussed in the article
- Only give the name of the topics

Be as detailed and objective as possible in your reasoning.

Article Title: %s

Article: %s`

// ResponseSchema constrains the model output to a single classification.
var ResponseSchema = llm.Schema(`{
  "title": "Sentiment",
  "type": "object",
  "properties": {
    "summary": {"title": "Summary", "type": "string"},
    "reasoning": {"title": "Reasoning", "type": "string"},
    "topics": {"title": "Topics", "type": "array", "items": {"type": "string"}},
    "sentiment": {"title": "Sentiment", "type": "string", "enum": ["positive", "negative", "neutral"]}
  },
  "required": ["summary", "reasoning", "topics", "sentiment"]
}`)

const (
	defaultConcurrency = 5
	maxContentRunes    = 12000
)

// ClassificationError reports a single article that could not be classified.
type ClassificationError struct {
	Index int
	Title string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classifying article %d (%q): %v", e.Index+1, e.Title, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Result holds the outcome of a classification run.
type Result struct {
	Records    []*sentiment.Record
	Classified int
	Failed     int
	Errors     []*ClassificationError
}

// Classifier assigns a sentiment record to each article using a language model.
type Classifier struct {
	backend     llm.Backend
	concurrency int
	timeout     time.Duration
}

// NewClassifier creates a classifier running at most concurrency model calls
// at once. A positive timeout bounds each model call on its own; zero leaves
// calls bounded only by the caller's context.
func NewClassifier(backend llm.Backend, concurrency int, timeout time.Duration) *Classifier {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Classifier{backend: backend, concurrency: concurrency, timeout: timeout}
}

// ClassifyAll classifies every source concurrently. Records keep the input
// order; an article that fails leaves a nil slot and never aborts the batch.
func (c *Classifier) ClassifyAll(ctx context.Context, sources []search.Source) *Result {
	records := make([]*sentiment.Record, len(sources))
	errs := make([]*ClassificationError, len(sources))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			callCtx, cancel := c.callContext(ctx)
			rec, err := c.Classify(callCtx, src.Title, src.Text())
			cancel()
			if err != nil {
				errs[i] = &ClassificationError{Index: i, Title: src.Title, Err: err}
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	g.Wait()

	r := &Result{Records: records}
	for i, e := range errs {
		if e != nil {
			logger.Log.Warnf("Error classifying article %d: %v", i+1, e.Err)
			r.Errors = append(r.Errors, e)
			r.Failed++
			continue
		}
		r.Classified++
		logger.Log.Debugf("Classified [%s]: %s", records[i].Sentiment, records[i].Title)
	}

	logger.Log.Infof("Classification complete: %d classified, %d failed", r.Classified, r.Failed)
	return r
}

// callContext bounds one model call. The deadline starts once the call holds a
// worker slot.
func (c *Classifier) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

type modelOutput struct {
	Summary   string   `json:"summary"`
	Reasoning string   `json:"reasoning"`
	Topics    []string `json:"topics"`
	Sentiment string   `json:"sentiment"`
}

// Classify classifies a single article.
func (c *Classifier) Classify(ctx context.Context, title, content string) (*sentiment.Record, error) {
	if content == "" {
		content = title
	}
	prompt := fmt.Sprintf(classifyPrompt, title, truncateRunes(content, maxContentRunes))

	text, err := c.backend.Generate(ctx, prompt, ResponseSchema)
	if err != nil {
		return nil, err
	}

	var out modelOutput
	if err := llm.DecodeJSON(text, &out); err != nil {
		return nil, err
	}

	class, ok := sentiment.ParseClass(out.Sentiment)
	if !ok {
		return nil, fmt.Errorf("unrecognized sentiment %q", out.Sentiment)
	}

	return sentiment.NewRecord(title, out.Summary, out.Reasoning, cleanTopics(out.Topics), class), nil
}

func cleanTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
