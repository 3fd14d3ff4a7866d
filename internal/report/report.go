package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/CompanyPulse/internal/llm"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
	"github.com/TobiSchelling/CompanyPulse/internal/sentiment"
)

// Stage names the pipeline stage this package reports backend errors under.
const Stage = "synthesize"

// DefaultMaxPromptChars bounds the prompt sent to the backend.
const DefaultMaxPromptChars = 8000

// Sections lists the report headings in order.
var Sections = []string{
	"Executive Summary",
	"Media Coverage Analysis",
	"Sentiment Breakdown",
	"Narrative Analysis",
	"Key Drivers",
	"Competitive Context",
	"Stakeholder Perspective",
	"Recommendations",
	"Appendix",
}

const reportPrompt = `You are a senior media analyst. Write a comparative news sentiment report about %s.

Sentiment distribution across the analysed articles:
- Positive: %d
- Negative: %d
- Neutral: %d

Topics covered by more than one article: %s

Write the report in markdown with exactly these nine sections, in this order, each as a level-2 heading:
%s

Guidance per section:
1. Executive Summary: the overall media stance toward %s in 3-4 sentences.
2. Media Coverage Analysis: volume and balance of coverage, citing the distribution above.
3. Sentiment Breakdown: what drives each sentiment group, with article titles as evidence.
4. Narrative Analysis: the dominant storylines and how they differ between positive and negative coverage.
5. Key Drivers: the events or decisions behind the coverage.
6. Competitive Context: how the coverage positions the company against competitors or its industry.
7. Stakeholder Perspective: implications for investors, customers and employees.
8. Recommendations: concrete communication or business actions.
9. Appendix: the distribution counts and the shared topics listed verbatim.

Base every statement on the articles below. Do not invent facts.

Positive articles:
%s

Negative articles:
%s

Neutral articles:
%s`

// Synthesizer turns aggregated sentiment into a structured report using a
// language model.
type Synthesizer struct {
	backend        llm.Backend
	maxPromptChars int
}

// NewSynthesizer creates a report synthesizer. maxPromptChars <= 0 selects
// DefaultMaxPromptChars.
func NewSynthesizer(backend llm.Backend, maxPromptChars int) *Synthesizer {
	if maxPromptChars <= 0 {
		maxPromptChars = DefaultMaxPromptChars
	}
	return &Synthesizer{backend: backend, maxPromptChars: maxPromptChars}
}

// Synthesize generates the report for company. Backend failures are returned
// as *llm.BackendError; there is no retry and no fallback report.
func (s *Synthesizer) Synthesize(ctx context.Context, company string, buckets sentiment.Buckets, comp sentiment.Comparative) (string, error) {
	prompt := Truncate(Prompt(company, buckets, comp), s.maxPromptChars)

	text, err := s.backend.Generate(ctx, prompt, nil)
	if err != nil {
		return "", llm.WrapError(Stage, s.backend, err)
	}

	logger.Log.Infof("Synthesized report for %s (%d chars)", company, len(text))
	return strings.TrimSpace(text), nil
}

// Prompt renders the report prompt without truncation. Article text comes
// last so truncation only shortens the evidence.
func Prompt(company string, buckets sentiment.Buckets, comp sentiment.Comparative) string {
	d := comp.Distribution

	common := "none"
	if len(comp.TopicOverlap.CommonTopics) > 0 {
		common = strings.Join(comp.TopicOverlap.CommonTopics, ", ")
	}

	headings := make([]string, len(Sections))
	for i, name := range Sections {
		headings[i] = fmt.Sprintf("%d. %s", i+1, name)
	}

	return fmt.Sprintf(reportPrompt,
		company,
		d.Positive, d.Negative, d.Neutral,
		common,
		strings.Join(headings, "\n"),
		company,
		buckets.Positive, buckets.Negative, buckets.Neutral,
	)
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
