package search

import (
	"context"
	"strings"

	"github.com/TobiSchelling/CompanyPulse/internal/config"
)

// Searcher finds news sources for a query.
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Request is a provider-neutral search request.
type Request struct {
	Query             string
	Topic             string // "news" or "general"
	Depth             string // "basic" or "advanced"
	MaxResults        int
	IncludeRawContent bool
}

// Response holds the sources found for a request, in provider order.
type Response struct {
	Sources []Source `json:"sources"`
}

// Source is a single search hit.
type Source struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	RawContent    string  `json:"raw_content"`
	Score         float64 `json:"score,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
	Origin        string  `json:"origin,omitempty"`
}

// Text returns the best available body text: full page content when known,
// otherwise the provider's snippet.
func (s Source) Text() string {
	if raw := strings.TrimSpace(s.RawContent); raw != "" {
		return raw
	}
	return strings.TrimSpace(s.Content)
}

// resultLimit bounds a requested result count to 1..config.MaxResultsLimit.
func resultLimit(n int) int {
	if n <= 0 || n > config.MaxResultsLimit {
		return config.MaxResultsLimit
	}
	return n
}
