package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const tavilyBaseURL = "https://api.tavily.com/search"

// TavilyClient searches the web through the Tavily API.
type TavilyClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ Searcher = (*TavilyClient)(nil)

// NewTavilyClient creates a new Tavily client.
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		apiKey:  apiKey,
		baseURL: tavilyBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *TavilyClient) Name() string { return "tavily" }

type tavilyRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth,omitempty"`
	Topic             string `json:"topic,omitempty"`
	MaxResults        int    `json:"max_results,omitempty"`
	IncludeRawContent bool   `json:"include_raw_content,omitempty"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		RawContent    string  `json:"raw_content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// Search implements Searcher.
func (c *TavilyClient) Search(ctx context.Context, req *Request) (*Response, error) {
	treq := tavilyRequest{
		Query:             req.Query,
		SearchDepth:       req.Depth,
		Topic:             req.Topic,
		MaxResults:        resultLimit(req.MaxResults),
		IncludeRawContent: req.IncludeRawContent,
	}
	if treq.SearchDepth == "" {
		treq.SearchDepth = "basic"
	}
	if treq.Topic == "" {
		treq.Topic = "news"
	}

	payload, err := json.Marshal(treq)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tavily request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily api error (status %d): %s", res.StatusCode, string(body))
	}

	var tres tavilyResponse
	if err := json.Unmarshal(body, &tres); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}

	sources := make([]Source, 0, len(tres.Results))
	for _, r := range tres.Results {
		sources = append(sources, Source{
			Title:         r.Title,
			URL:           r.URL,
			Content:       r.Content,
			RawContent:    r.RawContent,
			Score:         r.Score,
			PublishedDate: r.PublishedDate,
			Origin:        "Tavily",
		})
	}
	return &Response{Sources: sources}, nil
}
