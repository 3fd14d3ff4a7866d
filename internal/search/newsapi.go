package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPIClient searches articles through NewsAPI.
type NewsAPIClient struct {
	apiKey   string
	baseURL  string
	daysBack int
	client   *http.Client
}

var _ Searcher = (*NewsAPIClient)(nil)

// NewNewsAPIClient creates a new NewsAPI client.
func NewNewsAPIClient(apiKey string, daysBack int) *NewsAPIClient {
	if daysBack <= 0 {
		daysBack = 7
	}
	return &NewsAPIClient{
		apiKey:   apiKey,
		baseURL:  newsAPIBaseURL,
		daysBack: daysBack,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *NewsAPIClient) Name() string { return "newsapi" }

// Search implements Searcher.
func (c *NewsAPIClient) Search(ctx context.Context, req *Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.New("newsapi: API key not configured")
	}

	pageSize := resultLimit(req.MaxResults)

	now := time.Now()
	params := url.Values{
		"q":        {req.Query},
		"from":     {now.AddDate(0, 0, -c.daysBack).Format("2006-01-02")},
		"to":       {now.Format("2006-01-02")},
		"language": {"en"},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"relevancy"},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi HTTP error: %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("newsapi decode: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %s: %s", result.Status, result.Message)
	}

	var sources []Source
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}

		var pubDate string
		if a.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
				pubDate = t.Format("2006-01-02")
			}
		}

		content := a.Content
		if content == "" {
			content = a.Description
		}

		origin := "NewsAPI"
		if a.Source.Name != "" {
			origin = a.Source.Name
		}

		sources = append(sources, Source{
			Title:         strings.TrimSpace(a.Title),
			URL:           a.URL,
			Content:       strings.TrimSpace(content),
			PublishedDate: pubDate,
			Origin:        origin,
		})
		if len(sources) >= pageSize {
			break
		}
	}

	logger.Log.Infof("Fetched %d articles from NewsAPI for query: %s", len(sources), req.Query)
	return &Response{Sources: sources}, nil
}
