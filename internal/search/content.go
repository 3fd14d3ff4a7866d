package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

const minExtractedChars = 100

// ContentFiller wraps a Searcher and fills in full article text for the
// leading sources that came back without raw content.
type ContentFiller struct {
	next   Searcher
	limit  int
	client *http.Client
}

var _ Searcher = (*ContentFiller)(nil)

// NewContentFiller fetches missing content for at most limit sources.
func NewContentFiller(next Searcher, limit int, timeout time.Duration) *ContentFiller {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFiller{
		next:  next,
		limit: limit,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (f *ContentFiller) Name() string { return f.next.Name() }

// Search implements Searcher.
func (f *ContentFiller) Search(ctx context.Context, req *Request) (*Response, error) {
	resp, err := f.next.Search(ctx, req)
	if err != nil || resp == nil {
		return resp, err
	}

	failedDomains := make(map[string]struct{})
	fetched := 0
	for i := range resp.Sources {
		if f.limit > 0 && i >= f.limit {
			break
		}
		src := &resp.Sources[i]
		if strings.TrimSpace(src.RawContent) != "" || src.URL == "" {
			continue
		}

		domain := ""
		if u, err := url.Parse(src.URL); err == nil {
			domain = strings.ToLower(u.Host)
		}
		if _, failed := failedDomains[domain]; failed {
			continue
		}

		content, err := f.fetchArticleContent(ctx, src.URL)
		if err != nil {
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			logger.Log.Warnf("HTTP error for %s, skipping remaining from %s: %v", src.URL, domain, err)
			continue
		}
		if content == "" {
			logger.Log.Debugf("No extractable content from: %s", src.URL)
			continue
		}
		src.RawContent = content
		fetched++
	}

	if fetched > 0 {
		logger.Log.Infof("Fetched full content for %d sources", fetched)
	}
	return resp, nil
}

func (f *ContentFiller) fetchArticleContent(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "CompanyPulse/1.0 (news sentiment)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > minExtractedChars {
		return text, nil
	}
	return "", nil
}
