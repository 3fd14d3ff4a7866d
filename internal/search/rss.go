package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

// RSSClient searches a news RSS feed whose URL embeds the query, such as
// Google News search feeds.
type RSSClient struct {
	urlTemplate string
	parser      *gofeed.Parser
}

var _ Searcher = (*RSSClient)(nil)

// NewRSSClient creates a client for a feed URL template containing one %s
// placeholder for the escaped query.
func NewRSSClient(urlTemplate string) *RSSClient {
	return &RSSClient{
		urlTemplate: urlTemplate,
		parser:      gofeed.NewParser(),
	}
}

func (c *RSSClient) Name() string { return "rss" }

// Search implements Searcher.
func (c *RSSClient) Search(ctx context.Context, req *Request) (*Response, error) {
	feedURL := fmt.Sprintf(c.urlTemplate, url.QueryEscape(req.Query))

	feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	limit := resultLimit(req.MaxResults)

	var sources []Source
	for _, item := range feed.Items {
		if len(sources) >= limit {
			break
		}
		if src := parseItem(item, feed.Title); src != nil {
			sources = append(sources, *src)
		}
	}

	logger.Log.Infof("Parsed %d entries from %s", len(sources), feedURL)
	return &Response{Sources: sources}, nil
}

func parseItem(item *gofeed.Item, origin string) *Source {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var publishedDate string
	if item.PublishedParsed != nil {
		publishedDate = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		publishedDate = item.UpdatedParsed.Format("2006-01-02")
	}

	var content string
	if item.Content != "" {
		content = stripHTML(item.Content)
	} else if item.Description != "" {
		content = stripHTML(item.Description)
	}

	if origin == "" {
		origin = "RSS"
	}

	return &Source{
		Title:         title,
		URL:           itemURL,
		Content:       content,
		PublishedDate: publishedDate,
		Origin:        origin,
	}
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := entityReplacer.Replace(result.String())
	return strings.Join(strings.Fields(s), " ")
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)
