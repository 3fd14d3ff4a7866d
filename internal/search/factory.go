package search

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/CompanyPulse/internal/config"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

// NewSearcher builds the configured provider, wrapped with content filling
// and caching as enabled. The returned cleanup func is never nil.
func NewSearcher(cfg *config.Config) (Searcher, func(), error) {
	cleanup := func() {}

	var s Searcher
	switch strings.ToLower(cfg.Search.Provider) {
	case "", "tavily":
		apiKey := config.Secret(cfg.Search.Tavily.APIKeyEnv)
		if apiKey == "" {
			return nil, cleanup, fmt.Errorf("tavily api key is missing (set %s)", cfg.Search.Tavily.APIKeyEnv)
		}
		s = NewTavilyClient(apiKey)
	case "newsapi":
		apiKey := config.Secret(cfg.Search.NewsAPI.APIKeyEnv)
		if apiKey == "" {
			return nil, cleanup, fmt.Errorf("newsapi api key is missing (set %s)", cfg.Search.NewsAPI.APIKeyEnv)
		}
		s = NewNewsAPIClient(apiKey, cfg.Search.NewsAPI.DaysBack)
	case "rss":
		if !strings.Contains(cfg.Search.RSS.URLTemplate, "%s") {
			return nil, cleanup, fmt.Errorf("rss url_template must contain %%s")
		}
		s = NewRSSClient(cfg.Search.RSS.URLTemplate)
	default:
		return nil, cleanup, fmt.Errorf("unknown search provider: %s", cfg.Search.Provider)
	}

	if cfg.Search.FetchMissingContent {
		s = NewContentFiller(s, cfg.ArticleLimit(), 0)
	}

	if addr := cfg.Cache.ValkeyAddress; addr != "" {
		cache, err := NewValkeyCache(addr, config.Secret(cfg.Cache.PasswordEnv))
		if err != nil {
			logger.Log.Warnf("Search cache disabled: %v", err)
		} else {
			s = NewCachedSearcher(s, cache, cfg.Cache.TTL)
			cleanup = cache.Close
		}
	}

	return s, cleanup, nil
}

// RequestFor builds the search request for a company from config.
func RequestFor(cfg *config.Config, company string) *Request {
	return &Request{
		Query:             company,
		Topic:             cfg.Search.Topic,
		Depth:             cfg.Search.Depth,
		MaxResults:        cfg.SearchResultLimit(),
		IncludeRawContent: true,
	}
}
