package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/TobiSchelling/CompanyPulse/internal/logger"
)

// Cache stores serialized search responses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ValkeyCache is a Cache backed by a Valkey server.
type ValkeyCache struct {
	client valkey.Client
}

// NewValkeyCache connects to addr and verifies the connection with PING.
func NewValkeyCache(addr, password string) (*ValkeyCache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:      []string{addr},
		Password:         password,
		ConnWriteTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging valkey: %w", err)
	}

	logger.Log.Infof("Connected to valkey at %s", addr)
	return &ValkeyCache{client: client}, nil
}

func (c *ValkeyCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return c.client.Do(ctx, c.client.B().Setex().Key(key).Seconds(seconds).Value(value).Build()).Error()
}

// Close releases the underlying connections.
func (c *ValkeyCache) Close() {
	c.client.Close()
}

// CachedSearcher serves repeated queries from a Cache. Cache failures are
// logged and fall through to the wrapped Searcher.
type CachedSearcher struct {
	next  Searcher
	cache Cache
	ttl   time.Duration
}

var _ Searcher = (*CachedSearcher)(nil)

// NewCachedSearcher wraps next with cache.
func NewCachedSearcher(next Searcher, cache Cache, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{next: next, cache: cache, ttl: ttl}
}

func (s *CachedSearcher) Name() string { return s.next.Name() }

// Search implements Searcher.
func (s *CachedSearcher) Search(ctx context.Context, req *Request) (*Response, error) {
	key := cacheKey(s.next.Name(), req)

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		logger.Log.Warnf("search cache read failed: %v", err)
	} else if ok {
		var resp Response
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			logger.Log.Debugf("search cache hit for %q", req.Query)
			return &resp, nil
		}
	}

	resp, err := s.next.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	// Empty results are not cached.
	if resp == nil || len(resp.Sources) == 0 {
		return resp, nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return resp, nil
	}
	if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
		logger.Log.Warnf("search cache write failed: %v", err)
	}
	return resp, nil
}

func cacheKey(provider string, req *Request) string {
	return strings.Join([]string{
		"companypulse", "search", provider,
		strings.ToLower(strings.TrimSpace(req.Query)),
		req.Topic, req.Depth,
		strconv.Itoa(req.MaxResults),
		strconv.FormatBool(req.IncludeRawContent),
	}, ":")
}
