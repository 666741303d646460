// Package suggest calls an external suggestion service for prompt-based
// rules. Responses are cached in Redis keyed by a content hash, and outbound
// calls are rate limited so a burst of documents cannot flood the service.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"

	"vaultredact/detect"
	"vaultredact/observability"
)

type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	CacheTTL          time.Duration
}

// Client implements the pipeline's Suggester.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *redis.Client
	log     observability.Logger
}

// NewClient builds a suggester. cache may be nil to disable caching.
func NewClient(cfg Config, cache *redis.Client, log observability.Logger) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:   cache,
		log:     log,
	}
}

type suggestRequest struct {
	Prompts []string `json:"prompts"`
	Text    string   `json:"text"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggest returns sensitive strings the service found for the given prompt
// rules. Identical text and prompts hit the cache instead of the wire.
func (c *Client) Suggest(ctx context.Context, rules []detect.Rule, text string) ([]string, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	prompts := make([]string, 0, len(rules))
	for _, r := range rules {
		prompts = append(prompts, r.AIPrompt)
	}

	key := cacheKey(prompts, text)
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key).Result(); err == nil {
			var out []string
			if json.Unmarshal([]byte(cached), &out) == nil {
				c.log.Debug("suggestion cache hit", observability.String("key", key))
				return out, nil
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.call(ctx, suggestRequest{Prompts: prompts, Text: text})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(out); err == nil {
			if err := c.cache.Set(ctx, key, encoded, c.cfg.CacheTTL).Err(); err != nil {
				c.log.Warn("suggestion cache write failed", observability.Error("error", err))
			}
		}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, reqBody suggestRequest) ([]string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/suggest", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("suggestion service returned %d: %s", resp.StatusCode, body)
	}

	var decoded suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded.Suggestions, nil
}

func cacheKey(prompts []string, text string) string {
	var b bytes.Buffer
	for _, p := range prompts {
		b.WriteString(p)
		b.WriteByte(0)
	}
	b.WriteString(text)
	return "vaultredact:suggest:" + detect.ContentHash(b.Bytes())
}
