// Package policyclient talks to an external policy registry service for
// dynamic constitutional validation, grounded on
// original_source/policy_client.py's PolicyRegistryClient.
package policyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Cache TTL tiers, exact values from policy_client.py's CACHE_TTL_POLICIES.
const (
	TTLDynamic   = 60 * time.Second
	TTLStandard  = 300 * time.Second
	TTLStable    = 900 * time.Second
	TTLImmutable = 3600 * time.Second
)

// policyTTLPatterns maps a substring found in a policy id to its TTL tier,
// exact mapping from policy_client.py's POLICY_TTL_PATTERNS.
var policyTTLPatterns = map[string]time.Duration{
	"constitutional": TTLStable,
	"governance":      TTLStable,
	"core":            TTLStable,
	"ab_test":         TTLDynamic,
	"experiment":      TTLDynamic,
	"feature_flag":    TTLDynamic,
}

// OptimalTTL returns the cache TTL tier for a policy id by substring match,
// falling back to defaultTTL when no pattern matches.
func OptimalTTL(policyID string, defaultTTL time.Duration) time.Duration {
	lower := strings.ToLower(policyID)
	for pattern, ttl := range policyTTLPatterns {
		if strings.Contains(lower, pattern) {
			return ttl
		}
	}
	return defaultTTL
}

// Policy is the content returned by the registry for a given policy id.
type Policy struct {
	ID      string                 `json:"id"`
	Content map[string]interface{} `json:"content"`
	Version string                 `json:"version"`
}

// Client fetches policy content, used by the dynamic-policy validation
// strategy.
type Client interface {
	GetPolicy(ctx context.Context, policyID string) (*Policy, error)
	// FailClosed reports whether a fetch error should be treated as a
	// policy denial rather than silently allowed.
	FailClosed() bool
}

type cacheEntry struct {
	policy    *Policy
	expiresAt time.Time
}

// HTTPClient is the reference Client implementation, backed by an HTTP
// policy registry and an in-memory TTL-tiered cache with LRU-style
// eviction, mirroring PolicyRegistryClient's OrderedDict cache.
type HTTPClient struct {
	registryURL string
	apiKey      string
	httpClient  *http.Client
	defaultTTL  time.Duration
	failClosed  bool
	maxEntries  int

	mu     sync.Mutex
	cache  map[string]cacheEntry
	order  []string // least recently used first, for eviction
}

// NewHTTPClient constructs a Client with the same defaults as
// PolicyRegistryClient: 5s timeout, 300s default TTL, fail-closed, max 1000
// cached entries.
func NewHTTPClient(registryURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		registryURL: strings.TrimRight(registryURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		defaultTTL:  TTLStandard,
		failClosed:  true,
		maxEntries:  1000,
		cache:       make(map[string]cacheEntry),
	}
}

func (c *HTTPClient) FailClosed() bool { return c.failClosed }

func (c *HTTPClient) GetPolicy(ctx context.Context, policyID string) (*Policy, error) {
	if p, ok := c.cached(policyID); ok {
		return p, nil
	}

	url := fmt.Sprintf("%s/policies/%s", c.registryURL, policyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("policy registry unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy registry returned status %d", resp.StatusCode)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	var policy Policy
	if err := json.Unmarshal(body.Bytes(), &policy); err != nil {
		return nil, fmt.Errorf("decode policy response: %w", err)
	}
	policy.ID = policyID

	c.store(policyID, &policy)
	return &policy, nil
}

func (c *HTTPClient) cached(policyID string) (*Policy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[policyID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	for i, id := range c.order {
		if id == policyID {
			c.order = append(append(c.order[:i:i], c.order[i+1:]...), policyID)
			break
		}
	}
	return entry.policy, true
}

func (c *HTTPClient) store(policyID string, policy *Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := OptimalTTL(policyID, c.defaultTTL)
	if _, exists := c.cache[policyID]; !exists {
		if len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.cache, oldest)
		}
		c.order = append(c.order, policyID)
	}
	c.cache[policyID] = cacheEntry{policy: policy, expiresAt: time.Now().Add(ttl)}
}
