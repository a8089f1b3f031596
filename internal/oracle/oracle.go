// Package oracle provides HTTP adapters for the external membership and
// strike services. Both are consulted inside the admission transaction; an
// upstream failure aborts the attempt — a prioritization decision is never
// made on missing data. A short-TTL Redis read-through cache keeps repeated
// per-waitlist lookups cheap.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/memberhub/admission/internal/admission"
	"github.com/redis/go-redis/v9"
)

const cacheTTL = 30 * time.Second

// MembershipClient resolves the groups a user belongs to.
type MembershipClient struct {
	baseURL string
	http    *http.Client
	cache   *redis.Client
}

// NewMembershipClient constructs a MembershipClient. cache may be nil to
// disable caching.
func NewMembershipClient(baseURL string, cache *redis.Client) *MembershipClient {
	return &MembershipClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		cache:   cache,
	}
}

// GroupsOf returns the set of group identifiers the user belongs to.
func (c *MembershipClient) GroupsOf(ctx context.Context, userID string) (admission.GroupSet, error) {
	key := "oracle:groups:" + userID

	var groupIDs []string
	if ok, err := c.cached(ctx, key, &groupIDs); err == nil && ok {
		return admission.NewGroupSet(groupIDs), nil
	}

	var body struct {
		GroupIDs []string `json:"group_ids"`
	}
	url := fmt.Sprintf("%s/users/%s/groups", c.baseURL, userID)
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, fmt.Errorf("membership lookup for %s: %w", userID, err)
	}

	c.store(ctx, key, body.GroupIDs)
	return admission.NewGroupSet(body.GroupIDs), nil
}

func (c *MembershipClient) cached(ctx context.Context, key string, dst any) (bool, error) {
	return cacheGet(ctx, c.cache, key, dst)
}

func (c *MembershipClient) store(ctx context.Context, key string, val any) {
	cacheSet(ctx, c.cache, key, val)
}

func (c *MembershipClient) getJSON(ctx context.Context, url string, dst any) error {
	return getJSON(ctx, c.http, url, dst)
}

// StrikeClient resolves a user's current disciplinary strike count.
type StrikeClient struct {
	baseURL string
	http    *http.Client
	cache   *redis.Client
}

// NewStrikeClient constructs a StrikeClient. cache may be nil.
func NewStrikeClient(baseURL string, cache *redis.Client) *StrikeClient {
	return &StrikeClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		cache:   cache,
	}
}

// StrikeCountOf returns the user's active strike count.
func (c *StrikeClient) StrikeCountOf(ctx context.Context, userID string) (int, error) {
	key := "oracle:strikes:" + userID

	var count int
	if ok, err := cacheGet(ctx, c.cache, key, &count); err == nil && ok {
		return count, nil
	}

	var body struct {
		Count int `json:"count"`
	}
	url := fmt.Sprintf("%s/users/%s/strikes", c.baseURL, userID)
	if err := getJSON(ctx, c.http, url, &body); err != nil {
		return 0, fmt.Errorf("strike lookup for %s: %w", userID, err)
	}

	cacheSet(ctx, c.cache, key, body.Count)
	return body.Count, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func cacheGet(ctx context.Context, cache *redis.Client, key string, dst any) (bool, error) {
	if cache == nil {
		return false, nil
	}
	raw, err := cache.Get(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, err
	}
	return true, nil
}

func cacheSet(ctx context.Context, cache *redis.Client, key string, val any) {
	if cache == nil {
		return
	}
	// Cache writes are best-effort.
	if raw, err := json.Marshal(val); err == nil {
		cache.Set(ctx, key, raw, cacheTTL)
	}
}
