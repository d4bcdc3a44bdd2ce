package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

var (
	ErrHostUnavailable = errors.New("host is not reachable")
	ErrBattleNotFound  = errors.New("battle not found")
)

// Client pulls battle captures from the host's local HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SetToken sets a bearer token sent with every request.
func (c *Client) SetToken(token string) {
	if token == "" {
		c.authHeader = ""
		return
	}
	c.authHeader = "Bearer " + token
}

// Get performs a GET request against the API.
func (c *Client) Get(ctx context.Context, endpoint string) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, ErrHostUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostUnavailable, err)
	}
	return resp, nil
}

// IsConnected checks that the API answers.
func (c *Client) IsConnected(ctx context.Context) bool {
	resp, err := c.Get(ctx, "/battles")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListBattles returns the ids of the battles the host has open.
func (c *Client) ListBattles(ctx context.Context) ([]string, error) {
	resp, err := c.Get(ctx, "/battles")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("failed to parse battle list: %w", err)
	}
	return ids, nil
}

// GetBattle captures one battle.
func (c *Client) GetBattle(ctx context.Context, id string) (*Battle, error) {
	resp, err := c.Get(ctx, "/battles/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", id, ErrBattleNotFound)
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var b Battle
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse battle: %w", err)
	}
	return &b, nil
}

// Poll captures every open battle on an interval and hands each to handler
// until ctx is cancelled. It is the pull-based counterpart of Feed.
func (c *Client) Poll(ctx context.Context, interval time.Duration, handler BattleHandler) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]bool)
	for {
		ids, err := c.ListBattles(ctx)
		if err == nil {
			current := make(map[string]bool, len(ids))
			for _, id := range ids {
				b, err := c.GetBattle(ctx, id)
				if err != nil {
					continue
				}
				current[id] = true
				handler(b, b.Ended)
			}
			for id := range seen {
				if !current[id] {
					handler(&Battle{ID: id}, true)
				}
			}
			seen = current
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
