package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/expiry/content"
)

// ClientOption configures an APIClient.
type ClientOption func(*APIClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *APIClient) {
		c.httpClient = hc
	}
}

// WithBasicAuth sets the API credentials.
func WithBasicAuth(user, key string) ClientOption {
	return func(c *APIClient) {
		c.user = user
		c.key = key
	}
}

// APIClient reads expiring pages, permissions and users from the server's
// /expiry endpoints. It implements Source.
type APIClient struct {
	baseURL    string
	user       string
	key        string
	httpClient *http.Client
}

// NewAPIClient creates a client for the API rooted at baseURL, for example
// "https://cms.example.com/api/v1".
func NewAPIClient(baseURL string, timeout time.Duration, opts ...ClientOption) (*APIClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &APIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *APIClient) ExpiringPages(ctx context.Context, days int) ([]content.Page, error) {
	var pages []content.Page
	if err := c.get(ctx, "/expiry/expiring?days="+strconv.Itoa(days), &pages, nil); err != nil {
		return nil, err
	}
	return pages, nil
}

func (c *APIClient) PermissionsForPage(ctx context.Context, pageID int) ([]int, error) {
	var ids []int
	if err := c.get(ctx, "/expiry/permissions/"+strconv.Itoa(pageID), &ids, content.ErrNodeNotFound); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *APIClient) UserByID(ctx context.Context, userID int) (*content.User, error) {
	var u content.User
	if err := c.get(ctx, "/expiry/users/"+strconv.Itoa(userID), &u, content.ErrUserNotFound); err != nil {
		return nil, err
	}
	return &u, nil
}

// get decodes a JSON response into out. A 404 is reported as notFound when
// it is set.
func (c *APIClient) get(ctx context.Context, path string, out any, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		return fmt.Errorf("%w: %s", notFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
