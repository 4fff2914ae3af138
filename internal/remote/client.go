// Package remote talks to the menu backend over HTTP/JSON.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"menuboard/internal/core"
	"menuboard/pkg/domain"
)

// HeaderClientUID identifies the calling client to the backend.
const HeaderClientUID = "X-Client-UID"

// DefaultTimeout bounds every request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrorDetail names one invalid field.
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is the decoded error body of a non-2xx response.
type APIError struct {
	Status  int           `json:"-"`
	Name    string        `json:"name"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Name == "" && e.Message == "" {
		return fmt.Sprintf("menu api: status %d", e.Status)
	}
	return fmt.Sprintf("menu api: status %d: %s: %s", e.Status, e.Name, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithTimeout bounds requests made through the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.http.(*http.Client); ok && d > 0 {
			hc.Timeout = d
		}
	}
}

// WithClientUID pins the client identifier. A random one is used otherwise.
func WithClientUID(uid string) Option {
	return func(c *Client) {
		if uid != "" {
			c.uid = uid
		}
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client implements core.MenuAPI.
type Client struct {
	base  *url.URL
	http  HTTPDoer
	uid   string
	token string
}

var _ core.MenuAPI = (*Client)(nil)

// New builds a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("remote: base url required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", base.Scheme)
	}
	c := &Client{
		base: base,
		http: &http.Client{Timeout: DefaultTimeout},
		uid:  uuid.NewString(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ClientUID reports the identifier sent in HeaderClientUID.
func (c *Client) ClientUID() string { return c.uid }

// GetMenu fetches the whole menu tree.
func (c *Client) GetMenu(ctx context.Context) (domain.Menu, error) {
	var menu domain.Menu
	err := c.do(ctx, http.MethodGet, "menu", nil, &menu)
	return menu, err
}

// PostCategory creates a category and returns the stored record with its
// server-assigned id.
func (c *Client) PostCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	var out domain.Category
	err := c.do(ctx, http.MethodPost, "categories", category, &out)
	return out, err
}

// PostProduct creates a product and returns the stored record.
func (c *Client) PostProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	var out domain.Product
	err := c.do(ctx, http.MethodPost, "products", product, &out)
	return out, err
}

// PatchOrderCategories saves display orders and returns the updated records.
func (c *Client) PatchOrderCategories(ctx context.Context, categories []domain.Category) ([]domain.Category, error) {
	var out []domain.Category
	err := c.do(ctx, http.MethodPatch, "categories/order", categories, &out)
	return out, err
}

// PatchOrderProducts saves product display orders.
func (c *Client) PatchOrderProducts(ctx context.Context, products []domain.Product) ([]domain.Product, error) {
	var out []domain.Product
	err := c.do(ctx, http.MethodPatch, "products/order", products, &out)
	return out, err
}

// DeleteCategories deletes categories in bulk. The response lists the records
// the backend actually removed.
func (c *Client) DeleteCategories(ctx context.Context, categories []domain.Category) ([]domain.Category, error) {
	var out []domain.Category
	err := c.do(ctx, http.MethodPost, "categories/delete", categories, &out)
	return out, err
}

// DeleteProducts deletes products in bulk, returning the removed records.
func (c *Client) DeleteProducts(ctx context.Context, products []domain.Product) ([]domain.Product, error) {
	var out []domain.Product
	err := c.do(ctx, http.MethodPost, "products/delete", products, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, resource string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode %s: %w", resource, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(resource).String(), reader)
	if err != nil {
		return fmt.Errorf("remote: build %s %s: %w", method, resource, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderClientUID, c.uid)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read %s: %w", resource, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if resp.StatusCode == http.StatusNoContent || len(raw) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("remote: decode %s: %w", resource, err)
	}
	return nil
}

// decodeError accepts both {"error": {...}} and a bare error object.
func decodeError(status int, raw []byte) error {
	apiErr := &APIError{Status: status}
	var wrapped struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Error != nil {
		wrapped.Error.Status = status
		return wrapped.Error
	}
	_ = json.Unmarshal(raw, apiErr)
	apiErr.Status = status
	return apiErr
}
