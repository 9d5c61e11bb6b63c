package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"stockmaster/backend/internal/domain"
)

// ErrUnavailable marks any failure to obtain a product listing: transport
// errors, non-2xx responses and undecodable bodies.
var ErrUnavailable = errors.New("search unavailable")

const (
	listPath  = "/products/api/list"
	loginPath = "/api/v1/auth/login"

	defaultClientTimeout = 10 * time.Second
	maxErrorBody         = 512
)

// Fetcher loads the products matching a search text.
type Fetcher interface {
	Fetch(ctx context.Context, text string) ([]domain.Product, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, text string) ([]domain.Product, error)

func (f FetcherFunc) Fetch(ctx context.Context, text string) ([]domain.Product, error) {
	return f(ctx, text)
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// Client talks to the product listing endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a bearer token used by later requests.
func (c *Client) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	payload, err := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		return domain.LoginResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return domain.LoginResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.LoginResponse{}, fmt.Errorf("login failed: %s", errorBody(resp))
	}

	var out domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("login decode error: %w", err)
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.mu.Unlock()
	return out, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Fetch requests GET /products/api/list?search=<text>. Every failure wraps
// ErrUnavailable, except a canceled context which is returned as is.
func (c *Client) Fetch(ctx context.Context, text string) ([]domain.Product, error) {
	query := url.Values{"search": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+listPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, errorBody(resp))
	}

	var products []domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

func errorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return msg
}
