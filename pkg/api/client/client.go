package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gfgkiit/trapped/internal/domain"
)

// Client provides typed access to the trapped API for admin tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string) (*http.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	resp, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// LoginResponse captures the token payload emitted by the API.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
	ExpiresAt string `json:"expiresAt"`
}

// Login exchanges admin credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/admin/login", body, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// ListRegistrations returns applicant registrations, optionally filtered by
// domain and preference slot.
func (c *Client) ListRegistrations(ctx context.Context, token, domainName, slot string) ([]domain.Registration, error) {
	query := url.Values{}
	if strings.TrimSpace(domainName) != "" {
		query.Set("domain", domainName)
	}
	if strings.TrimSpace(slot) != "" {
		query.Set("slot", slot)
	}
	path := "/registrations"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out []domain.Registration
	if err := c.do(ctx, http.MethodGet, path, nil, token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTeams returns every team registration.
func (c *Client) ListTeams(ctx context.Context, token string) ([]domain.Team, error) {
	var out []domain.Team
	if err := c.do(ctx, http.MethodGet, "/teams", nil, token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats is the admission summary served by GET /stats.
type Stats struct {
	Registrations int64            `json:"registrations"`
	Teams         int64            `json:"teams"`
	ByDomain      map[string]int64 `json:"byDomain"`
	Recent        []domain.Rollup  `json:"recent"`
	GeneratedAt   time.Time        `json:"generatedAt"`
}

// Stats fetches running admission counts.
func (c *Client) Stats(ctx context.Context, token string) (Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, token, &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// CheckDevice reports whether a device fingerprint has registered.
func (c *Client) CheckDevice(ctx context.Context, deviceID string) (bool, error) {
	var out struct {
		Registered bool `json:"registered"`
	}
	if err := c.do(ctx, http.MethodPost, "/check-device", map[string]string{"deviceId": deviceID}, "", &out); err != nil {
		return false, err
	}
	return out.Registered, nil
}

// Export streams a spreadsheet export into w and returns the file name the
// server suggested.
func (c *Client) Export(ctx context.Context, token string, target ExportTarget, w io.Writer) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, target.path(), nil, token)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download export: %w", err)
	}
	name := "export.xlsx"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, nil
}

// ExportTarget selects which sheet Export downloads.
type ExportTarget struct {
	Kind   string
	Domain string
	Slot   string
}

// Export kinds.
const (
	ExportRegistrations = "registrations"
	ExportTeams         = "teams"
	ExportDomain        = "domain"
)

func (t ExportTarget) path() string {
	switch t.Kind {
	case ExportDomain:
		path := "/export/domain/" + url.PathEscape(t.Domain)
		if t.Slot != "" {
			path += "?slot=" + url.QueryEscape(t.Slot)
		}
		return path
	case ExportTeams:
		return "/export/teams"
	default:
		return "/export/registrations"
	}
}
