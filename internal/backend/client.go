// Package backend talks to the application's dev-tools endpoints: the total
// user count and the active-user simulation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/nvandessel/usersim/internal/panel"
)

const (
	totalUsersPath = "/api/dev-tools/total-users"
	simulatePath   = "/api/dev-tools/simulate-active-users"
)

// DefaultTimeout bounds a request when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config holds connection settings for the backend.
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// RemoteError is the error message reported by the backend alongside a
// simulation count. Its text is the backend message, verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Client implements panel.UserCounter and panel.Invoker over HTTP.
type Client struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

// NewClient creates a backend client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiToken: cfg.APIToken,
		client:   httpClient,
	}
}

type countResponse struct {
	Count int `json:"count"`
}

type simulateRequest struct {
	NumToSimulate int `json:"numToSimulate"`
	// nil encodes as null, which is how a non-finite fraction is sent.
	PercentageDataChanged *float64 `json:"percentageDataChanged"`
}

type simulateResponse struct {
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// CountUsers returns the total number of users known to the backend.
func (c *Client) CountUsers(ctx context.Context) (int, error) {
	body, err := c.do(ctx, http.MethodGet, totalUsersPath, nil)
	if err != nil {
		return 0, fmt.Errorf("fetching total users: %w", err)
	}

	var resp countResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parsing total users response: %w", err)
	}
	return resp.Count, nil
}

// Simulate runs one simulation step. A backend-reported error is returned as
// a *RemoteError together with the count the backend reported.
func (c *Client) Simulate(ctx context.Context, req panel.Request) (int, error) {
	payload := simulateRequest{NumToSimulate: req.TargetActiveUsers}
	if f := req.ChangeFraction; !math.IsNaN(f) && !math.IsInf(f, 0) {
		payload.PercentageDataChanged = &f
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshaling request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, simulatePath, jsonBody)
	if err != nil {
		return 0, err
	}

	var resp simulateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parsing simulation response: %w", err)
	}
	if resp.Error != "" {
		return resp.Count, &RemoteError{Message: resp.Error}
	}
	return resp.Count, nil
}

func (c *Client) do(ctx context.Context, method, path string, jsonBody []byte) ([]byte, error) {
	var reader io.Reader
	if jsonBody != nil {
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

var (
	_ panel.UserCounter = (*Client)(nil)
	_ panel.Invoker     = (*Client)(nil)
)
