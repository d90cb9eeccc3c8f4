// Package controlplane is a client for the monitoring platform's GraphQL API.
//
// The client logs in with user credentials, selects a workspace and then
// issues account queries and mutations. Every request carries the bearer
// token and the workspace id header. A request rejected as UNAUTHENTICATED
// triggers one fresh login and a single replay of the same request; nothing
// else is retried.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	workspaceHeader    = "customer"
)

// Options configures a Client.
type Options struct {
	URL           string
	Username      string
	Password      string
	WorkspaceID   string
	WorkspaceName string
	// RateLimit caps requests per second across all callers. Zero or
	// negative means unlimited.
	RateLimit  float64
	HTTPClient *http.Client
}

// Client talks to the control plane. It is safe for concurrent use.
type Client struct {
	url      string
	username string
	password string
	wsName   string
	http     *http.Client
	limiter  *rate.Limiter

	mu          sync.RWMutex
	token       string
	workspaceID string
}

// NewClient creates a client. Call Login before issuing requests.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = max(1, int(opts.RateLimit))
	}

	return &Client{
		url:         opts.URL,
		username:    opts.Username,
		password:    opts.Password,
		wsName:      opts.WorkspaceName,
		workspaceID: opts.WorkspaceID,
		http:        httpClient,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// URL returns the GraphQL endpoint.
func (c *Client) URL() string {
	return c.url
}

// WorkspaceID returns the workspace requests are scoped to.
func (c *Client) WorkspaceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workspaceID
}

// Login obtains an access token and resolves the workspace if none was
// configured.
func (c *Client) Login(ctx context.Context) error {
	if err := c.refreshToken(ctx); err != nil {
		return err
	}
	if c.WorkspaceID() != "" {
		return nil
	}

	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workspaces: %w", err)
	}
	ws, err := selectWorkspace(workspaces, c.wsName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.workspaceID = ws.ID
	c.mu.Unlock()
	return nil
}

// Workspaces lists the workspaces available to the logged-in user.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var data struct {
		Workspaces []Workspace `json:"workspaces"`
	}
	if err := c.execute(ctx, "", nil, workspacesQuery, &data, false); err != nil {
		return nil, err
	}
	return data.Workspaces, nil
}

func selectWorkspace(workspaces []Workspace, name string) (Workspace, error) {
	if name == "" {
		if len(workspaces) == 0 {
			return Workspace{}, ErrWorkspaceNotFound
		}
		return workspaces[0], nil
	}
	for _, ws := range workspaces {
		if ws.DisplayName == name {
			return ws, nil
		}
	}
	return Workspace{}, fmt.Errorf("%w: %q", ErrWorkspaceNotFound, name)
}

func (c *Client) refreshToken(ctx context.Context) error {
	vars := map[string]any{
		"credentials": map[string]string{"email": c.username, "password": c.password},
	}
	var data struct {
		Login struct {
			AccessToken string `json:"access_token"`
		} `json:"login"`
	}

	resp, err := c.send(ctx, graphRequest{OperationName: "Login", Variables: vars, Query: loginQuery}, "", "")
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, &APIError{Operation: "Login", Errors: resp.Errors})
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if data.Login.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrUnauthenticated)
	}

	c.mu.Lock()
	c.token = "Bearer " + data.Login.AccessToken
	c.mu.Unlock()
	return nil
}

type graphRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type graphResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphError    `json:"errors"`
	status int
}

// execute runs one GraphQL operation and decodes data into out.
func (c *Client) execute(ctx context.Context, op string, vars map[string]any, query string, out any, scoped bool) error {
	if vars == nil {
		vars = map[string]any{}
	}
	req := graphRequest{OperationName: op, Variables: vars, Query: query}

	token, ws := c.credentials(scoped)
	resp, err := c.send(ctx, req, token, ws)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized || unauthenticated(resp.Errors) {
		if err := c.refreshToken(ctx); err != nil {
			return err
		}
		token, ws = c.credentials(scoped)
		resp, err = c.send(ctx, req, token, ws)
		if err != nil {
			return err
		}
		if resp.status == http.StatusUnauthorized || unauthenticated(resp.Errors) {
			return fmt.Errorf("%s: %w", opName(op), ErrUnauthenticated)
		}
	}

	if len(resp.Errors) > 0 {
		return &APIError{Operation: opName(op), Errors: resp.Errors}
	}
	if resp.status < 200 || resp.status >= 300 {
		return fmt.Errorf("%s: control plane returned HTTP %d", opName(op), resp.status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", opName(op), err)
	}
	return nil
}

func (c *Client) credentials(scoped bool) (token, workspace string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if scoped {
		return c.token, c.workspaceID
	}
	return c.token, ""
}

func (c *Client) send(ctx context.Context, gr graphRequest, token, workspace string) (*graphResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if workspace != "" {
		req.Header.Set(workspaceHeader, workspace)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.url, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &graphResponse{status: res.StatusCode}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && res.StatusCode < 300 {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return out, nil
}

func opName(op string) string {
	if op == "" {
		return "query"
	}
	return op
}
