// Package control implements the authenticated HTTP client for the kernel's
// local management API. Every other component reaches the kernel through
// this client, never through raw sockets.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// requestTimeout bounds every control-plane call so a hung kernel
	// cannot block the polling loops.
	requestTimeout = 5 * time.Second

	delayTestURL     = "http://www.gstatic.com/generate_204"
	delayTestTimeout = 2000 // ms, passed to the kernel
)

// TokenSource supplies the current bearer credential. The supervisor owns
// the cached token and re-derives it on every (re)start; the client reads
// it per request so a restart rotates credentials without rewiring.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource, useful in tests.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() string { return string(s) }

// Client is a thin client for the kernel management API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a control client for the given base URL
// (e.g. "http://127.0.0.1:9097").
func NewClient(baseURL string, tokens TokenSource, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// do issues a request with the bearer credential attached and returns the
// response body for 2xx responses. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kernel request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read kernel response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bytes.TrimSpace(data)),
		}
		c.logger.Debugw("Kernel request rejected",
			"method", method, "path", path, "status", resp.Status)
		return nil, apiErr
	}

	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode kernel response for %s: %w", path, err)
	}
	return nil
}

// Version fetches the kernel version. Health polling treats any error as
// "kernel down"; there is no finer liveness signal.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var v VersionInfo
	if err := c.getJSON(ctx, "/version", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetConfigs fetches the kernel's effective configuration.
func (c *Client) GetConfigs(ctx context.Context) (*CoreConfig, error) {
	var cfg CoreConfig
	if err := c.getJSON(ctx, "/configs", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PatchConfigs applies a partial configuration update.
func (c *Client) PatchConfigs(ctx context.Context, patch ConfigPatch) error {
	_, err := c.do(ctx, http.MethodPatch, "/configs", patch)
	return err
}

// SwitchConfig makes the kernel load the configuration document at path with
// a forced reload. The path must be absolute: the kernel's working directory
// is the supervisor's data dir, not the caller's.
func (c *Client) SwitchConfig(ctx context.Context, path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("config path must be absolute, got %q", path)
	}
	_, err := c.do(ctx, http.MethodPut, "/configs?force=true", map[string]string{"path": path})
	return err
}

// Reload forces the kernel to re-read its current configuration document.
func (c *Client) Reload(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPut, "/configs?force=true", map[string]string{"path": ""})
	return err
}

// GetProxies fetches all proxy nodes and groups.
func (c *Client) GetProxies(ctx context.Context) (map[string]Proxy, error) {
	var resp proxiesResponse
	if err := c.getJSON(ctx, "/proxies", &resp); err != nil {
		return nil, err
	}
	return resp.Proxies, nil
}

// SelectProxy makes name the active node of the selector group.
func (c *Client) SelectProxy(ctx context.Context, group, name string) error {
	_, err := c.do(ctx, http.MethodPut, "/proxies/"+url.PathEscape(group),
		map[string]string{"name": name})
	return err
}

// GroupDelayTest triggers a latency test for every node in the group. The
// kernel records results into each node's delay history.
func (c *Client) GroupDelayTest(ctx context.Context, group string) error {
	q := url.Values{}
	q.Set("url", delayTestURL)
	q.Set("timeout", strconv.Itoa(delayTestTimeout))
	_, err := c.do(ctx, http.MethodGet,
		"/group/"+url.PathEscape(group)+"/delay?"+q.Encode(), nil)
	return err
}

// GetConnections fetches the live connection snapshot with cumulative
// upload/download totals.
func (c *Client) GetConnections(ctx context.Context) (*ConnectionsInfo, error) {
	var info ConnectionsInfo
	if err := c.getJSON(ctx, "/connections", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CloseConnection terminates one tracked connection.
func (c *Client) CloseConnection(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/connections/"+url.PathEscape(id), nil)
	return err
}

// CloseAllConnections terminates every tracked connection.
func (c *Client) CloseAllConnections(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/connections", nil)
	return err
}

// GetRules fetches the routing rule list.
func (c *Client) GetRules(ctx context.Context) ([]Rule, error) {
	var resp rulesResponse
	if err := c.getJSON(ctx, "/rules", &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// GetProxyProviders fetches all proxy providers.
func (c *Client) GetProxyProviders(ctx context.Context) (map[string]Provider, error) {
	var resp providersResponse
	if err := c.getJSON(ctx, "/providers/proxies", &resp); err != nil {
		return nil, err
	}
	return resp.Providers, nil
}

// UpdateProxyProvider forces a refresh of one proxy provider.
func (c *Client) UpdateProxyProvider(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodPut, "/providers/proxies/"+url.PathEscape(name), nil)
	return err
}

// GetRuleProviders fetches all rule providers.
func (c *Client) GetRuleProviders(ctx context.Context) (map[string]Provider, error) {
	var resp providersResponse
	if err := c.getJSON(ctx, "/providers/rules", &resp); err != nil {
		return nil, err
	}
	return resp.Providers, nil
}

// UpdateRuleProvider forces a refresh of one rule provider.
func (c *Client) UpdateRuleProvider(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodPut, "/providers/rules/"+url.PathEscape(name), nil)
	return err
}

// UpdateGeo triggers a geo database update. Slow; callers should use a
// generous context deadline.
func (c *Client) UpdateGeo(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/configs/geo", nil)
	return err
}

// FlushFakeIP clears the kernel's fake-ip cache.
func (c *Client) FlushFakeIP(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/cache/fakeip/flush", nil)
	return err
}

// ForceGC asks the kernel to run a garbage collection cycle.
func (c *Client) ForceGC(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/gc", nil)
	return err
}

// QueryDNS resolves a name through the kernel's DNS stack, for debugging.
func (c *Client) QueryDNS(ctx context.Context, name string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("name", name)
	data, err := c.do(ctx, http.MethodGet, "/dns/query?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// StreamURL builds the websocket URL for a streaming endpoint, attaching
// the current token as a query credential plus any extra parameters.
func (c *Client) StreamURL(endpoint string, params url.Values) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	u.Scheme = "ws"
	u.Path = endpoint
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if token := c.tokens.Token(); token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
