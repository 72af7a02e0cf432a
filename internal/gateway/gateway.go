// Package gateway provides the REST client for the Devika backend.
// Every method is a single request/response pair; failures propagate to
// the caller as wrapped errors with no automatic retry.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stitionai/devika-go/internal/logging"
	"github.com/stitionai/devika-go/internal/store"
)

// Client provides HTTP methods for the Devika REST API.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// New creates a new Devika REST client.
// baseURL should be the backend address (e.g., "http://localhost:1337").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// apiURL builds a full API URL.
func (c *Client) apiURL(path string) string {
	return c.baseURL + path
}

// getJSON performs a GET and decodes the response body into v.
func (c *Client) getJSON(op, path string, v any) error {
	resp, err := c.httpClient.Get(c.apiURL(path))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// postJSON performs a POST with a JSON body and decodes the response into v.
// v may be nil when the response body is irrelevant.
func (c *Client) postJSON(op, path string, req, v any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	resp, err := c.httpClient.Post(c.apiURL(path), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(respBody))
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// Data is the full initial dataset used to bootstrap the client.
type Data struct {
	Projects      []string `json:"projects"`
	Models        []string `json:"models"`
	SearchEngines []string `json:"search_engines"`
}

// FetchData fetches the bootstrap dataset: projects, models, and
// search engines.
func (c *Client) FetchData() (*Data, error) {
	var data Data
	if err := c.getJSON("fetch data", "/api/data", &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// FetchMessages returns the full message log for a project.
func (c *Client) FetchMessages(project string) ([]store.Message, error) {
	var result struct {
		Messages []store.Message `json:"messages"`
	}
	req := map[string]string{"project_name": project}
	if err := c.postJSON("fetch messages", "/api/messages", req, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// FetchAgentState returns the latest agent state snapshot for a
// project, or nil when the backend has none.
func (c *Client) FetchAgentState(project string) (*store.AgentState, error) {
	var result struct {
		State *store.AgentState `json:"state"`
	}
	req := map[string]string{"project_name": project}
	if err := c.postJSON("fetch agent state", "/api/get-agent-state", req, &result); err != nil {
		return nil, err
	}
	return result.State, nil
}

// ExecuteRequest is the payload for an agent invocation.
type ExecuteRequest struct {
	Prompt       string `json:"prompt"`
	BaseModel    string `json:"base_model"`
	ProjectName  string `json:"project_name"`
	SearchEngine string `json:"search_engine"`
}

// ExecuteAgent dispatches an agent invocation. Selection validation
// happens in the reconciler before any network call; by the time this
// runs the request is assumed complete.
func (c *Client) ExecuteAgent(req ExecuteRequest) error {
	logging.Gateway().Debug("executing agent",
		"project", req.ProjectName, "model", req.BaseModel)
	return c.postJSON("execute agent", "/api/execute-agent", req, nil)
}

// IsAgentActive reports whether the backend currently has an active
// agent run for the project.
func (c *Client) IsAgentActive(project string) (bool, error) {
	var result struct {
		IsActive bool `json:"is_active"`
	}
	req := map[string]string{"project_name": project}
	if err := c.postJSON("is agent active", "/api/is-agent-active", req, &result); err != nil {
		return false, err
	}
	return result.IsActive, nil
}

// TokenUsage returns the latest server-side token usage for a project.
func (c *Client) TokenUsage(project string) (int, error) {
	var result struct {
		TokenUsage int `json:"token_usage"`
	}
	path := "/api/token-usage?project_name=" + url.QueryEscape(project)
	if err := c.getJSON("token usage", path, &result); err != nil {
		return 0, err
	}
	return result.TokenUsage, nil
}

// CalculateTokens asks the backend to count tokens in a prompt.
func (c *Client) CalculateTokens(prompt string) (int, error) {
	var result struct {
		TokenUsage int `json:"token_usage"`
	}
	req := map[string]string{"prompt": prompt}
	if err := c.postJSON("calculate tokens", "/api/calculate-tokens", req, &result); err != nil {
		return 0, err
	}
	return result.TokenUsage, nil
}

// FetchSettings returns the backend settings document.
func (c *Client) FetchSettings() (map[string]any, error) {
	var result struct {
		Settings map[string]any `json:"settings"`
	}
	if err := c.getJSON("fetch settings", "/api/settings", &result); err != nil {
		return nil, err
	}
	return result.Settings, nil
}

// SaveSettings updates the backend settings document.
func (c *Client) SaveSettings(settings map[string]any) error {
	return c.postJSON("save settings", "/api/settings", settings, nil)
}

// FetchLogs returns the backend's log file contents.
func (c *Client) FetchLogs() (string, error) {
	var result struct {
		Logs string `json:"logs"`
	}
	if err := c.getJSON("fetch logs", "/api/logs", &result); err != nil {
		return "", err
	}
	return result.Logs, nil
}

// BrowserSession returns the raw browser session state for a project,
// or nil when no agent state exists.
func (c *Client) BrowserSession(project string) (json.RawMessage, error) {
	var result struct {
		Session json.RawMessage `json:"session"`
	}
	path := "/api/get-browser-session?project_name=" + url.QueryEscape(project)
	if err := c.getJSON("browser session", path, &result); err != nil {
		return nil, err
	}
	return result.Session, nil
}

// TerminalSession returns the raw terminal session state for a project,
// or nil when no agent state exists.
func (c *Client) TerminalSession(project string) (json.RawMessage, error) {
	var result struct {
		TerminalState json.RawMessage `json:"terminal_state"`
	}
	path := "/api/get-terminal-session?project_name=" + url.QueryEscape(project)
	if err := c.getJSON("terminal session", path, &result); err != nil {
		return nil, err
	}
	return result.TerminalState, nil
}

// RunCode asks the backend to execute code inside a project.
func (c *Client) RunCode(project, code string) error {
	req := map[string]string{"project_name": project, "code": code}
	return c.postJSON("run code", "/api/run-code", req, nil)
}

// Status probes backend liveness. Transport errors mean "unreachable"
// and are never re-raised.
func (c *Client) Status() bool {
	resp, err := c.httpClient.Get(c.apiURL("/api/status"))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// --- Project API ---

// CreateProject creates a new project on the backend.
func (c *Client) CreateProject(name string) error {
	req := map[string]string{"project_name": name}
	return c.postJSON("create project", "/api/create-project", req, nil)
}

// DeleteProject deletes a project and its agent state.
func (c *Client) DeleteProject(name string) error {
	req := map[string]string{"project_name": name}
	return c.postJSON("delete project", "/api/delete-project", req, nil)
}

// ProjectFile is one file inside a project tree.
type ProjectFile struct {
	File string `json:"file"`
	Code string `json:"code"`
}

// FetchProjectFiles returns the file listing for a project.
func (c *Client) FetchProjectFiles(project string) ([]ProjectFile, error) {
	var result struct {
		Files []ProjectFile `json:"files"`
	}
	path := "/api/get-project-files?project_name=" + url.QueryEscape(project)
	if err := c.getJSON("project files", path, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}
