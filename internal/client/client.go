// Package client is the Go client for the browser server. Probe steps and
// the CLI use it instead of talking HTTP by hand.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/config"
)

// Client talks to one browser server instance.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New builds a client from configuration. Idempotent GETs retry on
// transport errors and 5xx responses; command POSTs do not.
func New(cfg config.ClientConfig, logger *zap.Logger) *Client {
	rc := resty.New().
		SetBaseURL(cfg.ServerURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.AuthToken != "" {
		rc.SetAuthToken(cfg.AuthToken)
	}
	return &Client{
		http:   rc,
		logger: logger.Named("client"),
	}
}

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// apiError turns a non-2xx response into a descriptive error.
func apiError(resp *resty.Response) error {
	var body errorBody
	msg := resp.Status()
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode(), msg)
}

// Health checks the server is up and returns its session/page counts.
func (c *Client) Health(ctx context.Context) (sessions, pages int, err error) {
	var out struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Pages    int    `json:"pages"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/")
	if err != nil {
		return 0, 0, fmt.Errorf("health check failed: %w", err)
	}
	if resp.IsError() {
		return 0, 0, apiError(resp)
	}
	return out.Sessions, out.Pages, nil
}

// CreateSession opens a new browser session and returns its ID.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Post("/sessions")
	if err != nil {
		return "", fmt.Errorf("session creation failed: %w", err)
	}
	if resp.IsError() {
		return "", apiError(resp)
	}
	c.logger.Info("Session created", zap.String("session_id", out.SessionID))
	return out.SessionID, nil
}

// ListSessions returns the server's live sessions.
func (c *Client) ListSessions(ctx context.Context) ([]schemas.SessionInfo, error) {
	var out struct {
		Sessions []schemas.SessionInfo `json:"sessions"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/sessions")
	if err != nil {
		return nil, fmt.Errorf("session listing failed: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out.Sessions, nil
}

// ConnectSession verifies a previously created session still exists.
func (c *Client) ConnectSession(ctx context.Context, sessionID string) error {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.SessionID == sessionID {
			return nil
		}
	}
	return fmt.Errorf("session %s no longer exists on the server", sessionID)
}

// CloseSession tears down a session and all of its pages.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/sessions/" + sessionID)
	if err != nil {
		return fmt.Errorf("session close failed: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// NewPage opens a page in the session, optionally navigating it, and returns
// the page ID.
func (c *Client) NewPage(ctx context.Context, sessionID, url string) (string, error) {
	var out struct {
		PageID  string `json:"page_id"`
		Warning string `json:"warning"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"url": url}).
		SetResult(&out).
		Post("/sessions/" + sessionID + "/pages")
	if err != nil {
		return "", fmt.Errorf("page creation failed: %w", err)
	}
	if resp.IsError() {
		return "", apiError(resp)
	}
	if out.Warning != "" {
		c.logger.Warn("Page created with warning", zap.String("warning", out.Warning))
	}
	return out.PageID, nil
}

// Command sends a raw command to a page. The typed helpers below cover the
// common cases.
func (c *Client) Command(ctx context.Context, pageID string, req schemas.CommandRequest) (*schemas.CommandResult, error) {
	var result schemas.CommandResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post("/pages/" + pageID + "/command")
	if err != nil {
		return nil, fmt.Errorf("command %s failed: %w", req.Command, err)
	}
	if resp.IsError() {
		if result.Error != "" {
			return nil, fmt.Errorf("command %s failed: %s", req.Command, result.Error)
		}
		return nil, apiError(resp)
	}
	return &result, nil
}

func (c *Client) Goto(ctx context.Context, pageID, url string) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "goto", Args: []any{url}})
	return err
}

func (c *Client) Click(ctx context.Context, pageID, selector string) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "click", Args: []any{selector}})
	return err
}

func (c *Client) ClickAt(ctx context.Context, pageID string, x, y float64) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "click_at", Args: []any{x, y}})
	return err
}

func (c *Client) Fill(ctx context.Context, pageID, selector, value string) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "fill", Args: []any{selector, value}})
	return err
}

func (c *Client) Type(ctx context.Context, pageID, selector, text string) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "type", Args: []any{selector, text}})
	return err
}

func (c *Client) Press(ctx context.Context, pageID, selector, key string) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "press", Args: []any{selector, key}})
	return err
}

func (c *Client) SelectOption(ctx context.Context, pageID, selector, value string) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "select_option", Args: []any{selector, value}})
	return err
}

// Evaluate runs a JavaScript expression on the page and returns its
// JSON-decoded result.
func (c *Client) Evaluate(ctx context.Context, pageID, expression string) (any, error) {
	result, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "evaluate", Args: []any{expression}})
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// Wait sleeps server-side for the given duration.
func (c *Client) Wait(ctx context.Context, pageID string, d time.Duration) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{
		Command: "wait",
		Args:    []any{d.Seconds()},
	})
	return err
}

func (c *Client) WaitForSelector(ctx context.Context, pageID, selector string, timeout time.Duration) error {
	_, err := c.Command(ctx, pageID, schemas.CommandRequest{
		Command: "wait_for_selector",
		Args:    []any{selector},
		Params:  map[string]any{"timeout_ms": timeout.Milliseconds()},
	})
	return err
}

// Screenshot captures the page and returns the PNG bytes.
func (c *Client) Screenshot(ctx context.Context, pageID string, fullPage bool) ([]byte, error) {
	result, err := c.Command(ctx, pageID, schemas.CommandRequest{
		Command: "screenshot",
		Params:  map[string]any{"full_page": fullPage},
	})
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return nil, fmt.Errorf("screenshot payload is not valid base64: %w", err)
	}
	return data, nil
}

// ScreenshotToFile captures the page and writes the PNG to a local path.
func (c *Client) ScreenshotToFile(ctx context.Context, pageID, path string, fullPage bool) error {
	data, err := c.Screenshot(ctx, pageID, fullPage)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot to %s: %w", path, err)
	}
	c.logger.Debug("Screenshot saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Info returns the page's URL, title and viewport.
func (c *Client) Info(ctx context.Context, pageID string) (*schemas.PageInfo, error) {
	result, err := c.Command(ctx, pageID, schemas.CommandRequest{Command: "get_info"})
	if err != nil {
		return nil, err
	}
	if result.Info == nil {
		return nil, fmt.Errorf("server returned no page info")
	}
	return result.Info, nil
}

type logsResponse struct {
	Logs []schemas.ConsoleLog `json:"logs"`
}

type networkLogsResponse struct {
	Logs []schemas.NetworkLog `json:"logs"`
}

// ConsoleLogs fetches captured console messages matching the query.
func (c *Client) ConsoleLogs(ctx context.Context, pageID string, q schemas.LogQuery) ([]schemas.ConsoleLog, error) {
	return c.consoleLogsFrom(ctx, "/pages/"+pageID+"/console", q)
}

// ErrorLogs fetches uncaught exceptions plus console errors and warnings.
func (c *Client) ErrorLogs(ctx context.Context, pageID string, q schemas.LogQuery) ([]schemas.ConsoleLog, error) {
	return c.consoleLogsFrom(ctx, "/pages/"+pageID+"/errors", q)
}

func (c *Client) consoleLogsFrom(ctx context.Context, path string, q schemas.LogQuery) ([]schemas.ConsoleLog, error) {
	var out logsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(logQueryParams(q)).
		SetResult(&out).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("log retrieval failed: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out.Logs, nil
}

// NetworkLogs fetches captured network events.
func (c *Client) NetworkLogs(ctx context.Context, pageID string, q schemas.LogQuery) ([]schemas.NetworkLog, error) {
	var out networkLogsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(logQueryParams(q)).
		SetResult(&out).
		Get("/pages/" + pageID + "/network")
	if err != nil {
		return nil, fmt.Errorf("network log retrieval failed: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return out.Logs, nil
}

func logQueryParams(q schemas.LogQuery) map[string]string {
	params := map[string]string{}
	if len(q.Types) > 0 {
		joined := q.Types[0]
		for _, t := range q.Types[1:] {
			joined += "," + t
		}
		params["types"] = joined
	}
	if q.Since != nil {
		params["since"] = q.Since.Format(time.RFC3339)
	}
	if q.Until != nil {
		params["until"] = q.Until.Format(time.RFC3339)
	}
	if q.Limit > 0 {
		params["limit"] = fmt.Sprintf("%d", q.Limit)
	}
	if q.TextContains != "" {
		params["contains"] = q.TextContains
	}
	return params
}
