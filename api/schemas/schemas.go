// Package schemas defines the shared data contracts between the browser
// server, its clients, and the vision pipeline. Keeping them in one place
// avoids import cycles between internal packages.
package schemas

import (
	"context"
	"time"
)

// SessionInfo describes a live browser session as reported by the server.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	PageIDs   []string  `json:"pages"`
}

// PageInfo is the result of a get_info command against a page.
type PageInfo struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Viewport Viewport `json:"viewport"`
}

// Viewport holds the page dimensions in CSS pixels.
type Viewport struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// CommandRequest is the wire format for POST /pages/{id}/command.
// Args are positional; Params carry named options (timeouts, screenshot
// flags, and so on).
type CommandRequest struct {
	Command string         `json:"command"`
	Args    []any          `json:"args,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// CommandResult is the generic command response envelope. Fields beyond
// Status are populated per command.
type CommandResult struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	// Result holds the JSON-decoded value of an evaluate command.
	Result any       `json:"result,omitempty"`
	Info   *PageInfo `json:"info,omitempty"`
	// Data is the base64 PNG payload when a screenshot command did not
	// specify a server-side path.
	Data  string `json:"data,omitempty"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Command status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ConsoleLog is one captured console message from a page.
type ConsoleLog struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Location  string    `json:"location,omitempty"`
}

// NetworkLog is one captured network event (request, response or failure).
type NetworkLog struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Status    int64     `json:"status,omitempty"`
	Type      string    `json:"type"`
	Failure   string    `json:"failure,omitempty"`
}

// LogQuery filters console log retrieval. Zero values mean "no filter".
type LogQuery struct {
	Types        []string   `json:"types,omitempty"`
	Since        *time.Time `json:"since,omitempty"`
	Until        *time.Time `json:"until,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	TextContains string     `json:"text_contains,omitempty"`
}

// Persona describes the browser identity presented to the target site.
type Persona struct {
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"`
	Locale    string `json:"locale"`
	Timezone  string `json:"timezone"`
	Width     int64  `json:"width"`
	Height    int64  `json:"height"`
}

// DefaultPersona is used when no persona is configured.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Linux x86_64",
	Locale:    "en-US",
	Timezone:  "America/New_York",
	Width:     1920,
	Height:    1080,
}

// PageCommander is the minimal surface a command executor needs from a page.
// The HTTP handlers and the probe runner both program against it so they can
// be tested with fakes.
type PageCommander interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	ClickAt(ctx context.Context, x, y float64) error
	Fill(ctx context.Context, selector, value string) error
	Type(ctx context.Context, selector, text string) error
	Press(ctx context.Context, selector, key string) error
	SelectOption(ctx context.Context, selector, value string) error
	Evaluate(ctx context.Context, expression string, out any) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	WaitDuration(ctx context.Context, d time.Duration) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Info(ctx context.Context) (*PageInfo, error)
	ConsoleLogs(q LogQuery) []ConsoleLog
	NetworkLogs(since *time.Time, limit int) []NetworkLog
}
