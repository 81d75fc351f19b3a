package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/config"
)

type fakePage struct {
	id        string
	sessionID string

	navigated []string
	clicked   []string
	clickedAt [][2]float64
	filled    map[string]string
	evalOut   any
	evalErr   error
	shot      []byte
	console   []schemas.ConsoleLog
	pageErrs  []schemas.ConsoleLog
	network   []schemas.NetworkLog
}

func newFakePage(id, sessionID string) *fakePage {
	return &fakePage{id: id, sessionID: sessionID, filled: map[string]string{}, shot: []byte("png-bytes")}
}

func (f *fakePage) ID() string        { return f.id }
func (f *fakePage) SessionID() string { return f.sessionID }

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}
func (f *fakePage) Click(_ context.Context, selector string) error {
	f.clicked = append(f.clicked, selector)
	return nil
}
func (f *fakePage) ClickAt(_ context.Context, x, y float64) error {
	f.clickedAt = append(f.clickedAt, [2]float64{x, y})
	return nil
}
func (f *fakePage) Fill(_ context.Context, selector, value string) error {
	f.filled[selector] = value
	return nil
}
func (f *fakePage) Type(_ context.Context, selector, text string) error {
	f.filled[selector] = text
	return nil
}
func (f *fakePage) Press(_ context.Context, _, _ string) error         { return nil }
func (f *fakePage) SelectOption(_ context.Context, _, _ string) error  { return nil }
func (f *fakePage) WaitDuration(_ context.Context, _ time.Duration) error { return nil }
func (f *fakePage) WaitForSelector(_ context.Context, _ string, _ time.Duration) error {
	return nil
}
func (f *fakePage) Evaluate(_ context.Context, _ string, out any) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	if ptr, ok := out.(*any); ok {
		*ptr = f.evalOut
	}
	return nil
}
func (f *fakePage) Screenshot(_ context.Context, _ bool) ([]byte, error) { return f.shot, nil }
func (f *fakePage) Info(_ context.Context) (*schemas.PageInfo, error) {
	return &schemas.PageInfo{URL: "https://example.com", Title: "Example"}, nil
}
func (f *fakePage) ConsoleLogs(q schemas.LogQuery) []schemas.ConsoleLog {
	if len(q.Types) > 0 {
		var out []schemas.ConsoleLog
		for _, l := range f.console {
			for _, t := range q.Types {
				if l.Type == t {
					out = append(out, l)
				}
			}
		}
		return out
	}
	return f.console
}
func (f *fakePage) PageErrors(_ schemas.LogQuery) []schemas.ConsoleLog { return f.pageErrs }
func (f *fakePage) NetworkLogs(_ *time.Time, _ int) []schemas.NetworkLog {
	return f.network
}
func (f *fakePage) Close(_ context.Context) error { return nil }

type fakeBackend struct {
	sessions map[string]schemas.SessionInfo
	pages    map[string]*fakePage
	nextID   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: map[string]schemas.SessionInfo{},
		pages:    map[string]*fakePage{},
	}
}

func (b *fakeBackend) CreateSession(_ context.Context) (schemas.SessionInfo, error) {
	b.nextID++
	id := "sess000" + string(rune('0'+b.nextID))
	info := schemas.SessionInfo{SessionID: id, CreatedAt: time.Now()}
	b.sessions[id] = info
	return info, nil
}

func (b *fakeBackend) ListSessions() []schemas.SessionInfo {
	out := make([]schemas.SessionInfo, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out
}

func (b *fakeBackend) SessionExists(id string) bool {
	_, ok := b.sessions[id]
	return ok
}

func (b *fakeBackend) CloseSession(_ context.Context, id string) error {
	delete(b.sessions, id)
	return nil
}

func (b *fakeBackend) CreatePage(_ context.Context, sessionID, url string) (string, error) {
	if _, ok := b.sessions[sessionID]; !ok {
		return "", ErrNotFound
	}
	b.nextID++
	id := "page000" + string(rune('0'+b.nextID))
	p := newFakePage(id, sessionID)
	if url != "" {
		p.navigated = append(p.navigated, url)
	}
	b.pages[id] = p
	return id, nil
}

func (b *fakeBackend) LookupPage(pageID string) (PageHandle, bool) {
	p, ok := b.pages[pageID]
	if !ok {
		return nil, false
	}
	return p, true
}

func (b *fakeBackend) Counts() (int, int) { return len(b.sessions), len(b.pages) }

func newTestServer(t *testing.T, backend Backend, authToken string) *httptest.Server {
	t.Helper()
	cfg := config.NewDefaultConfig().Server
	cfg.AuthToken = authToken
	cfg.ScreenshotDir = t.TempDir()
	srv := newWithBackend(cfg, zap.NewNop(), backend, "test")
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	backend := newFakeBackend()
	ts := newTestServer(t, backend, "")

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestSessionLifecycle(t *testing.T) {
	backend := newFakeBackend()
	ts := newTestServer(t, backend, "")

	resp := postJSON(t, ts.URL+"/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)

	resp, err := http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+sessionID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "closed", body["status"])

	// The session is gone now.
	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+sessionID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSession_BrowserType(t *testing.T) {
	backend := newFakeBackend()
	ts := newTestServer(t, backend, "")

	resp := postJSON(t, ts.URL+"/sessions", map[string]string{"browser_type": "chromium"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/sessions", map[string]string{"browser_type": "firefox"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "firefox")
}

func TestCreatePage_UnknownSession(t *testing.T) {
	backend := newFakeBackend()
	ts := newTestServer(t, backend, "")

	resp := postJSON(t, ts.URL+"/sessions/nope/pages", map[string]string{"url": "https://example.com"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommandDispatch(t *testing.T) {
	backend := newFakeBackend()
	info, err := backend.CreateSession(context.Background())
	require.NoError(t, err)
	pageID, err := backend.CreatePage(context.Background(), info.SessionID, "")
	require.NoError(t, err)
	page := backend.pages[pageID]
	ts := newTestServer(t, backend, "")

	cmdURL := ts.URL + "/pages/" + pageID + "/command"

	resp := postJSON(t, cmdURL, schemas.CommandRequest{Command: "goto", Args: []any{"https://example.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, schemas.StatusSuccess, body["status"])
	assert.Equal(t, []string{"https://example.com"}, page.navigated)

	resp = postJSON(t, cmdURL, schemas.CommandRequest{Command: "click", Args: []any{"#login"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, []string{"#login"}, page.clicked)

	resp = postJSON(t, cmdURL, schemas.CommandRequest{Command: "click_at", Args: []any{640.0, 360.0}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Len(t, page.clickedAt, 1)
	assert.Equal(t, [2]float64{640, 360}, page.clickedAt[0])

	resp = postJSON(t, cmdURL, schemas.CommandRequest{Command: "fill", Args: []any{"#user", "alice"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "alice", page.filled["#user"])
}

func TestCommandDispatch_EvaluateReturnsResult(t *testing.T) {
	backend := newFakeBackend()
	info, _ := backend.CreateSession(context.Background())
	pageID, _ := backend.CreatePage(context.Background(), info.SessionID, "")
	backend.pages[pageID].evalOut = map[string]any{"title": "Example"}
	ts := newTestServer(t, backend, "")

	resp := postJSON(t, ts.URL+"/pages/"+pageID+"/command",
		schemas.CommandRequest{Command: "evaluate", Args: []any{"document.title"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Example", result["title"])
}

func TestCommandDispatch_BadRequests(t *testing.T) {
	backend := newFakeBackend()
	info, _ := backend.CreateSession(context.Background())
	pageID, _ := backend.CreatePage(context.Background(), info.SessionID, "")
	ts := newTestServer(t, backend, "")
	cmdURL := ts.URL + "/pages/" + pageID + "/command"

	resp := postJSON(t, cmdURL, schemas.CommandRequest{Command: "teleport"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, cmdURL, schemas.CommandRequest{Command: "click"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/pages/ghost/command", schemas.CommandRequest{Command: "click", Args: []any{"#x"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommandDispatch_ScreenshotBase64(t *testing.T) {
	backend := newFakeBackend()
	info, _ := backend.CreateSession(context.Background())
	pageID, _ := backend.CreatePage(context.Background(), info.SessionID, "")
	ts := newTestServer(t, backend, "")

	resp := postJSON(t, ts.URL+"/pages/"+pageID+"/command", schemas.CommandRequest{Command: "screenshot"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	data, ok := body["data"].(string)
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), decoded)
}

func TestScreenshotEndpoint(t *testing.T) {
	backend := newFakeBackend()
	info, _ := backend.CreateSession(context.Background())
	pageID, _ := backend.CreatePage(context.Background(), info.SessionID, "")
	ts := newTestServer(t, backend, "")

	resp, err := http.Get(ts.URL + "/get_screenshot/" + info.SessionID + "/" + pageID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	// Page exists but under a different session.
	resp, err = http.Get(ts.URL + "/get_screenshot/wrong/" + pageID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorLogsMergeConsoleAndExceptions(t *testing.T) {
	backend := newFakeBackend()
	info, _ := backend.CreateSession(context.Background())
	pageID, _ := backend.CreatePage(context.Background(), info.SessionID, "")
	page := backend.pages[pageID]
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	page.console = []schemas.ConsoleLog{
		{Timestamp: base, Type: "log", Text: "fine"},
		{Timestamp: base.Add(time.Second), Type: "error", Text: "console error"},
	}
	page.pageErrs = []schemas.ConsoleLog{
		{Timestamp: base.Add(2 * time.Second), Type: "pageerror", Text: "uncaught TypeError"},
	}
	ts := newTestServer(t, backend, "")

	resp, err := http.Get(ts.URL + "/pages/" + pageID + "/errors")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["count"])
}

func TestBearerAuth(t *testing.T) {
	backend := newFakeBackend()
	ts := newTestServer(t, backend, "sekrit")

	// Health stays open.
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// No token.
	resp = postJSON(t, ts.URL+"/sessions", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct token.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/sessions", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
