package probe

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/client"
	"github.com/xkilldash9x/spyglass/internal/config"
)

type fakeBrowser struct {
	evalFn    func(script string) (any, error)
	clicks    [][2]float64
	navigated []string
	sessions  []string
	connected []string
	scripts   []string
	modalGone atomic.Bool
}

func (f *fakeBrowser) CreateSession(_ context.Context) (string, error) {
	f.sessions = append(f.sessions, "sess0001")
	return "sess0001", nil
}

func (f *fakeBrowser) ConnectSession(_ context.Context, id string) error {
	f.connected = append(f.connected, id)
	return nil
}

func (f *fakeBrowser) NewPage(_ context.Context, _, url string) (string, error) {
	f.navigated = append(f.navigated, url)
	return "page0001", nil
}

func (f *fakeBrowser) Goto(_ context.Context, _, url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeBrowser) ClickAt(_ context.Context, _ string, x, y float64) error {
	f.clicks = append(f.clicks, [2]float64{x, y})
	return nil
}

func (f *fakeBrowser) Evaluate(_ context.Context, _, script string) (any, error) {
	f.scripts = append(f.scripts, script)
	return f.evalFn(script)
}

func (f *fakeBrowser) Wait(_ context.Context, _ string, _ time.Duration) error { return nil }

func (f *fakeBrowser) Screenshot(_ context.Context, _ string, _ bool) ([]byte, error) {
	return []byte("fake-png"), nil
}

func (f *fakeBrowser) Info(_ context.Context, _ string) (*schemas.PageInfo, error) {
	return &schemas.PageInfo{
		URL:      "https://fuzzycode.dev",
		Title:    "FuzzyCode",
		Viewport: schemas.Viewport{Width: 1280, Height: 720},
	}, nil
}

// happyPathEval answers every probe script the way a cooperative page would.
func happyPathEval(f *fakeBrowser) func(script string) (any, error) {
	return func(script string) (any, error) {
		switch {
		case strings.Contains(script, `'button, a, [role="button"]`):
			return []any{
				map[string]any{"text": "Pricing", "role": "a", "visible": true, "x": 10.0, "y": 10.0},
				map[string]any{"text": "Sign In", "role": "button", "visible": true, "x": 49.0, "y": 375.0},
			}, nil
		case strings.Contains(script, "hasUserLoginSrc"):
			return map[string]any{
				"found": true, "index": 1, "crossOrigin": false,
				"inputCount": 2, "formCount": 1, "src": "https://fuzzycode.dev/user_login",
			}, nil
		case strings.Contains(script, "outerHTML"):
			return map[string]any{
				"success": true,
				"html": `<html><body><form>` +
					`<input id="user-email" type="text">` +
					`<input name="password" type="password">` +
					`<button type="submit">Sign In</button>` +
					`</form></body></html>`,
			}, nil
		case strings.Contains(script, "passwordLength"):
			return map[string]any{"success": true, "username": "alice", "passwordLength": 8}, nil
		case strings.Contains(script, "submit button is disabled"):
			return map[string]any{"success": true, "text": "Sign In"}, nil
		case strings.Contains(script, ".modal:not(.fade), .popup-window"):
			return map[string]any{"present": !f.modalGone.Load()}, nil
		case strings.Contains(script, "data-dismiss"):
			// Clicking the close button makes the modal disappear.
			f.modalGone.Store(true)
			return map[string]any{"found": true, "inIframe": false, "x": 980.0, "y": 120.0, "text": "X"}, nil
		case strings.Contains(script, "Enter your request"):
			return map[string]any{"success": true, "length": 47}, nil
		case strings.Contains(script, "Fuzzy Code It") && strings.Contains(script, "getBoundingClientRect"):
			return map[string]any{"exists": true, "enabled": true, "x": 640.0, "y": 500.0, "text": "Fuzzy Code It!"}, nil
		case strings.Contains(script, "sampleLength"):
			return map[string]any{"elementCount": 3, "sampleLength": 220}, nil
		case strings.Contains(script, "hasTextarea"):
			return map[string]any{
				"hasTextarea": true, "hasButton": true, "modalGone": true,
				"url": "https://fuzzycode.dev",
			}, nil
		}
		return nil, nil
	}
}

func newTestRunner(t *testing.T, f *fakeBrowser, finder ElementFinder) *Runner {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig().Probe
	cfg.OutputDir = dir
	cfg.Username = "alice"
	cfg.Password = "hunter42"
	cfg.Waits = config.WaitsConfig{Short: time.Millisecond, Medium: time.Millisecond, Long: time.Millisecond, Extra: time.Millisecond}

	r, err := NewRunner(f, finder, cfg, filepath.Join(dir, "session_info.json"), zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestRunner_FullFlow(t *testing.T) {
	f := &fakeBrowser{}
	f.evalFn = happyPathEval(f)
	r := newTestRunner(t, f, nil)

	outcomes, err := r.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 8)
	for _, o := range outcomes {
		assert.True(t, o.Result.OK, "step %s should pass", o.Name)
	}

	// The login trigger was matched heuristically, not via fallback.
	require.NotEmpty(t, f.clicks)
	assert.Equal(t, [2]float64{49, 375}, f.clicks[0])
	assert.Equal(t, []string{"https://fuzzycode.dev"}, f.navigated)

	// Navigate persisted state for later invocations.
	state, err := client.LoadState(filepath.Join(r.cfg.OutputDir, "session_info.json"))
	require.NoError(t, err)
	assert.Equal(t, "sess0001", state.SessionID)
	assert.Equal(t, "page0001", state.PageID)

	// Screenshots were written per step.
	assert.FileExists(t, filepath.Join(r.cfg.OutputDir, "step01_navigate.png"))
	assert.FileExists(t, filepath.Join(r.cfg.OutputDir, "step08_check-state.png"))
}

func TestRunner_FillLoginUsesDiscoveredSelectors(t *testing.T) {
	f := &fakeBrowser{}
	f.evalFn = happyPathEval(f)
	r := newTestRunner(t, f, nil)

	_, err := r.Run(context.Background(), 1, 4)
	require.NoError(t, err)

	var fillScript string
	for _, s := range f.scripts {
		if strings.Contains(s, "passwordLength") {
			fillScript = s
		}
	}
	require.NotEmpty(t, fillScript, "fill script was not evaluated")
	// The selectors parsed from the iframe's form are passed through.
	assert.Contains(t, fillScript, `"#user-email"`)
	assert.Contains(t, fillScript, `input[name=\"password\"]`)
	assert.Contains(t, fillScript, `"hunter42"`)
}

func TestRunner_FillLoginFallsBackToPositionalFill(t *testing.T) {
	f := &fakeBrowser{}
	base := happyPathEval(f)
	f.evalFn = func(script string) (any, error) {
		// A frame whose HTML cannot be read forces the positional path.
		if strings.Contains(script, "outerHTML") {
			return map[string]any{"success": false, "reason": "cannot access iframe document"}, nil
		}
		return base(script)
	}
	r := newTestRunner(t, f, nil)

	outcomes, err := r.Run(context.Background(), 1, 4)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	assert.True(t, outcomes[3].Result.OK)

	var fillScript string
	for _, s := range f.scripts {
		if strings.Contains(s, "passwordLength") {
			fillScript = s
		}
	}
	require.NotEmpty(t, fillScript)
	// Empty selectors leave the script on input-order fallback.
	assert.Contains(t, fillScript, `"alice", "hunter42", "", ""`)
}

func TestRunner_StopsOnCrossOriginFrame(t *testing.T) {
	f := &fakeBrowser{}
	base := happyPathEval(f)
	f.evalFn = func(script string) (any, error) {
		if strings.Contains(script, "hasUserLoginSrc") {
			return map[string]any{
				"found": true, "index": 0, "crossOrigin": true,
				"src": "https://auth.example.com/login",
			}, nil
		}
		return base(script)
	}
	r := newTestRunner(t, f, nil)

	outcomes, err := r.Run(context.Background(), 1, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find-login-frame")
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[2].Result.OK)
	assert.Contains(t, outcomes[2].Result.Notes, "cross-origin")
}

type fakeFinder struct {
	box schemas.BoundingBox
}

func (f *fakeFinder) FindElement(_ context.Context, _ []byte, _ string) (*schemas.BoundingBox, error) {
	return &f.box, nil
}

func TestRunner_CloseModalVisionFallback(t *testing.T) {
	f := &fakeBrowser{}
	base := happyPathEval(f)
	f.evalFn = func(script string) (any, error) {
		if strings.Contains(script, "data-dismiss") {
			// DOM heuristics find nothing; the vision fallback must kick in.
			f.modalGone.Store(true)
			return map[string]any{"found": false, "modalPresent": true}, nil
		}
		return base(script)
	}
	finder := &fakeFinder{box: schemas.BoundingBox{Box2D: [4]int{100, 900, 160, 960}, Label: "X"}}
	r := newTestRunner(t, f, finder)
	r.sessionID = "sess0001"
	r.pageID = "page0001"

	outcome, err := r.RunNamed(context.Background(), "close-modal")
	require.NoError(t, err)
	assert.True(t, outcome.Result.OK)
	assert.Contains(t, outcome.Result.Notes, "vision fallback")

	// Box center of [100,900,160,960] on a 1280x720 viewport.
	require.NotEmpty(t, f.clicks)
	last := f.clicks[len(f.clicks)-1]
	assert.InDelta(t, 1190, last[0], 1)
	assert.InDelta(t, 93, last[1], 1)
}

func TestRunner_ResumeRequiresState(t *testing.T) {
	f := &fakeBrowser{}
	f.evalFn = happyPathEval(f)
	r := newTestRunner(t, f, nil)

	_, err := r.Run(context.Background(), 3, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navigate step first")
}

func TestRunner_ResumeFromStateFile(t *testing.T) {
	f := &fakeBrowser{}
	f.evalFn = happyPathEval(f)
	f.modalGone.Store(true)
	r := newTestRunner(t, f, nil)

	state := &client.State{SessionID: "sess9999", PageID: "page9999"}
	require.NoError(t, state.Save(filepath.Join(r.cfg.OutputDir, "session_info.json")))

	outcome, err := r.RunNamed(context.Background(), "check-state")
	require.NoError(t, err)
	assert.True(t, outcome.Result.OK)
	assert.Equal(t, []string{"sess9999"}, f.connected)
}

func TestRunner_UnknownStep(t *testing.T) {
	f := &fakeBrowser{}
	f.evalFn = happyPathEval(f)
	r := newTestRunner(t, f, nil)
	r.sessionID = "s"

	_, err := r.RunNamed(context.Background(), "teleport")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}
