// Package probe drives the fuzzycode.dev exploration flow as an ordered set
// of steps: navigate, open the login modal, authenticate inside its iframe,
// dismiss the welcome modal and exercise code generation. Each step records
// a screenshot and a programmatic verdict.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/client"
	"github.com/xkilldash9x/spyglass/internal/config"
	"github.com/xkilldash9x/spyglass/internal/jsexec"
)

// BrowserClient is the remote-browser surface the steps need. *client.Client
// satisfies it; tests use fakes.
type BrowserClient interface {
	CreateSession(ctx context.Context) (string, error)
	ConnectSession(ctx context.Context, sessionID string) error
	NewPage(ctx context.Context, sessionID, url string) (string, error)
	Goto(ctx context.Context, pageID, url string) error
	ClickAt(ctx context.Context, pageID string, x, y float64) error
	Evaluate(ctx context.Context, pageID, expression string) (any, error)
	Wait(ctx context.Context, pageID string, d time.Duration) error
	Screenshot(ctx context.Context, pageID string, fullPage bool) ([]byte, error)
	Info(ctx context.Context, pageID string) (*schemas.PageInfo, error)
}

// ElementFinder locates an element in a screenshot. *vision.Detector
// satisfies it. A nil finder disables the vision fallback.
type ElementFinder interface {
	FindElement(ctx context.Context, imagePNG []byte, description string) (*schemas.BoundingBox, error)
}

// Result is one step's verdict. Evidence points at artifacts (screenshot
// paths) backing it up.
type Result struct {
	OK       bool     `json:"ok"`
	Evidence []string `json:"evidence,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// Step is a named stage of the flow.
type Step struct {
	Name string
	Run  func(ctx context.Context, r *Runner) (*Result, error)
}

// Outcome pairs a step with its result for reporting.
type Outcome struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	Result *Result `json:"result"`
}

// Runner executes the step flow against a remote browser session, carrying
// session and page IDs between steps through the client state file.
type Runner struct {
	client    BrowserClient
	finder    ElementFinder
	cfg       config.ProbeConfig
	logger    *zap.Logger
	stateFile string

	sessionID  string
	pageID     string
	loginFrame int

	steps []Step
}

// NewRunner validates every inline script and assembles the step registry.
func NewRunner(c BrowserClient, finder ElementFinder, cfg config.ProbeConfig, stateFile string, logger *zap.Logger) (*Runner, error) {
	if err := jsexec.CheckAll(staticScripts()); err != nil {
		return nil, fmt.Errorf("inline script validation failed: %w", err)
	}
	r := &Runner{
		client:     c,
		finder:     finder,
		cfg:        cfg,
		logger:     logger.Named("probe"),
		stateFile:  stateFile,
		loginFrame: -1,
	}
	r.steps = []Step{
		{Name: "navigate", Run: stepNavigate},
		{Name: "open-login", Run: stepOpenLogin},
		{Name: "find-login-frame", Run: stepFindLoginFrame},
		{Name: "fill-login", Run: stepFillLogin},
		{Name: "submit-login", Run: stepSubmitLogin},
		{Name: "close-modal", Run: stepCloseModal},
		{Name: "generate-code", Run: stepGenerateCode},
		{Name: "check-state", Run: stepCheckState},
	}
	return r, nil
}

// Steps lists the registered step names in order.
func (r *Runner) Steps() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name
	}
	return names
}

// Run executes steps from..to (1-based, inclusive). Zero values mean the
// whole flow. A step error or failed verdict stops the run.
func (r *Runner) Run(ctx context.Context, from, to int) ([]Outcome, error) {
	if from < 1 {
		from = 1
	}
	if to < 1 || to > len(r.steps) {
		to = len(r.steps)
	}
	if from > to {
		return nil, fmt.Errorf("invalid step range %d-%d", from, to)
	}

	// Anything past navigate needs the session from a previous run.
	if from > 1 {
		if err := r.resume(ctx); err != nil {
			return nil, err
		}
	}

	var outcomes []Outcome
	for i := from; i <= to; i++ {
		step := r.steps[i-1]
		r.logger.Info("Running step", zap.Int("index", i), zap.String("name", step.Name))

		result, err := step.Run(ctx, r)
		if err != nil {
			return outcomes, fmt.Errorf("step %d (%s) failed: %w", i, step.Name, err)
		}
		outcomes = append(outcomes, Outcome{Index: i, Name: step.Name, Result: result})
		r.logger.Info("Step finished",
			zap.Int("index", i),
			zap.String("name", step.Name),
			zap.Bool("ok", result.OK),
			zap.String("notes", result.Notes),
		)
		if !result.OK {
			return outcomes, fmt.Errorf("step %d (%s) did not pass: %s", i, step.Name, result.Notes)
		}
	}
	return outcomes, nil
}

// RunNamed executes a single step by name, resuming session state first
// unless it is the navigate step.
func (r *Runner) RunNamed(ctx context.Context, name string) (*Outcome, error) {
	for i, step := range r.steps {
		if step.Name != name {
			continue
		}
		if i > 0 {
			if err := r.resume(ctx); err != nil {
				return nil, err
			}
		}
		result, err := step.Run(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("step %s failed: %w", name, err)
		}
		return &Outcome{Index: i + 1, Name: name, Result: result}, nil
	}
	return nil, fmt.Errorf("unknown step %q (have %v)", name, r.Steps())
}

// resume loads session/page IDs from the state file and verifies the
// session is still alive.
func (r *Runner) resume(ctx context.Context) error {
	if r.sessionID != "" {
		return nil
	}
	state, err := client.LoadState(r.stateFile)
	if err != nil {
		return fmt.Errorf("no usable session state, run the navigate step first: %w", err)
	}
	if err := r.client.ConnectSession(ctx, state.SessionID); err != nil {
		return err
	}
	r.sessionID = state.SessionID
	r.pageID = state.PageID
	return nil
}

// saveState persists the session/page IDs for the next invocation.
func (r *Runner) saveState() error {
	state := &client.State{SessionID: r.sessionID, PageID: r.pageID}
	return state.Save(r.stateFile)
}

// eval runs a script on the current page and decodes the JSON result into
// out.
func (r *Runner) eval(ctx context.Context, script string, out any) error {
	raw, err := r.client.Evaluate(ctx, r.pageID, script)
	if err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("script result is not encodable: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unexpected script result shape: %w", err)
	}
	return nil
}

// screenshot captures the page into OutputDir as stepNN_<name>.png and
// returns the path.
func (r *Runner) screenshot(ctx context.Context, index int, name string) (string, error) {
	data, err := r.client.Screenshot(ctx, r.pageID, false)
	if err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("step%02d_%s.png", index, name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}
