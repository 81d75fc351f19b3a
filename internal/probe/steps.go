package probe

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Known fallback position of the profile icon in the left sidebar, observed
// when class-based discovery fails.
var profileIconFallback = [2]float64{49, 375}

const codeRequest = "Create a function that returns the current time"

// Phrases the login trigger is matched against.
var loginPhrases = []string{"sign in", "login", "log in", "profile", "account"}

func stepNavigate(ctx context.Context, r *Runner) (*Result, error) {
	sessionID, err := r.client.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	r.sessionID = sessionID

	pageID, err := r.client.NewPage(ctx, sessionID, r.cfg.TargetURL)
	if err != nil {
		return nil, err
	}
	r.pageID = pageID

	if err := r.client.Wait(ctx, pageID, r.cfg.Waits.Long); err != nil {
		return nil, err
	}
	if err := r.saveState(); err != nil {
		return nil, err
	}

	info, err := r.client.Info(ctx, pageID)
	if err != nil {
		return nil, err
	}
	shot, err := r.screenshot(ctx, 1, "navigate")
	if err != nil {
		return nil, err
	}
	return &Result{
		OK:       true,
		Evidence: []string{shot},
		Notes:    fmt.Sprintf("loaded %s (%s)", info.URL, info.Title),
	}, nil
}

func stepOpenLogin(ctx context.Context, r *Runner) (*Result, error) {
	var candidates []Candidate
	if err := r.eval(ctx, clickablesJS, &candidates); err != nil {
		return nil, err
	}

	var notes string
	if c, score, ok := bestCandidate(candidates, loginPhrases); ok {
		r.logger.Debug("Login trigger matched",
			zap.String("text", c.Text), zap.Float64("score", score))
		if err := r.client.ClickAt(ctx, r.pageID, c.X, c.Y); err != nil {
			return nil, err
		}
		notes = fmt.Sprintf("clicked %q (score %.2f)", firstNonEmpty(c.Text, c.Aria), score)
	} else {
		// Nothing matched; fall back to the documented icon position.
		if err := r.client.ClickAt(ctx, r.pageID, profileIconFallback[0], profileIconFallback[1]); err != nil {
			return nil, err
		}
		notes = fmt.Sprintf("no matching trigger, clicked fallback position (%.0f, %.0f)",
			profileIconFallback[0], profileIconFallback[1])
	}

	if err := r.client.Wait(ctx, r.pageID, r.cfg.Waits.Long); err != nil {
		return nil, err
	}
	shot, err := r.screenshot(ctx, 2, "open-login")
	if err != nil {
		return nil, err
	}
	return &Result{OK: true, Evidence: []string{shot}, Notes: notes}, nil
}

type loginFrameInfo struct {
	Found       bool   `json:"found"`
	Index       int    `json:"index"`
	Src         string `json:"src"`
	CrossOrigin bool   `json:"crossOrigin"`
	InputCount  int    `json:"inputCount"`
	FormCount   int    `json:"formCount"`
	IframeCount int    `json:"iframeCount"`
}

func stepFindLoginFrame(ctx context.Context, r *Runner) (*Result, error) {
	var info loginFrameInfo
	if err := r.eval(ctx, findLoginFrameJS, &info); err != nil {
		return nil, err
	}
	shot, err := r.screenshot(ctx, 3, "find-login-frame")
	if err != nil {
		return nil, err
	}

	if !info.Found {
		return &Result{
			OK:       false,
			Evidence: []string{shot},
			Notes:    fmt.Sprintf("no login iframe among %d iframes", info.IframeCount),
		}, nil
	}
	if info.CrossOrigin {
		return &Result{
			OK:       false,
			Evidence: []string{shot},
			Notes:    fmt.Sprintf("login iframe %d (%s) is cross-origin, cannot fill it", info.Index, info.Src),
		}, nil
	}

	r.loginFrame = info.Index
	return &Result{
		OK:       true,
		Evidence: []string{shot},
		Notes: fmt.Sprintf("iframe %d: %d inputs, %d forms (%s)",
			info.Index, info.InputCount, info.FormCount, info.Src),
	}, nil
}

// ensureLoginFrame re-discovers the login iframe when the index was not set
// in this invocation.
func (r *Runner) ensureLoginFrame(ctx context.Context) error {
	if r.loginFrame >= 0 {
		return nil
	}
	var info loginFrameInfo
	if err := r.eval(ctx, findLoginFrameJS, &info); err != nil {
		return err
	}
	if !info.Found || info.CrossOrigin {
		return fmt.Errorf("login iframe is not accessible")
	}
	r.loginFrame = info.Index
	return nil
}

type scriptOutcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// discoverLoginSelectors pulls the login iframe's HTML and derives field
// selectors from its form. Empty selectors mean discovery failed and the
// fill script should fall back to input order.
func (r *Runner) discoverLoginSelectors(ctx context.Context) (userSel, passSel string) {
	var out struct {
		scriptOutcome
		HTML string `json:"html"`
	}
	if err := r.eval(ctx, renderCall(frameHTMLTemplate, r.loginFrame), &out); err != nil || !out.Success {
		r.logger.Debug("could not read login frame html", zap.Error(err), zap.String("reason", out.Reason))
		return "", ""
	}
	form, err := DiscoverLoginForm(out.HTML)
	if err != nil {
		r.logger.Debug("login form discovery failed", zap.Error(err))
		return "", ""
	}
	r.logger.Debug("login form discovered",
		zap.String("username_selector", form.UsernameSelector),
		zap.String("password_selector", form.PasswordSelector),
		zap.Int("inputs", form.InputCount))
	return form.UsernameSelector, form.PasswordSelector
}

func stepFillLogin(ctx context.Context, r *Runner) (*Result, error) {
	if err := r.ensureLoginFrame(ctx); err != nil {
		return nil, err
	}

	// Inspect the frame's form to target the real fields; positional fill
	// inside the script covers frames the parser cannot make sense of.
	userSel, passSel := r.discoverLoginSelectors(ctx)

	var out scriptOutcome
	script := renderCall(fillLoginTemplate, r.loginFrame, r.cfg.Username, r.cfg.Password, userSel, passSel)
	if err := r.eval(ctx, script, &out); err != nil {
		return nil, err
	}
	if err := r.client.Wait(ctx, r.pageID, r.cfg.Waits.Short); err != nil {
		return nil, err
	}
	shot, err := r.screenshot(ctx, 4, "fill-login")
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return &Result{OK: false, Evidence: []string{shot}, Notes: out.Reason}, nil
	}
	return &Result{OK: true, Evidence: []string{shot}, Notes: "credentials entered"}, nil
}

func stepSubmitLogin(ctx context.Context, r *Runner) (*Result, error) {
	if err := r.ensureLoginFrame(ctx); err != nil {
		return nil, err
	}

	var out struct {
		scriptOutcome
		Text string `json:"text"`
	}
	if err := r.eval(ctx, renderCall(submitLoginTemplate, r.loginFrame), &out); err != nil {
		return nil, err
	}
	if err := r.client.Wait(ctx, r.pageID, r.cfg.Waits.Extra); err != nil {
		return nil, err
	}
	shot, err := r.screenshot(ctx, 5, "submit-login")
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return &Result{OK: false, Evidence: []string{shot}, Notes: out.Reason}, nil
	}
	return &Result{OK: true, Evidence: []string{shot}, Notes: fmt.Sprintf("submitted via %q", out.Text)}, nil
}

type closeButtonInfo struct {
	Found        bool    `json:"found"`
	InIframe     bool    `json:"inIframe"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Text         string  `json:"text"`
	ModalPresent bool    `json:"modalPresent"`
}

type modalState struct {
	Present bool `json:"present"`
}

func stepCloseModal(ctx context.Context, r *Runner) (*Result, error) {
	var modal modalState
	if err := r.eval(ctx, modalPresentJS, &modal); err != nil {
		return nil, err
	}
	if !modal.Present {
		return &Result{OK: true, Notes: "no modal to close"}, nil
	}

	var btn closeButtonInfo
	if err := r.eval(ctx, findCloseButtonJS, &btn); err != nil {
		return nil, err
	}

	var evidence []string
	var notes string
	switch {
	case btn.Found:
		if err := r.client.ClickAt(ctx, r.pageID, btn.X, btn.Y); err != nil {
			return nil, err
		}
		notes = fmt.Sprintf("clicked %q at (%.0f, %.0f)", btn.Text, btn.X, btn.Y)

	case r.finder != nil:
		// DOM heuristics came up empty; ask the vision model for the X.
		target, err := r.findWithVision(ctx, "the close (X) button of the modal dialog")
		if err != nil {
			return nil, err
		}
		if err := r.client.ClickAt(ctx, r.pageID, target[0], target[1]); err != nil {
			return nil, err
		}
		notes = fmt.Sprintf("vision fallback clicked (%.0f, %.0f)", target[0], target[1])

	default:
		return &Result{OK: false, Notes: "modal present but no close button found and no vision fallback configured"}, nil
	}

	if err := r.client.Wait(ctx, r.pageID, r.cfg.Waits.Medium); err != nil {
		return nil, err
	}
	shot, err := r.screenshot(ctx, 6, "close-modal")
	if err != nil {
		return nil, err
	}
	evidence = append(evidence, shot)

	if err := r.eval(ctx, modalPresentJS, &modal); err != nil {
		return nil, err
	}
	if modal.Present {
		return &Result{OK: false, Evidence: evidence, Notes: notes + "; modal is still visible"}, nil
	}
	return &Result{OK: true, Evidence: evidence, Notes: notes}, nil
}

// findWithVision screenshots the page, asks the finder for the element and
// converts the box into viewport coordinates.
func (r *Runner) findWithVision(ctx context.Context, description string) ([2]float64, error) {
	data, err := r.client.Screenshot(ctx, r.pageID, false)
	if err != nil {
		return [2]float64{}, err
	}
	info, err := r.client.Info(ctx, r.pageID)
	if err != nil {
		return [2]float64{}, err
	}
	box, err := r.finder.FindElement(ctx, data, description)
	if err != nil {
		return [2]float64{}, fmt.Errorf("vision lookup failed: %w", err)
	}
	center := box.Center(int(info.Viewport.Width), int(info.Viewport.Height))
	r.logger.Info("Vision fallback located element",
		zap.String("label", box.Label),
		zap.Int("x", center.X), zap.Int("y", center.Y))
	return [2]float64{float64(center.X), float64(center.Y)}, nil
}

type generateButtonInfo struct {
	Exists  bool    `json:"exists"`
	Enabled bool    `json:"enabled"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Text    string  `json:"text"`
}

type codeOutputInfo struct {
	ElementCount int `json:"elementCount"`
	SampleLength int `json:"sampleLength"`
}

func stepGenerateCode(ctx context.Context, r *Runner) (*Result, error) {
	var fill scriptOutcome
	if err := r.eval(ctx, renderCall(fillPromptTemplate, codeRequest), &fill); err != nil {
		return nil, err
	}
	if !fill.Success {
		return &Result{OK: false, Notes: fill.Reason}, nil
	}
	if err := r.client.Wait(ctx, r.pageID, r.cfg.Waits.Short); err != nil {
		return nil, err
	}

	var btn generateButtonInfo
	if err := r.eval(ctx, findGenerateButtonJS, &btn); err != nil {
		return nil, err
	}
	if !btn.Exists || !btn.Enabled {
		return &Result{OK: false, Notes: fmt.Sprintf("generate button not ready: %+v", btn)}, nil
	}
	if err := r.client.ClickAt(ctx, r.pageID, btn.X, btn.Y); err != nil {
		return nil, err
	}
	if err := r.client.Wait(ctx, r.pageID, r.cfg.Waits.Extra); err != nil {
		return nil, err
	}

	shot, err := r.screenshot(ctx, 7, "generate-code")
	if err != nil {
		return nil, err
	}

	var code codeOutputInfo
	if err := r.eval(ctx, codeOutputJS, &code); err != nil {
		return nil, err
	}
	if code.ElementCount == 0 {
		return &Result{OK: false, Evidence: []string{shot}, Notes: "no code output appeared"}, nil
	}
	return &Result{
		OK:       true,
		Evidence: []string{shot},
		Notes:    fmt.Sprintf("%d code elements, longest %d chars", code.ElementCount, code.SampleLength),
	}, nil
}

type finalState struct {
	HasTextarea bool   `json:"hasTextarea"`
	HasButton   bool   `json:"hasButton"`
	ModalGone   bool   `json:"modalGone"`
	URL         string `json:"url"`
}

func stepCheckState(ctx context.Context, r *Runner) (*Result, error) {
	var state finalState
	if err := r.eval(ctx, checkStateJS, &state); err != nil {
		return nil, err
	}
	shot, err := r.screenshot(ctx, 8, "check-state")
	if err != nil {
		return nil, err
	}

	ok := state.HasTextarea && state.HasButton && state.ModalGone
	return &Result{
		OK:       ok,
		Evidence: []string{shot},
		Notes: fmt.Sprintf("textarea=%t button=%t modalGone=%t url=%s",
			state.HasTextarea, state.HasButton, state.ModalGone, state.URL),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
