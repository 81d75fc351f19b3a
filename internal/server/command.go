package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

// Default wait applied to wait_for_selector when the client omits one.
const defaultSelectorTimeout = 30 * time.Second

// execute dispatches a generic page command and maps the outcome to an HTTP
// status: 400 for malformed or unknown commands, 500 for execution failures.
func (s *Server) execute(ctx context.Context, p PageHandle, req schemas.CommandRequest) (schemas.CommandResult, int) {
	result, err := s.runCommand(ctx, p, req)
	if err != nil {
		if badReq, ok := err.(*badRequestError); ok {
			return schemas.CommandResult{Status: schemas.StatusError, Error: badReq.Error()}, http.StatusBadRequest
		}
		s.logger.Warn("Command failed",
			zap.String("page_id", p.ID()),
			zap.String("command", req.Command),
			zap.Error(err),
		)
		return schemas.CommandResult{Status: schemas.StatusError, Error: err.Error()}, http.StatusInternalServerError
	}
	result.Status = schemas.StatusSuccess
	return result, http.StatusOK
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func (s *Server) runCommand(ctx context.Context, p PageHandle, req schemas.CommandRequest) (schemas.CommandResult, error) {
	var result schemas.CommandResult

	switch req.Command {
	case "goto", "navigate":
		url, err := argString(req.Args, 0, "url")
		if err != nil {
			return result, err
		}
		if err := p.Navigate(ctx, url); err != nil {
			return result, err
		}
		result.URL = url

	case "click":
		selector, err := argString(req.Args, 0, "selector")
		if err != nil {
			return result, err
		}
		return result, p.Click(ctx, selector)

	case "click_at":
		x, err := argFloat(req.Args, 0, "x")
		if err != nil {
			return result, err
		}
		y, err := argFloat(req.Args, 1, "y")
		if err != nil {
			return result, err
		}
		return result, p.ClickAt(ctx, x, y)

	case "fill":
		selector, err := argString(req.Args, 0, "selector")
		if err != nil {
			return result, err
		}
		value, err := argString(req.Args, 1, "value")
		if err != nil {
			return result, err
		}
		return result, p.Fill(ctx, selector, value)

	case "type":
		selector, err := argString(req.Args, 0, "selector")
		if err != nil {
			return result, err
		}
		text, err := argString(req.Args, 1, "text")
		if err != nil {
			return result, err
		}
		return result, p.Type(ctx, selector, text)

	case "press":
		selector, err := argString(req.Args, 0, "selector")
		if err != nil {
			return result, err
		}
		key, err := argString(req.Args, 1, "key")
		if err != nil {
			return result, err
		}
		return result, p.Press(ctx, selector, key)

	case "select_option":
		selector, err := argString(req.Args, 0, "selector")
		if err != nil {
			return result, err
		}
		value, err := argString(req.Args, 1, "value")
		if err != nil {
			return result, err
		}
		return result, p.SelectOption(ctx, selector, value)

	case "evaluate":
		expression, err := argString(req.Args, 0, "expression")
		if err != nil {
			return result, err
		}
		var out any
		if err := p.Evaluate(ctx, expression, &out); err != nil {
			return result, err
		}
		result.Result = out

	case "wait":
		seconds, err := argFloat(req.Args, 0, "seconds")
		if err != nil {
			return result, err
		}
		return result, p.WaitDuration(ctx, time.Duration(seconds*float64(time.Second)))

	case "wait_for_selector":
		selector, err := argString(req.Args, 0, "selector")
		if err != nil {
			return result, err
		}
		timeout := defaultSelectorTimeout
		if ms, ok := paramFloat(req.Params, "timeout_ms"); ok {
			timeout = time.Duration(ms) * time.Millisecond
		}
		return result, p.WaitForSelector(ctx, selector, timeout)

	case "screenshot":
		return s.screenshotCommand(ctx, p, req.Params)

	case "get_info":
		info, err := p.Info(ctx)
		if err != nil {
			return result, err
		}
		result.Info = info
		result.URL = info.URL

	default:
		return result, badRequest("unknown command: %s", req.Command)
	}
	return result, nil
}

// screenshotCommand captures the page. With a "path" param the PNG is stored
// under the configured screenshot directory and the relative path is
// returned; otherwise the bytes come back base64-encoded.
func (s *Server) screenshotCommand(ctx context.Context, p PageHandle, params map[string]any) (schemas.CommandResult, error) {
	var result schemas.CommandResult

	fullPage, _ := paramBool(params, "full_page")
	data, err := p.Screenshot(ctx, fullPage)
	if err != nil {
		return result, err
	}

	path, hasPath := paramString(params, "path")
	if !hasPath || path == "" {
		result.Data = base64.StdEncoding.EncodeToString(data)
		return result, nil
	}

	// Confine server-side saves to the screenshot directory.
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == string(filepath.Separator) {
		return result, badRequest("invalid screenshot path: %s", path)
	}
	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		return result, fmt.Errorf("failed to prepare screenshot dir: %w", err)
	}
	full := filepath.Join(s.cfg.ScreenshotDir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return result, fmt.Errorf("failed to write screenshot: %w", err)
	}
	result.Path = full
	return result, nil
}

func argString(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", badRequest("missing argument %q at position %d", name, i)
	}
	v, ok := args[i].(string)
	if !ok {
		return "", badRequest("argument %q must be a string", name)
	}
	return v, nil
}

func argFloat(args []any, i int, name string) (float64, error) {
	if i >= len(args) {
		return 0, badRequest("missing argument %q at position %d", name, i)
	}
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, badRequest("argument %q must be a number", name)
	}
}

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok
}

func paramBool(params map[string]any, key string) (bool, bool) {
	v, ok := params[key].(bool)
	return v, ok
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
