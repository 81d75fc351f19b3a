// Package vision locates UI elements in screenshots with the Gemini vision
// API. Results come back as normalized bounding boxes that convert to pixel
// click targets.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/config"
)

// Model-specific detection prompts. Newer models need less hand-holding but
// a focus instruction keeps them from labeling background chrome.
var systemPrompts = map[string]string{
	"gemini-2.0-flash-exp": `Return bounding boxes for icons, svgs, clickable elements, buttons, etc as an array with labels.
Never return masks. Limit to 25 objects.
If an object is present multiple times, give each object a unique label
according to its distinct characteristics (action, colors, size, position, etc..).
Exclude anything that is grayed out.`,

	"gemini-2.5-flash": `Return bounding boxes as an array with labels.
Never return masks.
If an object is present multiple times, give each object a unique label
according to its distinct characteristics (action, colors, size, position, etc..).

IGNORE ANYTHING NOT IN FOCUS`,
}

const fallbackPromptModel = "gemini-2.5-flash"

// SystemPrompt returns the detection prompt for a model, falling back to the
// 2.5-flash prompt for unknown models.
func SystemPrompt(model string) string {
	if p, ok := systemPrompts[model]; ok {
		return p
	}
	return systemPrompts[fallbackPromptModel]
}

// Detection is the outcome of one detector call.
type Detection struct {
	Boxes       []schemas.BoundingBox
	RawResponse string
}

// Detector calls the Gemini generateContent API with an inline screenshot.
type Detector struct {
	cfg    config.VisionConfig
	http   *resty.Client
	logger *zap.Logger
}

// New builds a detector from configuration.
func New(cfg config.VisionConfig, logger *zap.Logger) *Detector {
	return &Detector{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.Endpoint).
			SetTimeout(cfg.APITimeout),
		logger: logger.Named("vision"),
	}
}

// Request/response shapes for the generateContent endpoint.

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	Temperature    float64 `json:"temperature"`
	CandidateCount int     `json:"candidateCount"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DetectElements sends the PNG to Gemini and parses bounding boxes out of
// the reply. userPrompt narrows the search ("the close button") and may be
// empty.
func (d *Detector) DetectElements(ctx context.Context, imagePNG []byte, userPrompt string) (*Detection, error) {
	if d.cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	prompt := SystemPrompt(d.cfg.Model)
	if userPrompt != "" {
		prompt += "\n\nAdditional context: " + userPrompt
	}

	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(imagePNG),
				}},
			},
		}},
		GenerationConfig: geminiGenConfig{
			Temperature:    d.cfg.Temperature,
			CandidateCount: 1,
		},
	}

	var out geminiResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetQueryParam("key", d.cfg.APIKey).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/" + d.cfg.Model + ":generateContent")
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if out.Error != nil {
		if out.Error.Code == 503 || strings.Contains(out.Error.Message, "overloaded") {
			return nil, fmt.Errorf("gemini api overloaded, retry later")
		}
		return nil, fmt.Errorf("gemini api error (%d): %s", out.Error.Code, out.Error.Message)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gemini returned %d: %s", resp.StatusCode(), resp.Status())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	text := out.Candidates[0].Content.Parts[0].Text
	boxes := ParseBoundingBoxes(text)
	d.logger.Debug("Detection complete",
		zap.String("model", d.cfg.Model),
		zap.Int("boxes", len(boxes)),
	)
	return &Detection{Boxes: boxes, RawResponse: text}, nil
}

// DetectConsistent makes calls independent API calls and returns the first
// detection plus all of them, letting callers compare results across calls.
func (d *Detector) DetectConsistent(ctx context.Context, imagePNG []byte, userPrompt string, calls int) (*Detection, []*Detection, error) {
	if calls < 1 {
		calls = 1
	}
	all := make([]*Detection, 0, calls)
	for i := 0; i < calls; i++ {
		det, err := d.DetectElements(ctx, imagePNG, userPrompt)
		if err != nil {
			return nil, all, fmt.Errorf("call %d of %d failed: %w", i+1, calls, err)
		}
		all = append(all, det)
	}
	return all[0], all, nil
}

// FindElement asks for exactly one element matching the description and
// returns its box, or an error when nothing was found.
func (d *Detector) FindElement(ctx context.Context, imagePNG []byte, description string) (*schemas.BoundingBox, error) {
	prompt := fmt.Sprintf("Find %s. Return only its bounding box.", description)
	det, err := d.DetectElements(ctx, imagePNG, prompt)
	if err != nil {
		return nil, err
	}
	if len(det.Boxes) == 0 {
		return nil, fmt.Errorf("no element matching %q was detected", description)
	}
	return &det.Boxes[0], nil
}
