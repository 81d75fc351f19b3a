package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/config"
)

func TestParseBoundingBoxes_StructuredJSON(t *testing.T) {
	text := "```json\n" + `[
		{"box_2d": [100, 200, 300, 400], "label": "Login button"},
		{"box_2d": [50, 60, 70, 80]}
	]` + "\n```"

	boxes := ParseBoundingBoxes(text)
	require.Len(t, boxes, 2)
	assert.Equal(t, [4]int{100, 200, 300, 400}, boxes[0].Box2D)
	assert.Equal(t, "Login button", boxes[0].Label)
	assert.Equal(t, "Object 2", boxes[1].Label)
}

func TestParseBoundingBoxes_BareArrays(t *testing.T) {
	boxes := ParseBoundingBoxes(`[[10, 20, 30, 40], [500, 600, 700, 800]]`)
	require.Len(t, boxes, 2)
	assert.Equal(t, [4]int{10, 20, 30, 40}, boxes[0].Box2D)
	assert.Equal(t, "Object 1", boxes[0].Label)
}

func TestParseBoundingBoxes_RegexFallback(t *testing.T) {
	text := `The close button is at [12, 890, 45, 960] and there is another
element near [100, 100, 200, 200] on the page.`

	boxes := ParseBoundingBoxes(text)
	require.Len(t, boxes, 2)
	assert.Equal(t, [4]int{12, 890, 45, 960}, boxes[0].Box2D)
}

func TestParseBoundingBoxes_DropsInvalid(t *testing.T) {
	text := `[
		{"box_2d": [300, 400, 100, 200], "label": "inverted"},
		{"box_2d": [0, 0, 2000, 500], "label": "out of range"},
		{"box_2d": [10, 10, 20, 20], "label": "good"}
	]`

	boxes := ParseBoundingBoxes(text)
	require.Len(t, boxes, 1)
	assert.Equal(t, "good", boxes[0].Label)
}

func TestParseBoundingBoxes_SingleObject(t *testing.T) {
	boxes := ParseBoundingBoxes(`{"box_2d": [100, 100, 200, 200], "label": "X"}`)
	require.Len(t, boxes, 1)
	assert.Equal(t, "X", boxes[0].Label)
}

func geminiReply(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]string{{"text": text}},
			},
		}},
	})
	require.NoError(t, err)
	return body
}

func newTestDetector(t *testing.T, handler http.HandlerFunc) *Detector {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	cfg := config.NewDefaultConfig().Vision
	cfg.APIKey = "test-key"
	cfg.Endpoint = ts.URL
	cfg.APITimeout = 5 * time.Second
	return New(cfg, zap.NewNop())
}

func TestDetectElements(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write(geminiReply(t, `[{"box_2d": [100, 200, 300, 400], "label": "Close"}]`))
	})

	det, err := d.DetectElements(context.Background(), []byte("fake-png"), "the close button")
	require.NoError(t, err)
	require.Len(t, det.Boxes, 1)
	assert.Equal(t, "Close", det.Boxes[0].Label)

	assert.Contains(t, gotPath, ":generateContent")
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 2)
	assert.Contains(t, gotReq.Contents[0].Parts[0].Text, "Additional context: the close button")
	require.NotNil(t, gotReq.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", gotReq.Contents[0].Parts[1].InlineData.MimeType)
}

func TestDetectElements_APIError(t *testing.T) {
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 503, "message": "The model is overloaded"},
		})
	})

	_, err := d.DetectElements(context.Background(), []byte("png"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestDetectElements_NoKey(t *testing.T) {
	cfg := config.NewDefaultConfig().Vision
	cfg.APIKey = ""
	d := New(cfg, zap.NewNop())
	_, err := d.DetectElements(context.Background(), []byte("png"), "")
	require.Error(t, err)
}

func TestDetectConsistent(t *testing.T) {
	var calls atomic.Int32
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write(geminiReply(t, `[[10, 20, 30, 40]]`))
	})

	first, all, err := d.DetectConsistent(context.Background(), []byte("png"), "", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, all, 3)
	assert.Equal(t, first, all[0])
}

func TestFindElement(t *testing.T) {
	d := newTestDetector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(geminiReply(t, `[{"box_2d": [12, 890, 45, 960], "label": "X button"}]`))
	})

	box, err := d.FindElement(context.Background(), []byte("png"), "the modal close button")
	require.NoError(t, err)
	assert.Equal(t, "X button", box.Label)

	// Click target for a 1280x720 viewport.
	center := box.Center(1280, 720)
	assert.Equal(t, schemas.Point{X: 1184, Y: 20}, center)
}

func TestSystemPrompt_FallsBackForUnknownModels(t *testing.T) {
	assert.Equal(t, SystemPrompt("gemini-2.5-flash"), SystemPrompt("gemini-9.9-ultra"))
	assert.NotEqual(t, SystemPrompt("gemini-2.0-flash-exp"), SystemPrompt("gemini-2.5-flash"))
}
