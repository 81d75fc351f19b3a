package schemas

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxValidate(t *testing.T) {
	tests := []struct {
		name    string
		box     [4]int
		wantErr bool
	}{
		{"valid", [4]int{10, 20, 110, 220}, false},
		{"full extent", [4]int{0, 0, 1000, 1000}, false},
		{"degenerate point", [4]int{500, 500, 500, 500}, false},
		{"negative coordinate", [4]int{-1, 0, 100, 100}, true},
		{"over scale", [4]int{0, 0, 1001, 100}, true},
		{"inverted y", [4]int{300, 0, 100, 100}, true},
		{"inverted x", [4]int{0, 300, 100, 100}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := BoundingBox{Box2D: tc.box}.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoundingBoxCenter(t *testing.T) {
	b := BoundingBox{Box2D: [4]int{0, 900, 100, 950}}

	// Center is (925, 50) normalized, scaled into a 1280x720 image.
	got := b.Center(1280, 720)
	assert.Equal(t, Point{X: 1184, Y: 36}, got)

	// A full-extent box centers on the image midpoint.
	full := BoundingBox{Box2D: [4]int{0, 0, 1000, 1000}}
	assert.Equal(t, Point{X: 640, Y: 360}, full.Center(1280, 720))
}

func TestBoundingBoxPixelRect(t *testing.T) {
	b := BoundingBox{Box2D: [4]int{100, 200, 300, 400}}
	x0, y0, x1, y1 := b.PixelRect(1000, 500)
	assert.InDelta(t, 200.0, x0, 1e-9)
	assert.InDelta(t, 50.0, y0, 1e-9)
	assert.InDelta(t, 400.0, x1, 1e-9)
	assert.InDelta(t, 150.0, y1, 1e-9)
}

func TestCommandRequestRoundTrip(t *testing.T) {
	in := CommandRequest{
		Command: "wait_for_selector",
		Args:    []any{"#login"},
		Params:  map[string]any{"timeout_ms": float64(2000)},
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out CommandRequest
	require.NoError(t, json.Unmarshal(raw, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("command request changed across encoding (-want +got):\n%s", diff)
	}
}

func TestCommandResultOmitsEmptyFields(t *testing.T) {
	raw, err := json.Marshal(CommandResult{Status: StatusSuccess})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success"}`, string(raw))
}

func TestBoundingBoxJSONShape(t *testing.T) {
	var b BoundingBox
	require.NoError(t, json.Unmarshal([]byte(`{"box_2d":[10,20,30,40],"label":"Sign In"}`), &b))
	assert.Equal(t, [4]int{10, 20, 30, 40}, b.Box2D)
	assert.Equal(t, "Sign In", b.Label)
}
