package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

func blankPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAnnotate_DrawsBoxes(t *testing.T) {
	src := blankPNG(t, 400, 300)
	boxes := []schemas.BoundingBox{
		{Box2D: [4]int{100, 100, 500, 500}, Label: "Button"},
	}

	out, err := Annotate(src, boxes, ModeBox)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	// The output must differ from the blank input somewhere.
	assert.NotEqual(t, src, out)
}

func TestAnnotate_CrosshairMode(t *testing.T) {
	src := blankPNG(t, 200, 200)
	boxes := []schemas.BoundingBox{
		{Box2D: [4]int{400, 400, 600, 600}, Label: "Target"},
	}

	out, err := Annotate(src, boxes, ModeCrosshair)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	// Box center is (500,500) normalized, i.e. (100,100) in pixels. The
	// crosshair arm should have painted a non-white pixel there.
	r, g, b, _ := img.At(90, 100).RGBA()
	assert.False(t, r == 0xffff && g == 0xffff && b == 0xffff, "expected crosshair ink at (90,100)")
}

func TestAnnotate_RejectsGarbage(t *testing.T) {
	_, err := Annotate([]byte("not a png"), nil, ModeBox)
	require.Error(t, err)
}

func TestAnnotateFile_WritesSuffixedOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "step03_close_modal.png")
	require.NoError(t, os.WriteFile(src, blankPNG(t, 100, 100), 0o644))

	outPath, err := AnnotateFile(src, []schemas.BoundingBox{
		{Box2D: [4]int{0, 0, 1000, 1000}, Label: "Whole page"},
	}, ModeBox)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "step03_close_modal_annotated.png"), outPath)

	_, err = os.Stat(outPath)
	require.NoError(t, err)
}

func TestLabelPositionsAvoidEachOther(t *testing.T) {
	// Two overlapping boxes in a tight cluster.
	src := blankPNG(t, 300, 300)
	boxes := []schemas.BoundingBox{
		{Box2D: [4]int{400, 400, 500, 500}, Label: "A"},
		{Box2D: [4]int{420, 420, 520, 520}, Label: "B"},
	}
	_, err := Annotate(src, boxes, ModeBox)
	require.NoError(t, err)

	rects := [][4]float64{{120, 120, 150, 150}, {126, 126, 156, 156}}
	clustered := clusterMembership(rects)
	assert.True(t, clustered[0])
	assert.True(t, clustered[1])

	var placed [][4]float64
	x1, y1 := labelPosition(135, 135, rects[0], placed, true, 300, 300)
	placed = append(placed, [4]float64{x1 - labelRadius, y1 - labelRadius, x1 + labelRadius, y1 + labelRadius})
	x2, y2 := labelPosition(141, 141, rects[1], placed, true, 300, 300)

	first := [4]float64{x1 - labelRadius, y1 - labelRadius, x1 + labelRadius, y1 + labelRadius}
	second := [4]float64{x2 - labelRadius, y2 - labelRadius, x2 + labelRadius, y2 + labelRadius}
	assert.False(t, rectsOverlap(first, second))
}
