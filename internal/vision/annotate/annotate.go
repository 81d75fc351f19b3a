// Package annotate draws detection results onto screenshots so a human can
// check what the vision model actually found.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fogleman/gg"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

// Mode selects the marker style.
type Mode string

const (
	// ModeBox outlines each detection.
	ModeBox Mode = "bbox"
	// ModeCrosshair marks each detection's click target.
	ModeCrosshair Mode = "crosshair"
)

// palette cycles across detections so adjacent boxes stay distinguishable.
var palette = []string{
	"#FF0000", // red
	"#00FF00", // green
	"#FFFF00", // yellow
	"#0000FF", // blue
	"#FF00FF", // magenta
	"#00FFFF", // cyan
	"#FF8000", // orange
	"#8000FF", // purple
}

const (
	strokeWidth     = 3.0
	crosshairSize   = 20.0
	labelRadius     = 14.0
	clusterDistance = 80.0
)

// Render draws the boxes onto a copy of the image and returns it.
func Render(img image.Image, boxes []schemas.BoundingBox, mode Mode) image.Image {
	dc := gg.NewContextForImage(img)
	w := dc.Width()
	h := dc.Height()

	rects := make([][4]float64, len(boxes))
	for i, box := range boxes {
		x0, y0, x1, y1 := box.PixelRect(w, h)
		rects[i] = [4]float64{x0, y0, x1, y1}
	}
	clustered := clusterMembership(rects)

	var placed [][4]float64
	for i := range boxes {
		hex := palette[i%len(palette)]
		x0, y0, x1, y1 := rects[i][0], rects[i][1], rects[i][2], rects[i][3]
		cx := (x0 + x1) / 2
		cy := (y0 + y1) / 2

		dc.SetHexColor(hex)
		switch mode {
		case ModeCrosshair:
			dc.SetLineWidth(1)
			dc.DrawLine(cx-crosshairSize, cy, cx+crosshairSize, cy)
			dc.DrawLine(cx, cy-crosshairSize, cx, cy+crosshairSize)
			dc.Stroke()
		default:
			dc.SetLineWidth(strokeWidth)
			dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
			dc.Stroke()
		}

		lx, ly := labelPosition(cx, cy, rects[i], placed, clustered[i], float64(w), float64(h))
		placed = append(placed, [4]float64{lx - labelRadius, ly - labelRadius, lx + labelRadius, ly + labelRadius})

		dc.SetHexColor(hex)
		dc.DrawCircle(lx, ly, labelRadius)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(strconv.Itoa(i+1), lx, ly, 0.5, 0.5)
	}
	return dc.Image()
}

// Annotate decodes a PNG, renders the boxes and re-encodes it.
func Annotate(imagePNG []byte, boxes []schemas.BoundingBox, mode Mode) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(imagePNG))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	out := Render(img, boxes, mode)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}

// AnnotateFile reads a screenshot, draws the boxes and writes the result
// next to it as <name>_annotated.png, returning the output path.
func AnnotateFile(path string, boxes []schemas.BoundingBox, mode Mode) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read screenshot %s: %w", path, err)
	}
	out, err := Annotate(data, boxes, mode)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(path)
	outPath := strings.TrimSuffix(path, ext) + "_annotated.png"
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write annotated image: %w", err)
	}
	return outPath, nil
}

// clusterMembership reports, per box, whether another box center lies within
// the cluster distance. Clustered boxes get their labels pushed further out.
func clusterMembership(rects [][4]float64) []bool {
	centers := make([][2]float64, len(rects))
	for i, r := range rects {
		centers[i] = [2]float64{(r[0] + r[2]) / 2, (r[1] + r[3]) / 2}
	}
	out := make([]bool, len(rects))
	for i := range centers {
		for j := range centers {
			if i == j {
				continue
			}
			dx := centers[i][0] - centers[j][0]
			dy := centers[i][1] - centers[j][1]
			if math.Hypot(dx, dy) < clusterDistance {
				out[i] = true
				break
			}
		}
	}
	return out
}

// labelPosition picks a spot for the numbered circle that stays on the image
// and avoids previously placed labels. Clustered boxes try larger offsets
// first so their labels fan out instead of stacking.
func labelPosition(cx, cy float64, box [4]float64, placed [][4]float64, clustered bool, w, h float64) (float64, float64) {
	distances := []float64{30, 50, 70}
	if clustered {
		distances = []float64{60, 90, 120}
	}

	// Eight compass directions around the box center.
	directions := [][2]float64{
		{0, -1}, {1, -1}, {1, 0}, {1, 1},
		{0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
	}

	for _, dist := range distances {
		for _, dir := range directions {
			lx := cx + dir[0]*dist
			ly := cy + dir[1]*dist
			if lx < labelRadius || ly < labelRadius || lx > w-labelRadius || ly > h-labelRadius {
				continue
			}
			candidate := [4]float64{lx - labelRadius, ly - labelRadius, lx + labelRadius, ly + labelRadius}
			if overlapsAny(candidate, placed) || rectsOverlap(candidate, box) {
				continue
			}
			return lx, ly
		}
	}
	// Dense area, give up and sit on the center.
	return clamp(cx, labelRadius, w-labelRadius), clamp(cy, labelRadius, h-labelRadius)
}

func overlapsAny(r [4]float64, others [][4]float64) bool {
	for _, o := range others {
		if rectsOverlap(r, o) {
			return true
		}
	}
	return false
}

func rectsOverlap(a, b [4]float64) bool {
	return a[0] < b[2] && a[2] > b[0] && a[1] < b[3] && a[3] > b[1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
