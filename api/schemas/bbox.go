package schemas

import "fmt"

// NormalizedScale is the coordinate space the vision model reports boxes in.
// Both axes run 0..1000 regardless of the underlying image dimensions.
const NormalizedScale = 1000.0

// BoundingBox is a vision-model detection. Box2D is [ymin, xmin, ymax, xmax]
// on the 0-1000 normalized scale.
type BoundingBox struct {
	Box2D [4]int `json:"box_2d"`
	Label string `json:"label"`
}

// Point is a pixel-space coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Validate rejects boxes that cannot be mapped onto an image.
func (b BoundingBox) Validate() error {
	ymin, xmin, ymax, xmax := b.Box2D[0], b.Box2D[1], b.Box2D[2], b.Box2D[3]
	for _, v := range b.Box2D {
		if v < 0 || v > int(NormalizedScale) {
			return fmt.Errorf("bounding box coordinate %d outside 0-%d", v, int(NormalizedScale))
		}
	}
	if ymin > ymax || xmin > xmax {
		return fmt.Errorf("inverted bounding box [%d %d %d %d]", ymin, xmin, ymax, xmax)
	}
	return nil
}

// Center converts the normalized box into a pixel-space click target at the
// box center for an image of the given dimensions.
func (b BoundingBox) Center(imageWidth, imageHeight int) Point {
	ymin, xmin, ymax, xmax := b.Box2D[0], b.Box2D[1], b.Box2D[2], b.Box2D[3]
	x := (float64(xmin+xmax) / 2.0) * float64(imageWidth) / NormalizedScale
	y := (float64(ymin+ymax) / 2.0) * float64(imageHeight) / NormalizedScale
	return Point{X: int(x), Y: int(y)}
}

// PixelRect returns the box corners in pixel space: x0, y0, x1, y1.
func (b BoundingBox) PixelRect(imageWidth, imageHeight int) (float64, float64, float64, float64) {
	ymin, xmin, ymax, xmax := b.Box2D[0], b.Box2D[1], b.Box2D[2], b.Box2D[3]
	x0 := float64(xmin) * float64(imageWidth) / NormalizedScale
	y0 := float64(ymin) * float64(imageHeight) / NormalizedScale
	x1 := float64(xmax) * float64(imageWidth) / NormalizedScale
	y1 := float64(ymax) * float64(imageHeight) / NormalizedScale
	return x0, y0, x1, y1
}
