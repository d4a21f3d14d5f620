// Package common - Geometry shared by detection and pose post-processing.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// BoundingBox is an axis-aligned box in absolute pixel coordinates with its
// predicted label index and confidence.
type BoundingBox struct {
	Label          int
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

// FromCxCyWH converts a normalized (cx, cy, w, h) box, as predicted by the
// detection head, into absolute corner coordinates for an image of the given
// size.
func FromCxCyWH(cx, cy, w, h float32, width, height int) BoundingBox {
	fw, fh := float32(width), float32(height)
	return BoundingBox{
		X1: (cx - w/2) * fw,
		Y1: (cy - h/2) * fh,
		X2: (cx + w/2) * fw,
		Y2: (cy + h/2) * fh,
	}
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("Object %d (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// Area returns the box area in pixels; degenerate boxes have zero area.
func (b *BoundingBox) Area() float32 {
	return math32.Max(0, b.X2-b.X1) * math32.Max(0, b.Y2-b.Y1)
}

// Intersection returns the overlap area between two boxes in pixels.
func (b *BoundingBox) Intersection(other *BoundingBox) float32 {
	w := math32.Min(b.X2, other.X2) - math32.Max(b.X1, other.X1)
	h := math32.Min(b.Y2, other.Y2) - math32.Max(b.Y1, other.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU returns the intersection-over-union between two boxes, 0 when the
// union is empty.
func (b *BoundingBox) IoU(other *BoundingBox) float32 {
	inter := b.Intersection(other)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ToRect converts the box to an image.Rectangle for drawing and cropping.
func (b *BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}
