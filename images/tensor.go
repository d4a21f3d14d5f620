// Package images - Conversion from decoded images to CHW float32 tensors.
package images

import (
	"image"

	"github.com/nfnt/resize"
	"gorgonia.org/tensor"
)

// ToCHW converts a decoded image into a (3, H, W) float32 tensor with RGB
// values scaled to [0, 1]. Alpha is dropped.
func ToCHW(img image.Image) *tensor.Dense {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*w + x
			data[idx] = float32(r>>8) / 255
			data[plane+idx] = float32(g>>8) / 255
			data[2*plane+idx] = float32(b>>8) / 255
		}
	}
	return tensor.New(tensor.WithShape(3, h, w), tensor.WithBacking(data))
}

// ResizeCHW resizes an image to (width, height) with bilinear filtering and
// converts it via ToCHW. Useful when a pipeline wants a fixed input size
// instead of per-batch padding.
func ResizeCHW(img image.Image, width, height int) *tensor.Dense {
	return ToCHW(resize.Resize(uint(width), uint(height), img, resize.Bilinear))
}
