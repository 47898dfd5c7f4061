// Package imaging converts uploaded lesion photos into model input tensors
// and renders attribution heatmap overlays.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Model input geometry. The classifier consumes a single 224x224 RGB frame
// with channel values scaled to [0, 1].
const (
	InputWidth    = 224
	InputHeight   = 224
	InputChannels = 3
)

// ErrEmptyImage is returned when the uploaded payload has no bytes.
var ErrEmptyImage = errors.New("imaging: empty image payload")

// Tensor is a batch-of-one NHWC float32 tensor ready for inference.
type Tensor struct {
	Data   []float32
	Width  int
	Height int
}

// Decode parses raw upload bytes into an image. PNG, JPEG and GIF are
// accepted.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode image: %w", err)
	}
	return img, nil
}

// Preprocess resizes an image to the model's input geometry and scales
// pixel values into [0, 1].
func Preprocess(img image.Image) *Tensor {
	resized := image.NewRGBA(image.Rect(0, 0, InputWidth, InputHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float32, InputWidth*InputHeight*InputChannels)
	idx := 0
	for y := 0; y < InputHeight; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < InputWidth; x++ {
			px := row[x*4:]
			data[idx] = float32(px[0]) / 255.0
			data[idx+1] = float32(px[1]) / 255.0
			data[idx+2] = float32(px[2]) / 255.0
			idx += 3
		}
	}

	return &Tensor{Data: data, Width: InputWidth, Height: InputHeight}
}

// PreprocessBytes decodes and preprocesses in one step.
func PreprocessBytes(data []byte) (*Tensor, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Preprocess(img), nil
}
