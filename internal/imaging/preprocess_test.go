package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodeEmptyPayload(t *testing.T) {
	_, err := Decode(nil)
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("not an image at all"))
	require.Error(t, err)
}

func TestPreprocessGeometryAndScaling(t *testing.T) {
	img := solidImage(640, 480, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	tensor := Preprocess(img)
	require.Equal(t, InputWidth, tensor.Width)
	require.Equal(t, InputHeight, tensor.Height)
	require.Len(t, tensor.Data, InputWidth*InputHeight*InputChannels)

	// Solid red input stays solid red after resizing.
	require.InDelta(t, 1.0, tensor.Data[0], 0.01)
	require.InDelta(t, 0.0, tensor.Data[1], 0.01)
	require.InDelta(t, 0.0, tensor.Data[2], 0.01)

	for _, v := range tensor.Data {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestPreprocessBytes(t *testing.T) {
	data := encodePNG(t, solidImage(32, 32, color.RGBA{R: 10, G: 20, B: 30, A: 255}))

	tensor, err := PreprocessBytes(data)
	require.NoError(t, err)
	require.Len(t, tensor.Data, InputWidth*InputHeight*InputChannels)
	require.InDelta(t, 10.0/255, tensor.Data[0], 0.01)
	require.InDelta(t, 20.0/255, tensor.Data[1], 0.01)
	require.InDelta(t, 30.0/255, tensor.Data[2], 0.01)
}

func TestPreprocessBytesRejectsEmpty(t *testing.T) {
	_, err := PreprocessBytes([]byte{})
	require.ErrorIs(t, err, ErrEmptyImage)
}
