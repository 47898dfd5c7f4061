package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/dermalens/dermalens/pkg/logger"
)

// GradientModel is implemented by predictors that can expose the last
// convolutional layer's activations and the gradients of a class score with
// respect to them. Models without gradient access simply do not implement
// it and the generator falls back to a radial attention map.
type GradientModel interface {
	// ConvActivations returns feature maps shaped [h][w][channels].
	ConvActivations(input *Tensor) ([][][]float32, error)
	// ClassGradients returns d(score_classIndex)/d(activations) with the
	// same shape as ConvActivations.
	ClassGradients(input *Tensor, classIndex int) ([][][]float32, error)
}

// HeatmapGenerator renders class-attribution overlays for uploaded images.
type HeatmapGenerator struct {
	log *zap.Logger
}

// NewHeatmapGenerator returns a ready-to-use generator.
func NewHeatmapGenerator() *HeatmapGenerator {
	return &HeatmapGenerator{log: logger.WithModule("imaging")}
}

// Generate composites a false-color attention map over the original image
// and writes the result next to it using the heatmap_ name prefix. It never
// fails over attribution problems: when the model cannot supply gradients,
// or the gradient computation errors, a radial map centered on the image is
// used instead. The returned path is the written overlay file.
func (g *HeatmapGenerator) Generate(model interface{}, input *Tensor, classIndex int, original image.Image, sourcePath string) (string, error) {
	heat := g.attentionMap(model, input, classIndex)

	bounds := original.Bounds()
	overlay := compositeOverlay(original, heat)

	outPath := filepath.Join(filepath.Dir(sourcePath), HeatmapName(filepath.Base(sourcePath)))
	if err := saveImage(overlay, outPath); err != nil {
		return "", fmt.Errorf("imaging: save heatmap: %w", err)
	}

	g.log.Debug("heatmap written",
		zap.String("path", outPath),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()))
	return outPath, nil
}

// HeatmapName derives the overlay filename from the upload's base name.
func HeatmapName(base string) string {
	return "heatmap_" + base
}

func (g *HeatmapGenerator) attentionMap(model interface{}, input *Tensor, classIndex int) [][]float32 {
	gm, ok := model.(GradientModel)
	if !ok || input == nil {
		return radialMap(InputHeight, InputWidth)
	}

	heat, err := gradCAM(gm, input, classIndex)
	if err != nil {
		g.log.Warn("gradient attribution failed, using radial fallback", zap.Error(err))
		return radialMap(InputHeight, InputWidth)
	}
	return heat
}

// gradCAM computes a normalized class activation map: channel weights are
// the spatial mean of the gradients, feature maps are combined by those
// weights, negatives are clipped, and the result is scaled to [0, 1].
func gradCAM(model GradientModel, input *Tensor, classIndex int) ([][]float32, error) {
	acts, err := model.ConvActivations(input)
	if err != nil {
		return nil, err
	}
	grads, err := model.ClassGradients(input, classIndex)
	if err != nil {
		return nil, err
	}

	h := len(acts)
	if h == 0 || len(acts[0]) == 0 || len(acts[0][0]) == 0 {
		return nil, fmt.Errorf("imaging: empty activation volume")
	}
	w := len(acts[0])
	channels := len(acts[0][0])
	if len(grads) != h || len(grads[0]) != w || len(grads[0][0]) != channels {
		return nil, fmt.Errorf("imaging: activation and gradient shapes differ")
	}

	weights := make([]float32, channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < channels; c++ {
				weights[c] += grads[y][x][c]
			}
		}
	}
	area := float32(h * w)
	for c := range weights {
		weights[c] /= area
	}

	heat := make([][]float32, h)
	var maxVal float32
	for y := 0; y < h; y++ {
		heat[y] = make([]float32, w)
		for x := 0; x < w; x++ {
			var v float32
			for c := 0; c < channels; c++ {
				v += weights[c] * acts[y][x][c]
			}
			if v < 0 {
				v = 0
			}
			heat[y][x] = v
			if v > maxVal {
				maxVal = v
			}
		}
	}

	if maxVal > 0 {
		for y := range heat {
			for x := range heat[y] {
				heat[y][x] /= maxVal
			}
		}
	}
	return heat, nil
}

// radialMap produces an attention map that peaks at the image center and
// falls off linearly with distance.
func radialMap(h, w int) [][]float32 {
	cy := float64(h-1) / 2
	cx := float64(w-1) / 2
	maxDist := math.Sqrt(cy*cy + cx*cx)

	heat := make([][]float32, h)
	for y := 0; y < h; y++ {
		heat[y] = make([]float32, w)
		for x := 0; x < w; x++ {
			dy := float64(y) - cy
			dx := float64(x) - cx
			v := 1 - math.Sqrt(dy*dy+dx*dx)/maxDist
			if v < 0 {
				v = 0
			}
			heat[y][x] = float32(v)
		}
	}
	return heat
}

// compositeOverlay scales the attention map to the original's geometry and
// alpha-blends a warm false-color layer over it.
func compositeOverlay(original image.Image, heat [][]float32) *image.RGBA {
	bounds := original.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), original, bounds.Min, draw.Src)

	scaled := resizeHeat(heat, bounds.Dx(), bounds.Dy())

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			i := scaled[y][x]
			if i <= 0 {
				continue
			}
			layer := color.RGBA{
				R: uint8(255 * i),
				G: uint8(200 * i),
				B: uint8(50 * i),
				A: uint8(180 * i),
			}
			blendPixel(out, x, y, layer)
		}
	}
	return out
}

// resizeHeat maps the heat grid onto the target geometry with bilinear
// interpolation, reusing the image pipeline via an 8-bit grayscale proxy.
func resizeHeat(heat [][]float32, w, h int) [][]float32 {
	srcH := len(heat)
	srcW := len(heat[0])

	gray := image.NewGray(image.Rect(0, 0, srcW, srcH))
	for y := 0; y < srcH; y++ {
		for x := 0; x < srcW; x++ {
			gray.SetGray(x, y, color.Gray{Y: uint8(heat[y][x] * 255)})
		}
	}

	scaled := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	out := make([][]float32, h)
	for y := 0; y < h; y++ {
		out[y] = make([]float32, w)
		row := scaled.Pix[y*scaled.Stride:]
		for x := 0; x < w; x++ {
			out[y][x] = float32(row[x]) / 255
		}
	}
	return out
}

func blendPixel(img *image.RGBA, x, y int, layer color.RGBA) {
	base := img.RGBAAt(x, y)
	a := float32(layer.A) / 255
	img.SetRGBA(x, y, color.RGBA{
		R: uint8(float32(layer.R)*a + float32(base.R)*(1-a)),
		G: uint8(float32(layer.G)*a + float32(base.G)*(1-a)),
		B: uint8(float32(layer.B)*a + float32(base.B)*(1-a)),
		A: 255,
	})
}

func saveImage(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		return png.Encode(f, img)
	}
}
