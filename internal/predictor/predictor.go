// Package predictor scores preprocessed lesion images against the
// classification model and degrades to a deterministic static result when
// the model is unavailable.
package predictor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/dermalens/dermalens/internal/imaging"
)

// DefaultLabels is the class vocabulary used when no label map file is
// configured, in model output order.
var DefaultLabels = []string{"Melanoma", "Nevus", "BCC", "AK", "Benign"}

// Fallback result used when inference cannot run.
const (
	FallbackClass      = "Melanoma"
	FallbackConfidence = 0.92
)

// Score pairs a class label with its probability.
type Score struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Result is the outcome of scoring one image.
type Result struct {
	Class      string  `json:"predicted_class"`
	Confidence float64 `json:"confidence"`
	Scores     []Score `json:"scores"`
}

// Predictor scores a preprocessed image tensor.
type Predictor interface {
	Predict(input *imaging.Tensor) (*Result, error)
	Labels() []string
}

// Config selects the model and label map on disk. An empty or missing
// ModelPath yields the static fallback predictor.
type Config struct {
	ModelPath string
	LabelPath string
	Threads   int
}

// New builds the predictor for the given configuration. When the model
// file is not present the static predictor is returned so the service
// stays available.
func New(cfg Config) (Predictor, error) {
	if cfg.ModelPath == "" {
		return NewStaticPredictor(), nil
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return NewStaticPredictor(), nil
	}

	labels := DefaultLabels
	if cfg.LabelPath != "" {
		loaded, err := LoadLabels(cfg.LabelPath)
		if err != nil {
			return nil, err
		}
		labels = loaded
	}

	return NewTFLitePredictor(cfg.ModelPath, labels, cfg.Threads), nil
}

// LoadLabels reads a label map file of the form
// {"index_to_label": {"0": "Melanoma", ...}} and returns the labels in
// index order.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("predictor: read label map: %w", err)
	}

	var doc struct {
		IndexToLabel map[string]string `json:"index_to_label"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("predictor: parse label map: %w", err)
	}
	if len(doc.IndexToLabel) == 0 {
		return nil, fmt.Errorf("predictor: label map %s has no entries", path)
	}

	labels := make([]string, len(doc.IndexToLabel))
	for key, label := range doc.IndexToLabel {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(labels) {
			return nil, fmt.Errorf("predictor: label map %s has invalid index %q", path, key)
		}
		labels[idx] = label
	}
	for i, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("predictor: label map %s missing index %d", path, i)
		}
	}
	return labels, nil
}

// buildResult ranks raw class probabilities into a Result. Scores are
// ordered by descending probability.
func buildResult(labels []string, probs []float32) *Result {
	scores := make([]Score, len(labels))
	for i, label := range labels {
		var p float64
		if i < len(probs) {
			p = float64(probs[i])
		}
		scores[i] = Score{Label: label, Probability: p}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Probability > scores[j].Probability
	})

	return &Result{
		Class:      scores[0].Label,
		Confidence: scores[0].Probability,
		Scores:     scores,
	}
}
