package predictor

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/tphakala/go-tflite"
	"go.uber.org/zap"

	"github.com/dermalens/dermalens/internal/imaging"
	"github.com/dermalens/dermalens/pkg/logger"
)

// TFLitePredictor runs the classifier through the TensorFlow Lite C API.
// The interpreter is loaded lazily on first use and is not safe for
// concurrent invocation, so Predict serializes calls.
type TFLitePredictor struct {
	modelPath string
	labels    []string
	threads   int

	loadOnce sync.Once
	loadErr  error

	mu          sync.Mutex
	interpreter *tflite.Interpreter

	log *zap.Logger
}

// NewTFLitePredictor builds a lazily-initialized predictor for the model at
// modelPath. threads <= 0 uses the machine's CPU count.
func NewTFLitePredictor(modelPath string, labels []string, threads int) *TFLitePredictor {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &TFLitePredictor{
		modelPath: modelPath,
		labels:    labels,
		threads:   threads,
		log:       logger.WithModule("predictor"),
	}
}

// Labels returns the class vocabulary in model output order.
func (p *TFLitePredictor) Labels() []string {
	return p.labels
}

// Predict runs one inference pass over the input tensor.
func (p *TFLitePredictor) Predict(input *imaging.Tensor) (*Result, error) {
	if input == nil || len(input.Data) == 0 {
		return nil, fmt.Errorf("predictor: nil input tensor")
	}

	p.loadOnce.Do(p.load)
	if p.loadErr != nil {
		return nil, p.loadErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	in := p.interpreter.GetInputTensor(0)
	if in == nil {
		return nil, fmt.Errorf("predictor: cannot access input tensor")
	}
	if len(in.Float32s()) != len(input.Data) {
		return nil, fmt.Errorf("predictor: input size mismatch: model wants %d values, got %d",
			len(in.Float32s()), len(input.Data))
	}
	copy(in.Float32s(), input.Data)

	if status := p.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("predictor: inference failed with status %d", status)
	}

	out := p.interpreter.GetOutputTensor(0)
	if out == nil {
		return nil, fmt.Errorf("predictor: cannot access output tensor")
	}

	raw := out.Float32s()
	if len(raw) < len(p.labels) {
		return nil, fmt.Errorf("predictor: model emitted %d scores for %d labels", len(raw), len(p.labels))
	}
	probs := make([]float32, len(p.labels))
	copy(probs, raw)

	return buildResult(p.labels, probs), nil
}

func (p *TFLitePredictor) load() {
	model := tflite.NewModelFromFile(p.modelPath)
	if model == nil {
		p.loadErr = fmt.Errorf("predictor: cannot load model from %s", p.modelPath)
		return
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(p.threads)
	options.SetErrorReporter(func(msg string, _ any) {
		logger.WithModule("predictor").Error("tflite error", zap.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		p.loadErr = fmt.Errorf("predictor: cannot create interpreter for %s", p.modelPath)
		return
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		p.loadErr = fmt.Errorf("predictor: tensor allocation failed with status %d", status)
		return
	}

	p.interpreter = interpreter
	p.log.Info("model loaded",
		zap.String("path", p.modelPath),
		zap.Int("threads", p.threads),
		zap.Int("labels", len(p.labels)))
}
