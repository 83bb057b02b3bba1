// Package ml runs inference for the pretrained candidate-scoring models.
// A model is a small feed-forward classifier serialized as JSON layer
// weights; scoring is a dense forward pass, so the whole thing is a handful
// of matrix multiplies.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Supported layer activations.
const (
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
	ActivationLinear  = "linear"
)

// layerSpec is the serialized form of one dense layer.
type layerSpec struct {
	Weights    [][]float64 `json:"weights"` // [inputDim][outputDim]
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type modelSpec struct {
	Layers []layerSpec `json:"layers"`
}

type layer struct {
	weights    *mat.Dense
	bias       []float64
	activation string
}

// Model maps a fixed-order feature vector to one scalar score; the score is
// a probability in [0,1] when the final layer's activation is sigmoid.
// It is loaded once per worker process and is safe for concurrent use;
// Predict holds no state beyond the weights.
type Model struct {
	layers   []layer
	inputDim int
}

// Load reads a serialized model from disk. An unreadable or inconsistent
// model file is a configuration error: the worker must abort on startup.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	var spec modelSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("model file %s has no layers", path)
	}

	m := &Model{}
	prevDim := -1
	for i, ls := range spec.Layers {
		inDim := len(ls.Weights)
		if inDim == 0 {
			return nil, fmt.Errorf("model file %s: layer %d has no weights", path, i)
		}
		outDim := len(ls.Weights[0])
		if len(ls.Bias) != outDim {
			return nil, fmt.Errorf("model file %s: layer %d bias size %d != output size %d", path, i, len(ls.Bias), outDim)
		}
		if prevDim != -1 && inDim != prevDim {
			return nil, fmt.Errorf("model file %s: layer %d input size %d != previous output size %d", path, i, inDim, prevDim)
		}

		flat := make([]float64, 0, inDim*outDim)
		for _, row := range ls.Weights {
			if len(row) != outDim {
				return nil, fmt.Errorf("model file %s: layer %d has ragged weights", path, i)
			}
			flat = append(flat, row...)
		}

		switch ls.Activation {
		case ActivationReLU, ActivationSigmoid, ActivationTanh, ActivationLinear:
		default:
			return nil, fmt.Errorf("model file %s: layer %d has unknown activation %q", path, i, ls.Activation)
		}

		m.layers = append(m.layers, layer{
			weights:    mat.NewDense(inDim, outDim, flat),
			bias:       ls.Bias,
			activation: ls.Activation,
		})
		if i == 0 {
			m.inputDim = inDim
		}
		prevDim = outDim
	}

	if prevDim != 1 {
		return nil, fmt.Errorf("model file %s: final layer output size %d, want 1", path, prevDim)
	}

	return m, nil
}

// InputDim returns the expected feature vector length.
func (m *Model) InputDim() int {
	return m.inputDim
}

// Predict runs the forward pass over a batch of feature vectors and returns
// one scalar per input. An empty batch yields an empty result.
func (m *Model) Predict(features [][]float64) ([]float64, error) {
	if len(features) == 0 {
		return nil, nil
	}

	flat := make([]float64, 0, len(features)*m.inputDim)
	for i, vec := range features {
		if len(vec) != m.inputDim {
			return nil, fmt.Errorf("feature vector %d has length %d, model expects %d", i, len(vec), m.inputDim)
		}
		flat = append(flat, vec...)
	}

	x := mat.NewDense(len(features), m.inputDim, flat)
	for _, l := range m.layers {
		var out mat.Dense
		out.Mul(x, l.weights)
		rows, cols := out.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				out.Set(r, c, activate(l.activation, out.At(r, c)+l.bias[c]))
			}
		}
		x = &out
	}

	scores := make([]float64, len(features))
	for i := range scores {
		scores[i] = x.At(i, 0)
	}
	return scores, nil
}

func activate(name string, v float64) float64 {
	switch name {
	case ActivationReLU:
		return math.Max(0, v)
	case ActivationSigmoid:
		return 1 / (1 + math.Exp(-v))
	case ActivationTanh:
		return math.Tanh(v)
	default:
		return v
	}
}
