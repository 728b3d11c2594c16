package artifacts

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Network is a pre-trained feed-forward regression network. Weights are
// consumed read-only; a loaded Network is safe for concurrent use.
type Network struct {
	// Layers are applied in order.
	Layers []Layer `json:"layers"`
}

// Layer is one dense layer: out = activation(weights · in + biases).
type Layer struct {
	// Weights is a row-major matrix, one row per output unit.
	Weights [][]float64 `json:"weights"`

	// Biases has one entry per output unit.
	Biases []float64 `json:"biases"`

	// Activation names the element-wise activation
	// (relu, gelu, tanh, linear). Empty means linear.
	Activation string `json:"activation,omitempty"`
}

// Forward runs the forward pass and returns the network output vector.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(n.Layers) == 0 {
		return nil, fmt.Errorf("network has no layers")
	}
	x := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for i, layer := range n.Layers {
		rows := len(layer.Weights)
		if rows == 0 {
			return nil, fmt.Errorf("layer %d has no weights", i)
		}
		cols := len(layer.Weights[0])
		if cols != x.Len() {
			return nil, fmt.Errorf("layer %d expects %d inputs, got %d", i, cols, x.Len())
		}
		if len(layer.Biases) != rows {
			return nil, fmt.Errorf("layer %d has %d biases for %d units", i, len(layer.Biases), rows)
		}
		w := mat.NewDense(rows, cols, nil)
		for r, row := range layer.Weights {
			if len(row) != cols {
				return nil, fmt.Errorf("layer %d has a ragged weight matrix", i)
			}
			w.SetRow(r, row)
		}
		out := mat.NewVecDense(rows, nil)
		out.MulVec(w, x)
		out.AddVec(out, mat.NewVecDense(rows, append([]float64(nil), layer.Biases...)))

		act, err := activation(layer.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		for r := 0; r < rows; r++ {
			out.SetVec(r, act(out.AtVec(r)))
		}
		x = out
	}
	result := make([]float64, x.Len())
	for i := range result {
		result[i] = x.AtVec(i)
	}
	return result, nil
}

// activation returns the element-wise activation function for a name.
func activation(name string) (func(float64) float64, error) {
	switch name {
	case "", "linear", "identity":
		return func(v float64) float64 { return v }, nil
	case "relu":
		return func(v float64) float64 { return math.Max(0, v) }, nil
	case "tanh":
		return math.Tanh, nil
	case "gelu":
		// Tanh approximation of GELU.
		return func(v float64) float64 {
			return 0.5 * v * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(v+0.044715*v*v*v)))
		}, nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}

// Scaler normalizes one named feature.
type Scaler struct {
	// Kind selects the scaling scheme (standard, minmax).
	Kind string `json:"kind"`

	// Mean and Scale parameterize a standard scaler.
	Mean  float64 `json:"mean,omitempty"`
	Scale float64 `json:"scale,omitempty"`

	// Min and Max parameterize a min-max scaler.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// Transform maps a raw value into model space.
func (s Scaler) Transform(v float64) float64 {
	switch s.Kind {
	case "minmax":
		if s.Max == s.Min {
			return 0
		}
		return (v - s.Min) / (s.Max - s.Min)
	default: // standard
		if s.Scale == 0 {
			return 0
		}
		return (v - s.Mean) / s.Scale
	}
}

// InverseTransform maps a model-space value back to raw units.
func (s Scaler) InverseTransform(v float64) float64 {
	switch s.Kind {
	case "minmax":
		return v*(s.Max-s.Min) + s.Min
	default: // standard
		return v*s.Scale + s.Mean
	}
}

// ScalerBundle maps feature names to their scalers. Lookups for unknown
// features are pass-through by convention; callers check membership.
type ScalerBundle map[string]Scaler
