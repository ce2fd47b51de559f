package nn

import (
	"fmt"
	"math"
	"strings"
)

// Activation is an element-wise non-linearity.
type Activation func(float64) float64

// ParseActivation resolves an activation by the names used in model
// configuration files.
func ParseActivation(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "gelu":
		return GELU, nil
	case "gelu_new", "gelu_pytorch_tanh", "gelu_fast":
		return GELUTanh, nil
	case "relu":
		return ReLU, nil
	case "tanh":
		return math.Tanh, nil
	case "silu", "swish":
		return SiLU, nil
	case "quick_gelu":
		return func(x float64) float64 { return x * Sigmoid(1.702*x) }, nil
	default:
		return nil, fmt.Errorf("unsupported activation: %s (supported: gelu, gelu_new, relu, tanh, silu, quick_gelu)", name)
	}
}

// GELU is the exact Gaussian error linear unit.
func GELU(x float64) float64 {
	return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
}

// GELUTanh is the tanh approximation of GELU.
func GELUTanh(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

// ReLU is max(0, x).
func ReLU(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// SiLU is x * sigmoid(x).
func SiLU(x float64) float64 {
	return x * Sigmoid(x)
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
