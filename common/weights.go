package common

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// TensorTypeFloat64LE encodes each element as 8 little-endian bytes of an
// IEEE 754 float64.
const TensorTypeFloat64LE = "float64le"

// Codec errors.
var (
	// ErrTensorType indicates Parameters use an encoding this package cannot decode.
	ErrTensorType = errors.New("unsupported tensor type")

	// ErrTensorSize indicates a tensor's byte length does not fit its encoding.
	ErrTensorSize = errors.New("malformed tensor")
)

// Weights is a decoded model: one flat float64 slice per layer.
type Weights [][]float64

// Clone returns a deep copy of w.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for i, layer := range w {
		out[i] = append([]float64(nil), layer...)
	}
	return out
}

// WeightsToParameters serializes weights with TensorTypeFloat64LE.
func WeightsToParameters(w Weights) Parameters {
	tensors := make([][]byte, len(w))
	for i, layer := range w {
		buf := make([]byte, 8*len(layer))
		for j, v := range layer {
			binary.LittleEndian.PutUint64(buf[8*j:], math.Float64bits(v))
		}
		tensors[i] = buf
	}
	return Parameters{Tensors: tensors, TensorType: TensorTypeFloat64LE}
}

// ParametersToWeights decodes parameters produced by WeightsToParameters.
func ParametersToWeights(p Parameters) (Weights, error) {
	if p.TensorType != TensorTypeFloat64LE {
		return nil, fmt.Errorf("%w: %q", ErrTensorType, p.TensorType)
	}
	w := make(Weights, len(p.Tensors))
	for i, tensor := range p.Tensors {
		if len(tensor)%8 != 0 {
			return nil, fmt.Errorf("%w: tensor %d has %d bytes", ErrTensorSize, i, len(tensor))
		}
		layer := make([]float64, len(tensor)/8)
		for j := range layer {
			layer[j] = math.Float64frombits(binary.LittleEndian.Uint64(tensor[8*j:]))
		}
		w[i] = layer
	}
	return w, nil
}
