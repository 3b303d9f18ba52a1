package tensor

import (
	"fmt"
)

func checkBinaryOperands(a, b *Tensor) error {
	if a.DType != b.DType {
		return fmt.Errorf("dtype mismatch: %s vs %s", a.DType, b.DType)
	}
	if !shapesEqual(a.Shape, b.Shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	return nil
}

// Add returns a + b elementwise. Operand shapes and dtypes must match.
func Add(a, b *Tensor) (*Tensor, error) {
	if err := checkBinaryOperands(a, b); err != nil {
		return nil, err
	}
	switch a.DType {
	case Float32:
		av := a.Data.([]float32)
		bv := b.Data.([]float32)
		out := make([]float32, len(av))
		for i := range av {
			out[i] = av[i] + bv[i]
		}
		return NewTensor(append([]int{}, a.Shape...), a.DType, a.Device, out)
	case Int32:
		av := a.Data.([]int32)
		bv := b.Data.([]int32)
		out := make([]int32, len(av))
		for i := range av {
			out[i] = av[i] + bv[i]
		}
		return NewTensor(append([]int{}, a.Shape...), a.DType, a.Device, out)
	default:
		return nil, fmt.Errorf("unsupported dtype for Add: %s", a.DType)
	}
}

// Sub returns a - b elementwise.
func Sub(a, b *Tensor) (*Tensor, error) {
	if err := checkBinaryOperands(a, b); err != nil {
		return nil, err
	}
	switch a.DType {
	case Float32:
		av := a.Data.([]float32)
		bv := b.Data.([]float32)
		out := make([]float32, len(av))
		for i := range av {
			out[i] = av[i] - bv[i]
		}
		return NewTensor(append([]int{}, a.Shape...), a.DType, a.Device, out)
	case Int32:
		av := a.Data.([]int32)
		bv := b.Data.([]int32)
		out := make([]int32, len(av))
		for i := range av {
			out[i] = av[i] - bv[i]
		}
		return NewTensor(append([]int{}, a.Shape...), a.DType, a.Device, out)
	default:
		return nil, fmt.Errorf("unsupported dtype for Sub: %s", a.DType)
	}
}

// Mul returns a * b elementwise.
func Mul(a, b *Tensor) (*Tensor, error) {
	if err := checkBinaryOperands(a, b); err != nil {
		return nil, err
	}
	switch a.DType {
	case Float32:
		av := a.Data.([]float32)
		bv := b.Data.([]float32)
		out := make([]float32, len(av))
		for i := range av {
			out[i] = av[i] * bv[i]
		}
		return NewTensor(append([]int{}, a.Shape...), a.DType, a.Device, out)
	default:
		return nil, fmt.Errorf("unsupported dtype for Mul: %s", a.DType)
	}
}

// Scale multiplies every element of a Float32 tensor by s, in place.
func Scale(t *Tensor, s float64) error {
	if t.DType != Float32 {
		return fmt.Errorf("Scale requires a Float32 tensor, got %s", t.DType)
	}
	data := t.Data.([]float32)
	f := float32(s)
	for i := range data {
		data[i] *= f
	}
	return nil
}

// Reshape returns a view-copy of t with a new shape of equal element count.
func Reshape(t *Tensor, shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if calculateNumElements(shape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, t.NumElems, shape)
	}
	return NewTensor(shape, t.DType, t.Device, t.Data)
}
