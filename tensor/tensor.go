package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

type DeviceType int

const (
	CPU DeviceType = iota
	CUDA
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	default:
		return "Unknown"
	}
}

// Available reports whether a device can actually execute tensor operations.
// Only the CPU backend is implemented; callers that request CUDA are expected
// to fall back to CPU.
func (d DeviceType) Available() bool {
	return d == CPU
}

// SelectDevice returns CUDA when it was requested and is available, falling
// back to CPU otherwise.
func SelectDevice(cuda bool) DeviceType {
	if cuda && CUDA.Available() {
		return CUDA
	}
	return CPU
}

// Tensor is a dense row-major array of Float32 or Int32 values. A tensor that
// requires gradients carries a lazily allocated .grad tensor of the same
// shape; gradients are accumulated, never overwritten, until ZeroGrad.
type Tensor struct {
	Shape    []int
	Strides  []int
	DType    DType
	Device   DeviceType
	Data     interface{}
	NumElems int

	requiresGrad bool
	grad         *Tensor
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, device=%s, elements=%d)",
		t.Shape, t.DType, t.Device, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient tensor, or nil if no gradient has
// been accumulated since the last ZeroGrad.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// Float32Data returns the backing slice of a Float32 tensor.
func (t *Tensor) Float32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("expected Float32 tensor, got %s", t.DType)
	}
	return t.Data.([]float32), nil
}

// Int32Data returns the backing slice of an Int32 tensor.
func (t *Tensor) Int32Data() ([]int32, error) {
	if t.DType != Int32 {
		return nil, fmt.Errorf("expected Int32 tensor, got %s", t.DType)
	}
	return t.Data.([]int32), nil
}

// Item returns the single value of a one-element Float32 tensor.
func (t *Tensor) Item() (float32, error) {
	if t.DType != Float32 {
		return 0, fmt.Errorf("Item requires a Float32 tensor, got %s", t.DType)
	}
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item requires a one-element tensor, got %d elements", t.NumElems)
	}
	return t.Data.([]float32)[0], nil
}

// SetData replaces the tensor contents in place. The new data must match the
// tensor's dtype and element count.
func (t *Tensor) SetData(data interface{}) error {
	return t.setData(data)
}

// Clone returns a deep copy of the tensor data. Gradient state is not copied.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		src := t.Data.([]float32)
		dst := make([]float32, len(src))
		copy(dst, src)
		return NewTensor(append([]int{}, t.Shape...), t.DType, t.Device, dst)
	case Int32:
		src := t.Data.([]int32)
		dst := make([]int32, len(src))
		copy(dst, src)
		return NewTensor(append([]int{}, t.Shape...), t.DType, t.Device, dst)
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}
}

// AccumulateGrad adds g to the tensor's gradient, allocating it on first use.
func (t *Tensor) AccumulateGrad(g *Tensor) error {
	if !t.requiresGrad {
		return fmt.Errorf("tensor does not require gradients")
	}
	if g.DType != Float32 || t.DType != Float32 {
		return fmt.Errorf("gradients are only supported for Float32 tensors")
	}
	if g.NumElems != t.NumElems {
		return fmt.Errorf("gradient size %d does not match tensor size %d", g.NumElems, t.NumElems)
	}
	if t.grad == nil {
		zero, err := Zeros(append([]int{}, t.Shape...), Float32, t.Device)
		if err != nil {
			return err
		}
		t.grad = zero
	}
	dst := t.grad.Data.([]float32)
	src := g.Data.([]float32)
	for i := range dst {
		dst[i] += src[i]
	}
	return nil
}

// ZeroGrad clears the gradients of every tensor in params. Tensors that never
// accumulated a gradient are left untouched.
func ZeroGrad(params []*Tensor) {
	for _, p := range params {
		if p.grad == nil {
			continue
		}
		data := p.grad.Data.([]float32)
		for i := range data {
			data[i] = 0
		}
	}
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
