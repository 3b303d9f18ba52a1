package nn

import (
	"fmt"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct {
	masks [][]bool
}

func NewReLU() *ReLU {
	return &ReLU{}
}

func (r *ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	input, err := x.Float32Data()
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(input))
	mask := make([]bool, len(input))
	for i, v := range input {
		if v > 0 {
			out[i] = v
			mask[i] = true
		}
	}
	r.masks = append(r.masks, mask)

	return tensor.NewTensor(append([]int{}, x.Shape...), tensor.Float32, x.Device, out)
}

func (r *ReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(r.masks) == 0 {
		return nil, fmt.Errorf("Backward called without a matching Forward")
	}
	mask := r.masks[len(r.masks)-1]
	r.masks = r.masks[:len(r.masks)-1]

	grad, err := gradOut.Float32Data()
	if err != nil {
		return nil, err
	}
	if len(grad) != len(mask) {
		return nil, fmt.Errorf("gradient size %d does not match cached activation size %d", len(grad), len(mask))
	}

	out := make([]float32, len(grad))
	for i, pass := range mask {
		if pass {
			out[i] = grad[i]
		}
	}

	return tensor.NewTensor(append([]int{}, gradOut.Shape...), tensor.Float32, gradOut.Device, out)
}

func (r *ReLU) Parameters() []*tensor.Tensor {
	return nil
}
