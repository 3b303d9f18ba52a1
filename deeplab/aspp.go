package deeplab

import (
	"fmt"

	"github.com/abhay-venkatesh/deeplab-go/nn"
	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// ASPP is an atrous spatial pyramid pooling head: parallel 3x3 convolutions
// at several dilation rates over the same feature map, summed into one
// per-class logits map. Each branch keeps the input spatial size.
type ASPP struct {
	branches []nn.NamedModule
}

// NewASPP builds one classification branch per dilation rate.
func NewASPP(inChannels, nClasses int, rates []int) (*ASPP, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("ASPP requires at least one dilation rate")
	}
	a := &ASPP{}
	for i, rate := range rates {
		conv, err := nn.NewConv2d(inChannels, nClasses, 3, 1, rate, rate, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create ASPP branch %d (rate %d): %v", i, rate, err)
		}
		a.branches = append(a.branches, nn.NamedModule{Name: fmt.Sprintf("c%d", i), Module: conv})
	}
	return a, nil
}

func (a *ASPP) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var sum *tensor.Tensor
	for _, branch := range a.branches {
		out, err := branch.Module.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("ASPP branch %q failed: %v", branch.Name, err)
		}
		if sum == nil {
			sum = out
			continue
		}
		sum, err = tensor.Add(sum, out)
		if err != nil {
			return nil, fmt.Errorf("ASPP branch %q sum failed: %v", branch.Name, err)
		}
	}
	return sum, nil
}

func (a *ASPP) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	// The branch sum broadcasts the output gradient to every branch; the
	// input gradient is the sum of branch input gradients. Branches are
	// unwound in reverse to mirror Forward's cache order.
	var gradIn *tensor.Tensor
	for i := len(a.branches) - 1; i >= 0; i-- {
		branch := a.branches[i]
		g, err := branch.Module.Backward(gradOut)
		if err != nil {
			return nil, fmt.Errorf("ASPP branch %q backward failed: %v", branch.Name, err)
		}
		if gradIn == nil {
			gradIn = g
			continue
		}
		gradIn, err = tensor.Add(gradIn, g)
		if err != nil {
			return nil, fmt.Errorf("ASPP branch %q gradient sum failed: %v", branch.Name, err)
		}
	}
	return gradIn, nil
}

func (a *ASPP) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, branch := range a.branches {
		params = append(params, branch.Module.Parameters()...)
	}
	return params
}

func (a *ASPP) NamedChildren() []nn.NamedModule {
	return a.branches
}
