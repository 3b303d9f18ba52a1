package nn

import (
	"fmt"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Sequential chains named child modules in definition order.
type Sequential struct {
	children []NamedModule
}

func NewSequential() *Sequential {
	return &Sequential{}
}

// Add appends a named child and returns the container for chaining.
func (s *Sequential) Add(name string, m Module) *Sequential {
	s.children = append(s.children, NamedModule{Name: name, Module: m})
	return s
}

func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	for _, child := range s.children {
		var err error
		out, err = child.Module.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("forward through %q failed: %v", child.Name, err)
		}
	}
	return out, nil
}

func (s *Sequential) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	grad := gradOut
	for i := len(s.children) - 1; i >= 0; i-- {
		child := s.children[i]
		var err error
		grad, err = child.Module.Backward(grad)
		if err != nil {
			return nil, fmt.Errorf("backward through %q failed: %v", child.Name, err)
		}
	}
	return grad, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, child := range s.children {
		params = append(params, child.Module.Parameters()...)
	}
	return params
}

func (s *Sequential) NamedChildren() []NamedModule {
	return s.children
}
