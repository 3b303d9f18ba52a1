// Package nn provides the small set of neural-network building blocks the
// segmentation models are assembled from. Modules carry their own parameters
// and compute gradients explicitly: Forward caches whatever the matching
// Backward call needs, and Backward accumulates parameter gradients while
// returning the gradient with respect to the module input.
//
// Forward calls may be nested or repeated before Backward runs (the
// multi-scale model reuses one trunk for several input scales), so modules
// keep their per-call caches as stacks: Backward calls must mirror Forward
// calls in reverse order.
package nn

import (
	"math/rand"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Global random source for deterministic weight initialization.
var globalRng = rand.New(rand.NewSource(1))

// SetRandomSeed resets the global source used for weight initialization.
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Module is a differentiable network component.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	// Backward consumes the gradient of the loss with respect to the most
	// recent un-consumed Forward output, accumulates parameter gradients,
	// and returns the gradient with respect to that Forward's input.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// NamedModule pairs a module with its qualified dotted name.
type NamedModule struct {
	Name   string
	Module Module
}

// Container is implemented by modules that own named children.
type Container interface {
	NamedChildren() []NamedModule
}

// NamedModules enumerates root and every descendant module in definition
// order, with dotted qualified names ("base.layer1.conv1"). The root itself
// is listed under the given name (usually "").
func NamedModules(name string, root Module) []NamedModule {
	out := []NamedModule{{Name: name, Module: root}}
	container, ok := root.(Container)
	if !ok {
		return out
	}
	for _, child := range container.NamedChildren() {
		childName := child.Name
		if name != "" {
			childName = name + "." + child.Name
		}
		out = append(out, NamedModules(childName, child.Module)...)
	}
	return out
}
