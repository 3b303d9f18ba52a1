package deeplab

import (
	"strings"

	"github.com/abhay-venkatesh/deeplab-go/nn"
	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// GroupKey selects one of the three fixed parameter groups used for
// differential learning rates.
type GroupKey string

const (
	// GroupBase covers weights and biases of every convolution under a
	// dilated-backbone ("layer") module. Scheduled at 1x the base rate.
	GroupBase GroupKey = "1x"
	// GroupASPPWeight covers weights of ASPP convolutions, scheduled at 10x.
	GroupASPPWeight GroupKey = "10x"
	// GroupASPPBias covers biases of ASPP convolutions, scheduled at 20x.
	GroupASPPBias GroupKey = "20x"
)

// ParameterGroups holds the three fixed groups. Membership is computed once
// at model construction and never changes; only the optimizer's per-group
// learning rates move during training.
type ParameterGroups struct {
	Base       []*tensor.Tensor
	ASPPWeight []*tensor.Tensor
	ASPPBias   []*tensor.Tensor
}

// ParamsForKey partitions a model's named modules by convolution name. A key
// that matches no module yields an empty slice, never an error. Ordering
// follows the named-module enumeration order.
func ParamsForKey(modules []nn.NamedModule, key GroupKey) []*tensor.Tensor {
	var out []*tensor.Tensor
	for _, m := range modules {
		conv, ok := m.Module.(*nn.Conv2d)
		if !ok {
			continue
		}
		switch key {
		case GroupBase:
			if strings.Contains(m.Name, "layer") {
				out = append(out, conv.Parameters()...)
			}
		case GroupASPPWeight:
			if strings.Contains(m.Name, "aspp") {
				out = append(out, conv.Weight)
			}
		case GroupASPPBias:
			if strings.Contains(m.Name, "aspp") && conv.Bias != nil {
				out = append(out, conv.Bias)
			}
		}
	}
	return out
}

// groupsFor builds all three groups from a named-module enumeration.
func groupsFor(modules []nn.NamedModule) ParameterGroups {
	return ParameterGroups{
		Base:       ParamsForKey(modules, GroupBase),
		ASPPWeight: ParamsForKey(modules, GroupASPPWeight),
		ASPPBias:   ParamsForKey(modules, GroupASPPBias),
	}
}
