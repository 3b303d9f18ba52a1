// Package optimizer implements the gradient-descent update rules used by the
// training loop. Parameters are organized into named groups so different
// parts of the network can train at different learning rates.
package optimizer

import (
	"fmt"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// ParamGroup is a set of parameters updated with shared hyperparameters.
// LRMult scales the base learning rate set through SetLearningRate.
type ParamGroup struct {
	Name        string
	Params      []*tensor.Tensor
	LR          float64
	WeightDecay float64
	LRMult      float64
}

// SGD is stochastic gradient descent with momentum and per-group L2 weight
// decay. Momentum buffers live on the CPU alongside the parameters.
type SGD struct {
	groups   []ParamGroup
	momentum float64
	velocity [][][]float32 // per group, per parameter
}

// NewSGD validates the groups and allocates momentum state.
func NewSGD(groups []ParamGroup, momentum float64) (*SGD, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("no parameter groups provided")
	}
	if momentum < 0 || momentum > 1.0 {
		return nil, fmt.Errorf("momentum must be in [0, 1], got %f", momentum)
	}

	names := make(map[string]bool)
	velocity := make([][][]float32, len(groups))
	for gi, g := range groups {
		if g.Name == "" {
			return nil, fmt.Errorf("parameter group %d has no name", gi)
		}
		if names[g.Name] {
			return nil, fmt.Errorf("duplicate parameter group name %q", g.Name)
		}
		names[g.Name] = true
		if g.LR < 0 {
			return nil, fmt.Errorf("group %q: learning rate cannot be negative: %f", g.Name, g.LR)
		}
		if g.WeightDecay < 0 {
			return nil, fmt.Errorf("group %q: weight decay cannot be negative: %f", g.Name, g.WeightDecay)
		}
		if g.LRMult <= 0 {
			return nil, fmt.Errorf("group %q: learning rate multiplier must be positive: %f", g.Name, g.LRMult)
		}
		velocity[gi] = make([][]float32, len(g.Params))
		for pi, p := range g.Params {
			if p == nil {
				return nil, fmt.Errorf("group %q: parameter %d is nil", g.Name, pi)
			}
			if p.DType != tensor.Float32 {
				return nil, fmt.Errorf("group %q: parameter %d is %v, expected Float32", g.Name, pi, p.DType)
			}
			velocity[gi][pi] = make([]float32, p.NumElems)
		}
	}

	return &SGD{groups: groups, momentum: momentum, velocity: velocity}, nil
}

// Step applies one update to every parameter that has a gradient.
// Parameters without gradients are skipped.
func (s *SGD) Step() error {
	for gi := range s.groups {
		g := &s.groups[gi]
		lr := float32(g.LR)
		wd := float32(g.WeightDecay)
		mom := float32(s.momentum)

		for pi, p := range g.Params {
			grad := p.Grad()
			if grad == nil {
				continue
			}
			w, err := p.Float32Data()
			if err != nil {
				return fmt.Errorf("group %q parameter %d: %v", g.Name, pi, err)
			}
			gData, err := grad.Float32Data()
			if err != nil {
				return fmt.Errorf("group %q parameter %d gradient: %v", g.Name, pi, err)
			}
			if len(gData) != len(w) {
				return fmt.Errorf("group %q parameter %d: gradient has %d elements, parameter has %d",
					g.Name, pi, len(gData), len(w))
			}

			v := s.velocity[gi][pi]
			for i := range w {
				d := gData[i] + wd*w[i]
				v[i] = mom*v[i] + d
				w[i] -= lr * v[i]
			}
		}
	}
	return nil
}

// ZeroGrad clears the gradients of every parameter in every group.
func (s *SGD) ZeroGrad() {
	for _, g := range s.groups {
		tensor.ZeroGrad(g.Params)
	}
}

// SetLearningRate sets each group's learning rate to base scaled by the
// group's multiplier.
func (s *SGD) SetLearningRate(base float64) {
	for gi := range s.groups {
		s.groups[gi].LR = base * s.groups[gi].LRMult
	}
}

// Groups exposes the live parameter groups.
func (s *SGD) Groups() []ParamGroup {
	return s.groups
}

// LearningRates reports the current learning rate of each group in order.
func (s *SGD) LearningRates() []float64 {
	lrs := make([]float64, len(s.groups))
	for i, g := range s.groups {
		lrs[i] = g.LR
	}
	return lrs
}
