package training

import (
	"fmt"
	"math"
)

// PolyLR implements polynomial learning rate decay:
//
//	lr(iter) = baseLR * (1 - iter/maxIter)^power
//
// The schedule only fires on iterations that are multiples of the decay
// interval and never past maxIter. Iteration 0 always fires, yielding the
// base rate unchanged.
type PolyLR struct {
	baseLR  float64
	maxIter int
	decay   int
	power   float64
}

// NewPolyLR validates the schedule up front. A non-positive maxIter or decay
// interval is a configuration error, not a runtime condition.
func NewPolyLR(baseLR float64, maxIter, decay int, power float64) (*PolyLR, error) {
	if baseLR < 0 {
		return nil, fmt.Errorf("base learning rate cannot be negative: %f", baseLR)
	}
	if maxIter <= 0 {
		return nil, fmt.Errorf("maxIter must be positive, got %d", maxIter)
	}
	if decay <= 0 {
		return nil, fmt.Errorf("decay interval must be positive, got %d", decay)
	}
	return &PolyLR{baseLR: baseLR, maxIter: maxIter, decay: decay, power: power}, nil
}

// LR returns the learning rate for the given iteration and whether the
// schedule fires at it. When it does not fire the previous rate stays in
// effect.
func (p *PolyLR) LR(iter int) (float64, bool) {
	if iter < 0 {
		return 0, false
	}
	if iter%p.decay != 0 || iter > p.maxIter {
		return 0, false
	}
	frac := 1.0 - float64(iter)/float64(p.maxIter)
	return p.baseLR * math.Pow(frac, p.power), true
}

// BaseLR returns the schedule's initial rate.
func (p *PolyLR) BaseLR() float64 {
	return p.baseLR
}
