// Package deeplab assembles the segmentation network: a dilated convolutional
// backbone, an ASPP classification head, and a multi-scale (MSC) wrapper that
// evaluates the shared trunk over an image pyramid and max-fuses the
// per-scale predictions.
package deeplab

import (
	"fmt"

	"github.com/abhay-venkatesh/deeplab-go/nn"
	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Config describes the network shape.
type Config struct {
	NClasses   int
	InChannels int
	Width      int       // backbone channel width
	Scales     []float64 // extra pyramid scales evaluated beyond 1.0
	ASPPRates  []int     // dilation rates of the ASPP branches
}

// DefaultConfig mirrors the reference architecture's conventions: a
// three-stage dilated trunk, pyramid scales {0.75, 0.5}, and ASPP rates
// {6, 12, 18, 24}.
func DefaultConfig(nClasses int) Config {
	return Config{
		NClasses:   nClasses,
		InChannels: 3,
		Width:      16,
		Scales:     []float64{0.75, 0.5},
		ASPPRates:  []int{6, 12, 18, 24},
	}
}

// Model is the trainable multi-scale segmentation network. Forward returns
// one logits tensor per pyramid level plus a max-fused map; Backward accepts
// the matching per-output gradients and accumulates parameter gradients.
type Model struct {
	cfg    Config
	base   *nn.Sequential
	aspp   *ASPP
	groups ParameterGroups

	msc *mscState
}

type mscState struct {
	sizes    [][2]int // logits height/width per pyramid level
	fusedArg []int32  // winning level per fused element
	batch    int
	baseH    int
	baseW    int
}

// New constructs the model and computes its parameter groups once.
func New(cfg Config) (*Model, error) {
	if cfg.NClasses <= 0 {
		return nil, fmt.Errorf("number of classes must be positive, got %d", cfg.NClasses)
	}
	if cfg.InChannels <= 0 {
		return nil, fmt.Errorf("input channel count must be positive, got %d", cfg.InChannels)
	}
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("backbone width must be positive, got %d", cfg.Width)
	}
	for _, s := range cfg.Scales {
		if s <= 0 || s > 1 {
			return nil, fmt.Errorf("pyramid scales must be in (0, 1], got %f", s)
		}
	}
	if len(cfg.ASPPRates) == 0 {
		return nil, fmt.Errorf("at least one ASPP rate is required")
	}

	base := nn.NewSequential()
	channels := cfg.InChannels
	for i, dilation := range []int{1, 2, 4} {
		stage := nn.NewSequential()
		conv, err := nn.NewConv2d(channels, cfg.Width, 3, 1, dilation, dilation, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create backbone stage %d: %v", i+1, err)
		}
		stage.Add("conv", conv).Add("relu", nn.NewReLU())
		base.Add(fmt.Sprintf("layer%d", i+1), stage)
		channels = cfg.Width
	}

	aspp, err := NewASPP(cfg.Width, cfg.NClasses, cfg.ASPPRates)
	if err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg, base: base, aspp: aspp}
	m.groups = groupsFor(m.namedModules())
	return m, nil
}

// namedModules enumerates every submodule with its qualified dotted name.
func (m *Model) namedModules() []nn.NamedModule {
	var out []nn.NamedModule
	for _, child := range m.NamedChildren() {
		out = append(out, nn.NamedModules(child.Name, child.Module)...)
	}
	return out
}

// NumOutputs reports how many logits tensors Forward produces: one per
// pyramid level plus the fused map.
func (m *Model) NumOutputs() int {
	return len(m.cfg.Scales) + 2
}

// ParameterGroups returns the fixed base / ASPP-weight / ASPP-bias groups.
func (m *Model) ParameterGroups() ParameterGroups {
	return m.groups
}

// Forward evaluates the trunk over the image pyramid. The result holds the
// full-scale logits first, then one logits tensor per extra scale, then the
// elementwise max of all levels upsampled to the full-scale resolution.
func (m *Model) Forward(images *tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(images.Shape) != 4 {
		return nil, fmt.Errorf("model requires a [N,C,H,W] input, got shape %v", images.Shape)
	}

	inH, inW := images.Shape[2], images.Shape[3]
	pyramid := []*tensor.Tensor{images}
	for _, s := range m.cfg.Scales {
		h := scaledSize(inH, s)
		w := scaledSize(inW, s)
		scaled, err := nn.ResizeBilinear(images, h, w)
		if err != nil {
			return nil, fmt.Errorf("failed to build %.2fx pyramid level: %v", s, err)
		}
		pyramid = append(pyramid, scaled)
	}

	state := &mscState{batch: images.Shape[0]}
	var logits []*tensor.Tensor
	for i, level := range pyramid {
		features, err := m.base.Forward(level)
		if err != nil {
			return nil, fmt.Errorf("backbone failed at pyramid level %d: %v", i, err)
		}
		out, err := m.aspp.Forward(features)
		if err != nil {
			return nil, fmt.Errorf("ASPP failed at pyramid level %d: %v", i, err)
		}
		logits = append(logits, out)
		state.sizes = append(state.sizes, [2]int{out.Shape[2], out.Shape[3]})
	}

	state.baseH = logits[0].Shape[2]
	state.baseW = logits[0].Shape[3]

	fused, arg, err := maxFuse(logits, state.baseH, state.baseW)
	if err != nil {
		return nil, err
	}
	state.fusedArg = arg
	m.msc = state

	return append(logits, fused), nil
}

// Backward takes one gradient per Forward output (pyramid levels then fused
// map) and accumulates parameter gradients through the shared trunk.
func (m *Model) Backward(grads []*tensor.Tensor) error {
	if m.msc == nil {
		return fmt.Errorf("Backward called without a matching Forward")
	}
	state := m.msc
	m.msc = nil

	levels := len(state.sizes)
	if len(grads) != levels+1 {
		return fmt.Errorf("expected %d gradients, got %d", levels+1, len(grads))
	}

	// Route the fused-map gradient to the level that won each max.
	fusedGrad, err := grads[levels].Float32Data()
	if err != nil {
		return err
	}
	fusedShape := []int{state.batch, m.cfg.NClasses, state.baseH, state.baseW}
	routed := make([][]float32, levels)
	for i := range routed {
		routed[i] = make([]float32, len(fusedGrad))
	}
	for i, g := range fusedGrad {
		routed[state.fusedArg[i]][i] += g
	}

	// Total per-level gradient: the direct loss gradient plus the routed
	// fused gradient mapped back down to the level's own resolution.
	totals := make([]*tensor.Tensor, levels)
	for i := 0; i < levels; i++ {
		routedT, err := tensor.NewTensor(fusedShape, tensor.Float32, grads[i].Device, routed[i])
		if err != nil {
			return err
		}
		h, w := state.sizes[i][0], state.sizes[i][1]
		if h != state.baseH || w != state.baseW {
			routedT, err = nn.ResizeBilinearGrad(routedT, h, w)
			if err != nil {
				return fmt.Errorf("failed to downscale fused gradient for level %d: %v", i, err)
			}
		}
		totals[i], err = tensor.Add(grads[i], routedT)
		if err != nil {
			return fmt.Errorf("gradient merge failed for level %d: %v", i, err)
		}
	}

	// Unwind the shared trunk in reverse pyramid order so the module caches
	// pop in the order they were pushed.
	for i := levels - 1; i >= 0; i-- {
		featureGrad, err := m.aspp.Backward(totals[i])
		if err != nil {
			return fmt.Errorf("ASPP backward failed at pyramid level %d: %v", i, err)
		}
		if _, err := m.base.Backward(featureGrad); err != nil {
			return fmt.Errorf("backbone backward failed at pyramid level %d: %v", i, err)
		}
	}

	return nil
}

func (m *Model) Parameters() []*tensor.Tensor {
	return append(m.base.Parameters(), m.aspp.Parameters()...)
}

// NamedParameters maps qualified tensor names ("base.layer1.conv.weight") to
// parameter tensors, for checkpoint save and restore.
func (m *Model) NamedParameters() map[string]*tensor.Tensor {
	params := make(map[string]*tensor.Tensor)
	for _, mod := range m.namedModules() {
		conv, ok := mod.Module.(*nn.Conv2d)
		if !ok {
			continue
		}
		params[mod.Name+".weight"] = conv.Weight
		if conv.Bias != nil {
			params[mod.Name+".bias"] = conv.Bias
		}
	}
	return params
}

func (m *Model) NamedChildren() []nn.NamedModule {
	return []nn.NamedModule{
		{Name: "base", Module: m.base},
		{Name: "aspp", Module: m.aspp},
	}
}

func scaledSize(size int, scale float64) int {
	s := int(float64(size)*scale + 0.5)
	if s < 1 {
		s = 1
	}
	return s
}

// maxFuse upsamples every level to the full-scale resolution and takes the
// elementwise max, recording which level supplied each element.
func maxFuse(logits []*tensor.Tensor, baseH, baseW int) (*tensor.Tensor, []int32, error) {
	upsampled := make([][]float32, len(logits))
	for i, l := range logits {
		up := l
		if l.Shape[2] != baseH || l.Shape[3] != baseW {
			var err error
			up, err = nn.ResizeBilinear(l, baseH, baseW)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to upsample level %d logits: %v", i, err)
			}
		}
		data, err := up.Float32Data()
		if err != nil {
			return nil, nil, err
		}
		upsampled[i] = data
	}

	fused := make([]float32, len(upsampled[0]))
	arg := make([]int32, len(fused))
	copy(fused, upsampled[0])
	for level := 1; level < len(upsampled); level++ {
		for i, v := range upsampled[level] {
			if v > fused[i] {
				fused[i] = v
				arg[i] = int32(level)
			}
		}
	}

	shape := []int{logits[0].Shape[0], logits[0].Shape[1], baseH, baseW}
	fusedT, err := tensor.NewTensor(shape, tensor.Float32, logits[0].Device, fused)
	if err != nil {
		return nil, nil, err
	}
	return fusedT, arg, nil
}
