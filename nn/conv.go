package nn

import (
	"fmt"
	"math"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Conv2d is a 2D convolution over [N,C,H,W] tensors with square kernels and
// symmetric padding. Dilation > 1 produces the atrous convolutions the
// dilated backbone and ASPP head are built from.
type Conv2d struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	Dilation    int

	Weight *tensor.Tensor // [outC, inC, k, k]
	Bias   *tensor.Tensor // [outC], nil when the layer has no bias

	inputs []*tensor.Tensor // Forward cache, consumed LIFO by Backward
}

// NewConv2d creates a convolution layer with Xavier-uniform weights and zero
// bias.
func NewConv2d(inChannels, outChannels, kernelSize, stride, padding, dilation int, bias bool) (*Conv2d, error) {
	if inChannels <= 0 || outChannels <= 0 {
		return nil, fmt.Errorf("channel counts must be positive, got in=%d out=%d", inChannels, outChannels)
	}
	if kernelSize <= 0 {
		return nil, fmt.Errorf("kernel size must be positive, got %d", kernelSize)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}
	if padding < 0 {
		return nil, fmt.Errorf("padding cannot be negative, got %d", padding)
	}
	if dilation <= 0 {
		return nil, fmt.Errorf("dilation must be positive, got %d", dilation)
	}

	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	weightData := make([]float32, outChannels*inChannels*kernelSize*kernelSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	weight, err := tensor.NewTensor([]int{outChannels, inChannels, kernelSize, kernelSize},
		tensor.Float32, tensor.CPU, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	conv := &Conv2d{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelSize:  kernelSize,
		Stride:      stride,
		Padding:     padding,
		Dilation:    dilation,
		Weight:      weight,
	}

	if bias {
		biasT, err := tensor.Zeros([]int{outChannels}, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		conv.Bias = biasT
	}

	return conv, nil
}

func (c *Conv2d) outputSize(in int) int {
	effective := c.Dilation*(c.KernelSize-1) + 1
	return (in+2*c.Padding-effective)/c.Stride + 1
}

// Forward computes the convolution and caches the input for Backward.
func (c *Conv2d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("Conv2d requires a [N,C,H,W] input, got shape %v", x.Shape)
	}
	if x.Shape[1] != c.InChannels {
		return nil, fmt.Errorf("input has %d channels, layer expects %d", x.Shape[1], c.InChannels)
	}

	n, inH, inW := x.Shape[0], x.Shape[2], x.Shape[3]
	outH := c.outputSize(inH)
	outW := c.outputSize(inW)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("input %dx%d too small for kernel %d dilation %d", inH, inW, c.KernelSize, c.Dilation)
	}

	input, err := x.Float32Data()
	if err != nil {
		return nil, err
	}
	weight := c.Weight.Data.([]float32)

	out := make([]float32, n*c.OutChannels*outH*outW)
	k := c.KernelSize

	for b := 0; b < n; b++ {
		for oc := 0; oc < c.OutChannels; oc++ {
			var biasVal float32
			if c.Bias != nil {
				biasVal = c.Bias.Data.([]float32)[oc]
			}
			outBase := ((b*c.OutChannels + oc) * outH) * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					sum := biasVal
					for ic := 0; ic < c.InChannels; ic++ {
						inBase := ((b*c.InChannels + ic) * inH) * inW
						wBase := ((oc*c.InChannels + ic) * k) * k
						for ky := 0; ky < k; ky++ {
							iy := oy*c.Stride - c.Padding + ky*c.Dilation
							if iy < 0 || iy >= inH {
								continue
							}
							for kx := 0; kx < k; kx++ {
								ix := ox*c.Stride - c.Padding + kx*c.Dilation
								if ix < 0 || ix >= inW {
									continue
								}
								sum += input[inBase+iy*inW+ix] * weight[wBase+ky*k+kx]
							}
						}
					}
					out[outBase+oy*outW+ox] = sum
				}
			}
		}
	}

	c.inputs = append(c.inputs, x)
	return tensor.NewTensor([]int{n, c.OutChannels, outH, outW}, tensor.Float32, x.Device, out)
}

// Backward accumulates weight and bias gradients and returns the gradient
// with respect to the cached input of the matching Forward call.
func (c *Conv2d) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(c.inputs) == 0 {
		return nil, fmt.Errorf("Backward called without a matching Forward")
	}
	x := c.inputs[len(c.inputs)-1]
	c.inputs = c.inputs[:len(c.inputs)-1]

	n, inH, inW := x.Shape[0], x.Shape[2], x.Shape[3]
	outH := c.outputSize(inH)
	outW := c.outputSize(inW)
	expected := []int{n, c.OutChannels, outH, outW}
	for i, dim := range expected {
		if gradOut.Shape[i] != dim {
			return nil, fmt.Errorf("gradient shape %v does not match output shape %v", gradOut.Shape, expected)
		}
	}

	input := x.Data.([]float32)
	weight := c.Weight.Data.([]float32)
	grad, err := gradOut.Float32Data()
	if err != nil {
		return nil, err
	}

	k := c.KernelSize
	gradW := make([]float32, len(weight))
	var gradB []float32
	if c.Bias != nil {
		gradB = make([]float32, c.OutChannels)
	}
	gradIn := make([]float32, len(input))

	for b := 0; b < n; b++ {
		for oc := 0; oc < c.OutChannels; oc++ {
			outBase := ((b*c.OutChannels + oc) * outH) * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					g := grad[outBase+oy*outW+ox]
					if g == 0 {
						continue
					}
					if gradB != nil {
						gradB[oc] += g
					}
					for ic := 0; ic < c.InChannels; ic++ {
						inBase := ((b*c.InChannels + ic) * inH) * inW
						wBase := ((oc*c.InChannels + ic) * k) * k
						for ky := 0; ky < k; ky++ {
							iy := oy*c.Stride - c.Padding + ky*c.Dilation
							if iy < 0 || iy >= inH {
								continue
							}
							for kx := 0; kx < k; kx++ {
								ix := ox*c.Stride - c.Padding + kx*c.Dilation
								if ix < 0 || ix >= inW {
									continue
								}
								gradW[wBase+ky*k+kx] += input[inBase+iy*inW+ix] * g
								gradIn[inBase+iy*inW+ix] += weight[wBase+ky*k+kx] * g
							}
						}
					}
				}
			}
		}
	}

	gradWT, err := tensor.NewTensor(append([]int{}, c.Weight.Shape...), tensor.Float32, x.Device, gradW)
	if err != nil {
		return nil, err
	}
	if err := c.Weight.AccumulateGrad(gradWT); err != nil {
		return nil, fmt.Errorf("failed to accumulate weight gradient: %v", err)
	}
	if c.Bias != nil {
		gradBT, err := tensor.NewTensor([]int{c.OutChannels}, tensor.Float32, x.Device, gradB)
		if err != nil {
			return nil, err
		}
		if err := c.Bias.AccumulateGrad(gradBT); err != nil {
			return nil, fmt.Errorf("failed to accumulate bias gradient: %v", err)
		}
	}

	return tensor.NewTensor(append([]int{}, x.Shape...), tensor.Float32, x.Device, gradIn)
}

// Parameters returns the trainable tensors: weight, then bias when present.
func (c *Conv2d) Parameters() []*tensor.Tensor {
	if c.Bias != nil {
		return []*tensor.Tensor{c.Weight, c.Bias}
	}
	return []*tensor.Tensor{c.Weight}
}
