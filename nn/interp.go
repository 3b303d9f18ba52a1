package nn

import (
	"fmt"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

type bilinearTap struct {
	lo, hi int
	weight float64 // weight of hi; lo gets 1-weight
}

// bilinearTaps precomputes, for every destination index, the two source
// indices and blend weight used by half-pixel-centered bilinear resampling.
func bilinearTaps(in, out int) []bilinearTap {
	taps := make([]bilinearTap, out)
	scale := float64(in) / float64(out)
	for d := 0; d < out; d++ {
		src := (float64(d)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		lo := int(src)
		if lo > in-1 {
			lo = in - 1
		}
		hi := lo + 1
		if hi > in-1 {
			hi = in - 1
		}
		taps[d] = bilinearTap{lo: lo, hi: hi, weight: src - float64(lo)}
	}
	return taps
}

// ResizeBilinear resamples a [N,C,H,W] Float32 tensor to [N,C,outH,outW]
// with half-pixel-centered bilinear interpolation.
func ResizeBilinear(x *tensor.Tensor, outH, outW int) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("ResizeBilinear requires a [N,C,H,W] tensor, got shape %v", x.Shape)
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", outH, outW)
	}
	input, err := x.Float32Data()
	if err != nil {
		return nil, err
	}

	n, c, inH, inW := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if inH == outH && inW == outW {
		return x.Clone()
	}

	rowTaps := bilinearTaps(inH, outH)
	colTaps := bilinearTaps(inW, outW)

	out := make([]float32, n*c*outH*outW)
	for plane := 0; plane < n*c; plane++ {
		srcBase := plane * inH * inW
		dstBase := plane * outH * outW
		for y := 0; y < outH; y++ {
			rt := rowTaps[y]
			for x2 := 0; x2 < outW; x2++ {
				ct := colTaps[x2]
				v00 := float64(input[srcBase+rt.lo*inW+ct.lo])
				v01 := float64(input[srcBase+rt.lo*inW+ct.hi])
				v10 := float64(input[srcBase+rt.hi*inW+ct.lo])
				v11 := float64(input[srcBase+rt.hi*inW+ct.hi])
				top := v00*(1-ct.weight) + v01*ct.weight
				bottom := v10*(1-ct.weight) + v11*ct.weight
				out[dstBase+y*outW+x2] = float32(top*(1-rt.weight) + bottom*rt.weight)
			}
		}
	}

	return tensor.NewTensor([]int{n, c, outH, outW}, tensor.Float32, x.Device, out)
}

// ResizeBilinearGrad is the transpose of ResizeBilinear: it maps a gradient
// at the output resolution back to a gradient at the [inH,inW] input
// resolution, distributing each output gradient over the source pixels it
// was blended from.
func ResizeBilinearGrad(gradOut *tensor.Tensor, inH, inW int) (*tensor.Tensor, error) {
	if len(gradOut.Shape) != 4 {
		return nil, fmt.Errorf("ResizeBilinearGrad requires a [N,C,H,W] tensor, got shape %v", gradOut.Shape)
	}
	grad, err := gradOut.Float32Data()
	if err != nil {
		return nil, err
	}

	n, c, outH, outW := gradOut.Shape[0], gradOut.Shape[1], gradOut.Shape[2], gradOut.Shape[3]
	if inH == outH && inW == outW {
		return gradOut.Clone()
	}

	rowTaps := bilinearTaps(inH, outH)
	colTaps := bilinearTaps(inW, outW)

	out := make([]float32, n*c*inH*inW)
	for plane := 0; plane < n*c; plane++ {
		srcBase := plane * inH * inW
		dstBase := plane * outH * outW
		for y := 0; y < outH; y++ {
			rt := rowTaps[y]
			for x := 0; x < outW; x++ {
				ct := colTaps[x]
				g := float64(grad[dstBase+y*outW+x])
				if g == 0 {
					continue
				}
				out[srcBase+rt.lo*inW+ct.lo] += float32(g * (1 - rt.weight) * (1 - ct.weight))
				out[srcBase+rt.lo*inW+ct.hi] += float32(g * (1 - rt.weight) * ct.weight)
				out[srcBase+rt.hi*inW+ct.lo] += float32(g * rt.weight * (1 - ct.weight))
				out[srcBase+rt.hi*inW+ct.hi] += float32(g * rt.weight * ct.weight)
			}
		}
	}

	return tensor.NewTensor([]int{n, c, inH, inW}, tensor.Float32, gradOut.Device, out)
}
