package tensor

import (
	"fmt"
)

// ResizeNearest resamples a [N,H,W] map to [N,outH,outW] using
// nearest-neighbor interpolation. The source pixel for destination index d is
// floor(d * in/out), matching the convention used for resampling label maps
// to the spatial resolution of each output scale.
func ResizeNearest(t *Tensor, outH, outW int) (*Tensor, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("ResizeNearest requires a [N,H,W] tensor, got shape %v", t.Shape)
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", outH, outW)
	}

	n, inH, inW := t.Shape[0], t.Shape[1], t.Shape[2]
	if inH == outH && inW == outW {
		return t.Clone()
	}

	scaleH := float64(inH) / float64(outH)
	scaleW := float64(inW) / float64(outW)

	srcRow := make([]int, outH)
	for y := 0; y < outH; y++ {
		sy := int(float64(y) * scaleH)
		if sy >= inH {
			sy = inH - 1
		}
		srcRow[y] = sy
	}
	srcCol := make([]int, outW)
	for x := 0; x < outW; x++ {
		sx := int(float64(x) * scaleW)
		if sx >= inW {
			sx = inW - 1
		}
		srcCol[x] = sx
	}

	outShape := []int{n, outH, outW}
	switch t.DType {
	case Int32:
		src := t.Data.([]int32)
		dst := make([]int32, n*outH*outW)
		for b := 0; b < n; b++ {
			srcBase := b * inH * inW
			dstBase := b * outH * outW
			for y := 0; y < outH; y++ {
				rowBase := srcBase + srcRow[y]*inW
				outBase := dstBase + y*outW
				for x := 0; x < outW; x++ {
					dst[outBase+x] = src[rowBase+srcCol[x]]
				}
			}
		}
		return NewTensor(outShape, Int32, t.Device, dst)
	case Float32:
		src := t.Data.([]float32)
		dst := make([]float32, n*outH*outW)
		for b := 0; b < n; b++ {
			srcBase := b * inH * inW
			dstBase := b * outH * outW
			for y := 0; y < outH; y++ {
				rowBase := srcBase + srcRow[y]*inW
				outBase := dstBase + y*outW
				for x := 0; x < outW; x++ {
					dst[outBase+x] = src[rowBase+srcCol[x]]
				}
			}
		}
		return NewTensor(outShape, Float32, t.Device, dst)
	default:
		return nil, fmt.Errorf("unsupported dtype for ResizeNearest: %s", t.DType)
	}
}
