package training

import (
	"fmt"
	"math"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// CrossEntropyLoss2d is per-pixel softmax cross-entropy over [N,C,H,W]
// logits with [N,H,W] integer labels. Pixels carrying the ignore label
// contribute neither to the loss nor to the gradient; the loss is averaged
// over the remaining pixels.
type CrossEntropyLoss2d struct {
	IgnoreLabel int32
}

// NewCrossEntropyLoss2d creates the criterion with the given ignore label.
func NewCrossEntropyLoss2d(ignoreLabel int32) *CrossEntropyLoss2d {
	return &CrossEntropyLoss2d{IgnoreLabel: ignoreLabel}
}

// Forward computes the mean loss and the gradient with respect to logits.
// Labels must match the logits spatial size; label values outside [0, C)
// that are not the ignore label are an error.
func (c *CrossEntropyLoss2d) Forward(logits, labels *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if len(logits.Shape) != 4 {
		return 0, nil, fmt.Errorf("logits must be [N,C,H,W], got shape %v", logits.Shape)
	}
	if len(labels.Shape) != 3 {
		return 0, nil, fmt.Errorf("labels must be [N,H,W], got shape %v", labels.Shape)
	}
	n, classes, h, w := logits.Shape[0], logits.Shape[1], logits.Shape[2], logits.Shape[3]
	if labels.Shape[0] != n || labels.Shape[1] != h || labels.Shape[2] != w {
		return 0, nil, fmt.Errorf("labels shape %v does not match logits spatial shape [%d,%d,%d]",
			labels.Shape, n, h, w)
	}

	logitData, err := logits.Float32Data()
	if err != nil {
		return 0, nil, err
	}
	labelData, err := labels.Int32Data()
	if err != nil {
		return 0, nil, err
	}

	gradData := make([]float32, len(logitData))
	plane := h * w
	probs := make([]float64, classes)

	var lossSum float64
	var count int
	for b := 0; b < n; b++ {
		for p := 0; p < plane; p++ {
			label := labelData[b*plane+p]
			if label == c.IgnoreLabel {
				continue
			}
			if label < 0 || int(label) >= classes {
				return 0, nil, fmt.Errorf("label %d out of range for %d classes", label, classes)
			}

			// Numerically stable softmax over the class axis.
			base := b * classes * plane
			maxLogit := float64(logitData[base+p])
			for cls := 1; cls < classes; cls++ {
				v := float64(logitData[base+cls*plane+p])
				if v > maxLogit {
					maxLogit = v
				}
			}
			var sum float64
			for cls := 0; cls < classes; cls++ {
				probs[cls] = math.Exp(float64(logitData[base+cls*plane+p]) - maxLogit)
				sum += probs[cls]
			}
			for cls := 0; cls < classes; cls++ {
				probs[cls] /= sum
			}

			lossSum += -math.Log(math.Max(probs[label], 1e-30))
			for cls := 0; cls < classes; cls++ {
				g := probs[cls]
				if int32(cls) == label {
					g -= 1.0
				}
				gradData[base+cls*plane+p] = float32(g)
			}
			count++
		}
	}

	grad, err := tensor.NewTensor(append([]int{}, logits.Shape...), tensor.Float32, logits.Device, gradData)
	if err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, grad, nil
	}

	// The mean over valid pixels divides both the loss and its gradient.
	if err := tensor.Scale(grad, 1.0/float64(count)); err != nil {
		return 0, nil, err
	}
	return lossSum / float64(count), grad, nil
}
