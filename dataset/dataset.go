// Package dataset loads segmentation samples and assembles them into training
// batches. Samples pair a float image tensor with an integer label map of the
// same spatial size.
package dataset

import (
	"fmt"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Sample is one training example: a [C,H,W] float image and a [H,W] integer
// label map.
type Sample struct {
	Image *tensor.Tensor
	Label *tensor.Tensor
}

// Batch stacks samples into [N,C,H,W] images and [N,H,W] labels.
type Batch struct {
	Images *tensor.Tensor
	Labels *tensor.Tensor
}

// Dataset provides random access to samples.
type Dataset interface {
	Len() int
	Get(i int) (*Sample, error)
}

// SimpleDataset serves preloaded in-memory samples.
type SimpleDataset struct {
	samples []*Sample
}

// NewSimpleDataset wraps the given samples.
func NewSimpleDataset(samples []*Sample) *SimpleDataset {
	return &SimpleDataset{samples: samples}
}

func (d *SimpleDataset) Len() int {
	return len(d.samples)
}

func (d *SimpleDataset) Get(i int) (*Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", i, len(d.samples))
	}
	return d.samples[i], nil
}

// Collate stacks samples into one batch. All samples must share image and
// label shapes.
func Collate(samples []*Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot collate an empty batch")
	}
	first := samples[0]
	if len(first.Image.Shape) != 3 {
		return nil, fmt.Errorf("sample images must be [C,H,W], got shape %v", first.Image.Shape)
	}
	if len(first.Label.Shape) != 2 {
		return nil, fmt.Errorf("sample labels must be [H,W], got shape %v", first.Label.Shape)
	}
	c, h, w := first.Image.Shape[0], first.Image.Shape[1], first.Image.Shape[2]

	n := len(samples)
	images := make([]float32, n*c*h*w)
	labels := make([]int32, n*h*w)
	for i, s := range samples {
		img, err := s.Image.Float32Data()
		if err != nil {
			return nil, fmt.Errorf("sample %d image: %v", i, err)
		}
		lbl, err := s.Label.Int32Data()
		if err != nil {
			return nil, fmt.Errorf("sample %d label: %v", i, err)
		}
		if len(img) != c*h*w || len(lbl) != h*w {
			return nil, fmt.Errorf("sample %d shape mismatch: image %v label %v, expected [%d,%d,%d] and [%d,%d]",
				i, s.Image.Shape, s.Label.Shape, c, h, w, h, w)
		}
		copy(images[i*c*h*w:], img)
		copy(labels[i*h*w:], lbl)
	}

	imgT, err := tensor.NewTensor([]int{n, c, h, w}, tensor.Float32, tensor.CPU, images)
	if err != nil {
		return nil, err
	}
	lblT, err := tensor.NewTensor([]int{n, h, w}, tensor.Int32, tensor.CPU, labels)
	if err != nil {
		return nil, err
	}
	return &Batch{Images: imgT, Labels: lblT}, nil
}
