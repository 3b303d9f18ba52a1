package training

import (
	"math"
	"testing"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

func logitsAndLabels(t *testing.T, logits []float32, shape []int, labels []int32, labelShape []int) (*tensor.Tensor, *tensor.Tensor) {
	t.Helper()
	lg, err := tensor.NewTensor(shape, tensor.Float32, tensor.CPU, logits)
	if err != nil {
		t.Fatalf("failed to create logits: %v", err)
	}
	lb, err := tensor.NewTensor(labelShape, tensor.Int32, tensor.CPU, labels)
	if err != nil {
		t.Fatalf("failed to create labels: %v", err)
	}
	return lg, lb
}

func TestCrossEntropyUniformLogits(t *testing.T) {
	c := NewCrossEntropyLoss2d(255)
	lg, lb := logitsAndLabels(t, []float32{0, 0}, []int{1, 2, 1, 1}, []int32{0}, []int{1, 1, 1})

	loss, grad, err := c.Forward(lg, lb)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if math.Abs(loss-math.Ln2) > 1e-6 {
		t.Errorf("expected loss ln(2), got %f", loss)
	}
	g, _ := grad.Float32Data()
	want := []float64{-0.5, 0.5}
	for i := range want {
		if math.Abs(float64(g[i])-want[i]) > 1e-6 {
			t.Errorf("gradient %d: expected %f, got %f", i, want[i], g[i])
		}
	}
}

func TestCrossEntropyIgnoredPixelsContributeNothing(t *testing.T) {
	c := NewCrossEntropyLoss2d(255)
	// Two pixels, second one ignored.
	lg, lb := logitsAndLabels(t,
		[]float32{0, 1, 0, 1}, []int{1, 2, 1, 2},
		[]int32{0, 255}, []int{1, 1, 2})

	loss, grad, err := c.Forward(lg, lb)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	// Only the first pixel counts: softmax(0, 0) with label 0.
	if math.Abs(loss-math.Ln2) > 1e-6 {
		t.Errorf("expected loss ln(2), got %f", loss)
	}
	g, _ := grad.Float32Data()
	// Layout [1,2,1,2]: class 0 pixels then class 1 pixels.
	if g[1] != 0 || g[3] != 0 {
		t.Errorf("ignored pixel leaked gradient: %v", g)
	}
	if math.Abs(float64(g[0])+0.5) > 1e-6 || math.Abs(float64(g[2])-0.5) > 1e-6 {
		t.Errorf("valid pixel gradient wrong: %v", g)
	}
}

func TestCrossEntropyAllIgnored(t *testing.T) {
	c := NewCrossEntropyLoss2d(255)
	lg, lb := logitsAndLabels(t, []float32{0, 0}, []int{1, 2, 1, 1}, []int32{255}, []int{1, 1, 1})

	loss, grad, err := c.Forward(lg, lb)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if loss != 0 {
		t.Errorf("expected 0 loss with no valid pixels, got %f", loss)
	}
	g, _ := grad.Float32Data()
	for i, v := range g {
		if v != 0 {
			t.Errorf("gradient %d: expected 0, got %f", i, v)
		}
	}
}

func TestCrossEntropyMeansOverValidPixels(t *testing.T) {
	c := NewCrossEntropyLoss2d(255)
	// Four identical pixels: the mean equals the single-pixel loss and each
	// pixel's gradient carries a 1/4 share.
	lg, lb := logitsAndLabels(t,
		[]float32{0, 0, 0, 0, 0, 0, 0, 0}, []int{1, 2, 2, 2},
		[]int32{0, 0, 0, 0}, []int{1, 2, 2})

	loss, grad, err := c.Forward(lg, lb)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if math.Abs(loss-math.Ln2) > 1e-6 {
		t.Errorf("expected loss ln(2), got %f", loss)
	}
	g, _ := grad.Float32Data()
	if math.Abs(float64(g[0])+0.125) > 1e-6 {
		t.Errorf("expected per-pixel gradient -0.125, got %f", g[0])
	}
}

func TestCrossEntropyRejectsBadInputs(t *testing.T) {
	c := NewCrossEntropyLoss2d(255)

	lg, lb := logitsAndLabels(t, []float32{0, 0}, []int{1, 2, 1, 1}, []int32{3}, []int{1, 1, 1})
	if _, _, err := c.Forward(lg, lb); err == nil {
		t.Error("expected error for out-of-range label")
	}

	lg2, lb2 := logitsAndLabels(t, []float32{0, 0}, []int{1, 2, 1, 1}, []int32{0, 0}, []int{1, 1, 2})
	if _, _, err := c.Forward(lg2, lb2); err == nil {
		t.Error("expected error for mismatched label shape")
	}
}
