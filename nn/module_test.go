package nn

import (
	"math"
	"testing"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

func TestNamedModulesQualifiedNames(t *testing.T) {
	inner := NewSequential().
		Add("conv1", mustConv(t, 1, 1)).
		Add("relu1", NewReLU())
	root := NewSequential().
		Add("layer1", inner).
		Add("head", mustConv(t, 1, 1))

	mods := NamedModules("", root)

	names := make(map[string]bool)
	for _, m := range mods {
		names[m.Name] = true
	}
	for _, want := range []string{"", "layer1", "layer1.conv1", "layer1.relu1", "head"} {
		if !names[want] {
			t.Errorf("missing qualified name %q in %v", want, names)
		}
	}
}

func TestSequentialForwardBackward(t *testing.T) {
	seq := NewSequential().
		Add("conv", mustConv(t, 1, 1)).
		Add("relu", NewReLU())

	x, _ := tensor.NewTensor([]int{1, 1, 2, 2}, tensor.Float32, tensor.CPU, []float32{1, -1, 2, -2})
	out, err := seq.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	grad, _ := tensor.Ones(out.Shape, tensor.Float32, tensor.CPU)
	gradIn, err := seq.Backward(grad)
	if err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	if !sameShape(gradIn.Shape, x.Shape) {
		t.Errorf("input gradient shape = %v, expected %v", gradIn.Shape, x.Shape)
	}
}

func TestReLUBackwardUsesStackedMasks(t *testing.T) {
	r := NewReLU()
	a, _ := tensor.NewTensor([]int{2}, tensor.Float32, tensor.CPU, []float32{1, -1})
	b, _ := tensor.NewTensor([]int{2}, tensor.Float32, tensor.CPU, []float32{-2, 2})

	if _, err := r.Forward(a); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Forward(b); err != nil {
		t.Fatal(err)
	}

	ones, _ := tensor.Ones([]int{2}, tensor.Float32, tensor.CPU)

	// Backward must consume caches in reverse order: b's mask first.
	gb, err := r.Backward(ones)
	if err != nil {
		t.Fatal(err)
	}
	if data := gb.Data.([]float32); data[0] != 0 || data[1] != 1 {
		t.Errorf("second-call gradient = %v, expected [0 1]", data)
	}

	ga, err := r.Backward(ones)
	if err != nil {
		t.Fatal(err)
	}
	if data := ga.Data.([]float32); data[0] != 1 || data[1] != 0 {
		t.Errorf("first-call gradient = %v, expected [1 0]", data)
	}

	if _, err := r.Backward(ones); err == nil {
		t.Error("expected error once all caches are consumed")
	}
}

func TestResizeBilinearIdentity(t *testing.T) {
	x, _ := tensor.NewTensor([]int{1, 1, 2, 2}, tensor.Float32, tensor.CPU, []float32{1, 2, 3, 4})
	out, err := ResizeBilinear(x, 2, 2)
	if err != nil {
		t.Fatalf("ResizeBilinear failed: %v", err)
	}
	got := out.Data.([]float32)
	for i, want := range []float32{1, 2, 3, 4} {
		if got[i] != want {
			t.Errorf("identity resize[%d] = %f, expected %f", i, got[i], want)
		}
	}
}

func TestResizeBilinearConstantField(t *testing.T) {
	// Interpolating a constant field must stay constant at any size.
	x, _ := tensor.NewTensor([]int{1, 1, 3, 3}, tensor.Float32, tensor.CPU, []float32{
		5, 5, 5,
		5, 5, 5,
		5, 5, 5,
	})
	out, err := ResizeBilinear(x, 5, 7)
	if err != nil {
		t.Fatalf("ResizeBilinear failed: %v", err)
	}
	for i, v := range out.Data.([]float32) {
		if math.Abs(float64(v)-5) > 1e-5 {
			t.Fatalf("output[%d] = %f, expected 5", i, v)
		}
	}
}

func TestResizeBilinearGradConservesMass(t *testing.T) {
	// The transpose operation redistributes but never creates gradient:
	// the sums must match since each output pixel's weights sum to 1.
	grad, _ := tensor.NewTensor([]int{1, 1, 4, 4}, tensor.Float32, tensor.CPU, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	back, err := ResizeBilinearGrad(grad, 2, 2)
	if err != nil {
		t.Fatalf("ResizeBilinearGrad failed: %v", err)
	}

	var sumIn, sumOut float64
	for _, v := range grad.Data.([]float32) {
		sumIn += float64(v)
	}
	for _, v := range back.Data.([]float32) {
		sumOut += float64(v)
	}
	if math.Abs(sumIn-sumOut) > 1e-4 {
		t.Errorf("gradient mass changed: in %f, out %f", sumIn, sumOut)
	}
}

func mustConv(t *testing.T, in, out int) *Conv2d {
	t.Helper()
	conv, err := NewConv2d(in, out, 3, 1, 1, 1, true)
	if err != nil {
		t.Fatalf("NewConv2d failed: %v", err)
	}
	return conv
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
