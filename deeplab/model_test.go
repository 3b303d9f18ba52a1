package deeplab

import (
	"testing"

	"github.com/abhay-venkatesh/deeplab-go/nn"
	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

func TestModelForwardShapes(t *testing.T) {
	m := testModel(t)

	images, err := tensor.Ones([]int{1, 3, 8, 8}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	outputs, err := m.Forward(images)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if len(outputs) != m.NumOutputs() {
		t.Fatalf("expected %d outputs, got %d", m.NumOutputs(), len(outputs))
	}

	wantShapes := [][]int{
		{1, 3, 8, 8}, // full scale
		{1, 3, 4, 4}, // 0.5 scale
		{1, 3, 8, 8}, // fused
	}
	for i, want := range wantShapes {
		got := outputs[i].Shape
		if len(got) != 4 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] || got[3] != want[3] {
			t.Errorf("output %d: expected shape %v, got %v", i, want, got)
		}
	}
}

func TestModelFusedOutputIsElementwiseMax(t *testing.T) {
	m := testModel(t)

	images, err := tensor.Ones([]int{1, 3, 8, 8}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	outputs, err := m.Forward(images)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	fused, err := outputs[2].Float32Data()
	if err != nil {
		t.Fatalf("failed to read fused logits: %v", err)
	}

	// The fused map dominates every level after upsampling to full scale.
	for level := 0; level < 2; level++ {
		up := outputs[level]
		if up.Shape[2] != 8 || up.Shape[3] != 8 {
			up, err = nn.ResizeBilinear(up, 8, 8)
			if err != nil {
				t.Fatalf("failed to upsample level %d: %v", level, err)
			}
		}
		data, err := up.Float32Data()
		if err != nil {
			t.Fatalf("failed to read level %d logits: %v", level, err)
		}
		for i, v := range data {
			if fused[i] < v-1e-6 {
				t.Fatalf("fused[%d]=%f is below level %d value %f", i, fused[i], level, v)
			}
		}
	}
}

func TestModelBackwardAccumulatesParameterGradients(t *testing.T) {
	m := testModel(t)

	images, err := tensor.Ones([]int{1, 3, 8, 8}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	outputs, err := m.Forward(images)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	grads := make([]*tensor.Tensor, len(outputs))
	for i, out := range outputs {
		grads[i], err = tensor.Ones(out.Shape, tensor.Float32, tensor.CPU)
		if err != nil {
			t.Fatalf("failed to create gradient %d: %v", i, err)
		}
	}
	if err := m.Backward(grads); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	for i, p := range m.Parameters() {
		if p.Grad() == nil {
			t.Errorf("parameter %d has no gradient after backward", i)
		}
	}
}

func TestModelBackwardWithoutForward(t *testing.T) {
	m := testModel(t)
	if err := m.Backward(nil); err == nil {
		t.Error("expected error for Backward without Forward")
	}
}

func TestModelBackwardRejectsWrongGradientCount(t *testing.T) {
	m := testModel(t)

	images, err := tensor.Ones([]int{1, 3, 8, 8}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	if _, err := m.Forward(images); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	g, err := tensor.Ones([]int{1, 3, 8, 8}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("failed to create gradient: %v", err)
	}
	if err := m.Backward([]*tensor.Tensor{g}); err == nil {
		t.Error("expected error for mismatched gradient count")
	}
}

func TestModelNamedParameters(t *testing.T) {
	m := testModel(t)
	params := m.NamedParameters()

	want := []string{
		"base.layer1.conv.weight",
		"base.layer1.conv.bias",
		"base.layer2.conv.weight",
		"base.layer3.conv.weight",
		"aspp.c0.weight",
		"aspp.c0.bias",
		"aspp.c1.weight",
		"aspp.c1.bias",
	}
	for _, name := range want {
		if params[name] == nil {
			t.Errorf("missing named parameter %q", name)
		}
	}
	if len(params) != len(m.Parameters()) {
		t.Errorf("named parameter count %d does not match parameter count %d",
			len(params), len(m.Parameters()))
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero classes", Config{NClasses: 0, InChannels: 3, Width: 4, ASPPRates: []int{1}}},
		{"zero width", Config{NClasses: 2, InChannels: 3, Width: 0, ASPPRates: []int{1}}},
		{"no rates", Config{NClasses: 2, InChannels: 3, Width: 4}},
		{"bad scale", Config{NClasses: 2, InChannels: 3, Width: 4, Scales: []float64{1.5}, ASPPRates: []int{1}}},
	}
	for _, tc := range cases {
		if _, err := New(tc.cfg); err == nil {
			t.Errorf("%s: expected constructor error", tc.name)
		}
	}
}
