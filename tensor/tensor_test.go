package tensor

import (
	"reflect"
	"testing"
)

func TestCalculateStrides(t *testing.T) {
	tests := []struct {
		shape    []int
		expected []int
	}{
		{[]int{}, []int{}},
		{[]int{5}, []int{1}},
		{[]int{2, 3}, []int{3, 1}},
		{[]int{2, 3, 4}, []int{12, 4, 1}},
	}

	for _, test := range tests {
		result := calculateStrides(test.shape)
		if !reflect.DeepEqual(result, test.expected) {
			t.Errorf("calculateStrides(%v) = %v, expected %v", test.shape, result, test.expected)
		}
	}
}

func TestNewTensorValidation(t *testing.T) {
	if _, err := NewTensor([]int{2, 0}, Float32, CPU, nil); err == nil {
		t.Error("expected error for zero-size dimension")
	}
	if _, err := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3}); err == nil {
		t.Error("expected error for data length mismatch")
	}
}

func TestItem(t *testing.T) {
	scalar := FromScalar(3.5, CPU)
	v, err := scalar.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if v != 3.5 {
		t.Errorf("Item() = %f, expected 3.5", v)
	}

	vec, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 2})
	if _, err := vec.Item(); err == nil {
		t.Error("expected error for multi-element Item")
	}
}

func TestAccumulateGrad(t *testing.T) {
	p, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 2})
	p.SetRequiresGrad(true)

	g1, _ := NewTensor([]int{2}, Float32, CPU, []float32{0.5, 1.0})
	g2, _ := NewTensor([]int{2}, Float32, CPU, []float32{0.25, -1.0})

	if err := p.AccumulateGrad(g1); err != nil {
		t.Fatalf("first accumulation failed: %v", err)
	}
	if err := p.AccumulateGrad(g2); err != nil {
		t.Fatalf("second accumulation failed: %v", err)
	}

	grad := p.Grad().Data.([]float32)
	if grad[0] != 0.75 || grad[1] != 0.0 {
		t.Errorf("accumulated grad = %v, expected [0.75 0]", grad)
	}

	ZeroGrad([]*Tensor{p})
	grad = p.Grad().Data.([]float32)
	if grad[0] != 0 || grad[1] != 0 {
		t.Errorf("grad after ZeroGrad = %v, expected zeros", grad)
	}
}

func TestAccumulateGradRejectsNonGradTensor(t *testing.T) {
	p, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 2})
	g, _ := NewTensor([]int{2}, Float32, CPU, []float32{1, 1})
	if err := p.AccumulateGrad(g); err == nil {
		t.Error("expected error accumulating into tensor without requiresGrad")
	}
}

func TestAddSubMul(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, Float32, CPU, []float32{4, 3, 2, 1})

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !reflect.DeepEqual(sum.Data.([]float32), []float32{5, 5, 5, 5}) {
		t.Errorf("Add result = %v", sum.Data)
	}

	diff, _ := Sub(a, b)
	if !reflect.DeepEqual(diff.Data.([]float32), []float32{-3, -1, 1, 3}) {
		t.Errorf("Sub result = %v", diff.Data)
	}

	prod, _ := Mul(a, b)
	if !reflect.DeepEqual(prod.Data.([]float32), []float32{4, 6, 6, 4}) {
		t.Errorf("Mul result = %v", prod.Data)
	}

	c, _ := NewTensor([]int{4}, Float32, CPU, []float32{1, 2, 3, 4})
	if _, err := Add(a, c); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestScale(t *testing.T) {
	a, _ := NewTensor([]int{3}, Float32, CPU, []float32{1, -2, 4})
	if err := Scale(a, 0.5); err != nil {
		t.Fatalf("Scale failed: %v", err)
	}
	if !reflect.DeepEqual(a.Data.([]float32), []float32{0.5, -1, 2}) {
		t.Errorf("Scale result = %v", a.Data)
	}
}

func TestReshape(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, CPU, []float32{1, 2, 3, 4, 5, 6})
	r, err := Reshape(a, []int{3, 2})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !reflect.DeepEqual(r.Shape, []int{3, 2}) {
		t.Errorf("Reshape shape = %v", r.Shape)
	}
	if _, err := Reshape(a, []int{4, 2}); err == nil {
		t.Error("expected element count mismatch error")
	}
}
