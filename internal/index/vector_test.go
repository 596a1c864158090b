package index

import (
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	vecs := [][]float32{
		{},
		{0},
		{1.5, -2.25, 0.001},
		{math.MaxFloat32, -math.MaxFloat32},
	}

	for _, v := range vecs {
		decoded, err := decodeVector(encodeVector(v))
		if err != nil {
			t.Fatalf("decodeVector error = %v", err)
		}
		if len(decoded) != len(v) {
			t.Fatalf("length %d, want %d", len(decoded), len(v))
		}
		for i := range v {
			if decoded[i] != v[i] {
				t.Errorf("element %d = %v, want %v", i, decoded[i], v[i])
			}
		}
	}
}

func TestDecodeVectorBadLength(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for blob length not divisible by 4")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: 2},
		{name: "scale invariant", a: []float32{1, 1}, b: []float32{10, 10}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineDistance = %v, want %v", got, tt.want)
			}
		})
	}
}
