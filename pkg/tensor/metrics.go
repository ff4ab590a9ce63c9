package tensor

import (
	"gonum.org/v1/gonum/floats"

	"github.com/linaldb/linal/pkg/dberr"
)

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b *Tensor) (float64, error) {
	if err := checkVectors(a, b); err != nil {
		return 0, err
	}
	return floats.Dot(a.data, b.data), nil
}

// Cosine returns the cosine similarity of two equal-length vectors. A
// zero-norm operand yields 0 rather than NaN.
func Cosine(a, b *Tensor) (float64, error) {
	if err := checkVectors(a, b); err != nil {
		return 0, err
	}
	return cosine(a.data, b.data), nil
}

// L2 returns the Euclidean distance between two equal-length vectors.
func L2(a, b *Tensor) (float64, error) {
	if err := checkVectors(a, b); err != nil {
		return 0, err
	}
	return floats.Distance(a.data, b.data, 2), nil
}

// Normalize scales a vector to unit length. The zero vector is returned
// unchanged.
func Normalize(a *Tensor) (*Tensor, error) {
	if a.Rank() != 1 {
		return nil, &dberr.ShapeMismatch{Expected: "rank-1 tensor", Actual: dberr.Shapes(a.shape, a.shape).Actual}
	}
	norm := floats.Norm(a.data, 2)
	if norm == 0 {
		return a, nil
	}
	return Scale(a, 1/norm), nil
}

func checkVectors(a, b *Tensor) error {
	if a.Rank() != 1 || b.Rank() != 1 || a.Len() != b.Len() {
		return dberr.Shapes(a.shape, b.shape)
	}
	return nil
}

func cosine(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
