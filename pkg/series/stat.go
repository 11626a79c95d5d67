package series

import (
	"math"
)

// Pearson returns the Pearson correlation coefficient of a and b. NaN is
// returned when either side has zero variance.
func Pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return math.NaN()
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

// Cosine returns the cosine similarity of a and b. Zero vectors yield 0.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RMSE returns the root mean squared error between predictions and truth.
func RMSE(pred, truth *Matrix) float64 {
	if len(pred.Data) == 0 || len(pred.Data) != len(truth.Data) {
		return math.NaN()
	}
	var sum float64
	for i := range pred.Data {
		d := pred.Data[i] - truth.Data[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pred.Data)))
}
