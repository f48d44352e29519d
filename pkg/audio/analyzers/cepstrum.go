package analyzers

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// logFloor keeps log10 finite for silent bands
const logFloor = 1e-7

// LogCompress returns log10(x + 1e-7) for every value
func LogCompress(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Log10(v + logFloor)
	}
	return out
}

// DCT computes a truncated, unnormalized DCT-II:
//
//	y[k] = 2 * sum_n x[n] * cos(pi*k*(2n+1) / (2N))
//
// The basis is precomputed once as a (numCoeffs, N) matrix.
type DCT struct {
	basis *mat.Dense
	n     int
	k     int
}

// NewDCT creates a DCT for inputs of length n keeping numCoeffs outputs
func NewDCT(n, numCoeffs int) *DCT {
	basis := mat.NewDense(numCoeffs, n, nil)
	for k := 0; k < numCoeffs; k++ {
		for i := 0; i < n; i++ {
			basis.Set(k, i, 2*math.Cos(math.Pi*float64(k)*float64(2*i+1)/float64(2*n)))
		}
	}
	return &DCT{basis: basis, n: n, k: numCoeffs}
}

// Transform applies the DCT to x, which must have length n
func (d *DCT) Transform(x []float64) []float64 {
	var out mat.VecDense
	out.MulVec(d.basis, mat.NewVecDense(d.n, x))

	coeffs := make([]float64, d.k)
	copy(coeffs, out.RawVector().Data)
	return coeffs
}
