package pmi

import "math"

// Calculator handles PMI (Pointwise Mutual Information) calculations
type Calculator struct {
	epsilon float64 // smoothing constant
}

// NewCalculator creates a new PMI calculator with the given epsilon
func NewCalculator(epsilon float64) *Calculator {
	if epsilon <= 0 {
		epsilon = 1.0
	}
	return &Calculator{epsilon: epsilon}
}

// PMI calculates the pointwise mutual information between two events
//
// PMI(a,b) = log((N_ab + ε) * N / ((N_a + ε)(N_b + ε)))
//
// Where:
//   - N_ab = number of records containing both a and b
//   - N_a, N_b = number of records containing each event
//   - N = total number of records
//   - ε = smoothing constant (default 1.0)
func (c *Calculator) PMI(nAB, nA, nB, n float64) float64 {
	if n == 0 {
		return 0
	}
	numerator := (nAB + c.epsilon) * n
	denominator := (nA + c.epsilon) * (nB + c.epsilon)
	if denominator == 0 {
		return 0
	}
	return math.Log(numerator / denominator)
}

// WeightedPMI weights PMI by log joint frequency, so that high-PMI
// pairs backed by more observations score higher than rare ones.
func (c *Calculator) WeightedPMI(nAB, nA, nB, n float64) float64 {
	if nAB <= 0 {
		return 0
	}
	return c.PMI(nAB, nA, nB, n) * math.Log(1+nAB)
}

// NPMI calculates normalized PMI (range: -1 to 1)
func (c *Calculator) NPMI(nAB, nA, nB, n float64) float64 {
	if n == 0 || nAB == 0 {
		return 0
	}
	pmi := c.PMI(nAB, nA, nB, n)
	pAB := (nAB + c.epsilon) / n
	logPAB := math.Log(pAB)
	if logPAB == 0 {
		return 0
	}
	return pmi / -logPAB
}
