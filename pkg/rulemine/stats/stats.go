// Package stats provides the small set of statistical primitives the
// analyzers need: a 2x2 chi-square test, Welch's t-test, ordinary
// least squares, quantiles, and the IQR outlier rule.
//
// P-values use the closed form for chi-square with one degree of
// freedom and a normal approximation for the t distribution. The
// analyzers only invoke the t-test with 30+ samples, where the
// approximation error is well below the 0.05 decision threshold.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation, 0 for fewer than two values.
func StdDev(xs []float64) float64 {
	return math.Sqrt(Variance(xs))
}

// Variance returns the sample variance (n-1 denominator).
func Variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// ChiSquare2x2 runs a chi-square independence test on the contingency
// table [[a b] [c d]] and returns the statistic and its p-value
// (df=1: p = erfc(sqrt(x/2))). A table with an empty margin yields
// statistic 0 and p-value 1.
func ChiSquare2x2(a, b, c, d float64) (statistic, pValue float64) {
	n := a + b + c + d
	r1, r2 := a+b, c+d
	c1, c2 := a+c, b+d
	if n == 0 || r1 == 0 || r2 == 0 || c1 == 0 || c2 == 0 {
		return 0, 1
	}
	diff := a*d - b*c
	statistic = n * diff * diff / (r1 * r2 * c1 * c2)
	pValue = math.Erfc(math.Sqrt(statistic / 2))
	return statistic, pValue
}

// WelchT compares two samples and returns the t statistic and a
// two-sided p-value under the normal approximation. Samples with
// fewer than two values yield t=0, p=1.
func WelchT(xs, ys []float64) (t, pValue float64) {
	if len(xs) < 2 || len(ys) < 2 {
		return 0, 1
	}
	vx := Variance(xs) / float64(len(xs))
	vy := Variance(ys) / float64(len(ys))
	se := math.Sqrt(vx + vy)
	if se == 0 {
		return 0, 1
	}
	t = (Mean(xs) - Mean(ys)) / se
	pValue = math.Erfc(math.Abs(t) / math.Sqrt2)
	return t, pValue
}

// Regression holds an ordinary least squares fit of y against 0..n-1.
type Regression struct {
	Slope       float64
	Intercept   float64
	R2          float64
	PValue      float64 // two-sided p-value for slope != 0
	ResidualStd float64 // standard deviation of residuals
	N           int
}

// LinearFit fits y = intercept + slope*i over the index sequence.
// Fewer than three points yield a degenerate fit with PValue 1.
func LinearFit(ys []float64) Regression {
	n := len(ys)
	reg := Regression{N: n, PValue: 1}
	if n < 2 {
		return reg
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return reg
	}
	reg.Slope = (fn*sumXY - sumX*sumY) / denom
	reg.Intercept = (sumY - reg.Slope*sumX) / fn

	meanY := sumY / fn
	var ssTot, ssRes float64
	for i, y := range ys {
		fit := reg.Intercept + reg.Slope*float64(i)
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot > 0 {
		reg.R2 = 1 - ssRes/ssTot
	}
	if n > 2 {
		reg.ResidualStd = math.Sqrt(ssRes / float64(n-2))
		seSlope := reg.ResidualStd / math.Sqrt(denom/fn)
		if seSlope > 0 {
			t := reg.Slope / seSlope
			reg.PValue = math.Erfc(math.Abs(t) / math.Sqrt2)
		} else if reg.Slope != 0 {
			reg.PValue = 0
		}
	}
	return reg
}

// Quantile returns the q-quantile (0..1) using linear interpolation
// between order statistics. Input need not be sorted.
func Quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Outlier describes one value flagged by the IQR rule.
type Outlier struct {
	Index int
	Value float64
	// Score is the distance from the median normalized by IQR.
	Score float64
}

// IQROutliers flags values outside [Q1-1.5*IQR, Q3+1.5*IQR]. A zero
// IQR (constant data) flags nothing.
func IQROutliers(xs []float64) []Outlier {
	if len(xs) < 4 {
		return nil
	}
	q1 := Quantile(xs, 0.25)
	q3 := Quantile(xs, 0.75)
	iqr := q3 - q1
	if iqr == 0 {
		return nil
	}
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr
	median := Quantile(xs, 0.5)

	var out []Outlier
	for i, x := range xs {
		if x < lower || x > upper {
			out = append(out, Outlier{
				Index: i,
				Value: x,
				Score: math.Abs(x-median) / iqr,
			})
		}
	}
	return out
}

// MovingAverage returns the trailing moving average with the given
// window; positions before a full window average what is available.
func MovingAverage(xs []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
			out[i] = sum / float64(window)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// Standardize maps each column of the matrix to zero mean and unit
// variance. Constant columns become all zeros.
func Standardize(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	cols := len(rows[0])
	for c := 0; c < cols; c++ {
		col := make([]float64, len(rows))
		for r := range rows {
			col[r] = rows[r][c]
		}
		m := Mean(col)
		sd := StdDev(col)
		for r := range rows {
			if sd == 0 {
				rows[r][c] = 0
			} else {
				rows[r][c] = (rows[r][c] - m) / sd
			}
		}
	}
}
