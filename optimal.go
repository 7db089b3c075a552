// optimal.go -- LSH banding parameter selection

package dedup

import "math"

// OptimalParam returns the (b, r) pair with b*r <= numPerm minimizing
// the weighted sum of false-positive and false-negative areas under the
// candidate S-curve 1 - (1 - s^r)^b. Ties prefer larger b (finer
// banding). Raising the threshold never lowers the returned r.
func OptimalParam(threshold float64, numPerm int, fpWeight, fnWeight float64) (int, int) {
	bestB, bestR := 1, 1
	minErr := math.Inf(1)

	for b := 1; b <= numPerm; b++ {
		maxR := numPerm / b
		for r := 1; r <= maxR; r++ {
			fp := falsePositiveArea(threshold, b, r)
			fn := falseNegativeArea(threshold, b, r)
			err := fp*fpWeight + fn*fnWeight
			if err < minErr || (err == minErr && b > bestB) {
				minErr = err
				bestB, bestR = b, r
			}
		}
	}
	return bestB, bestR
}

// falsePositiveArea integrates the candidate probability over similarity
// below the threshold.
func falsePositiveArea(threshold float64, b, r int) float64 {
	return integrate(func(s float64) float64 {
		return 1.0 - math.Pow(1.0-math.Pow(s, float64(r)), float64(b))
	}, 0.0, threshold)
}

// falseNegativeArea integrates the non-candidate probability over
// similarity above the threshold.
func falseNegativeArea(threshold float64, b, r int) float64 {
	return integrate(func(s float64) float64 {
		return math.Pow(1.0-math.Pow(s, float64(r)), float64(b))
	}, threshold, 1.0)
}

// integrate is a midpoint-rule approximation, good to the step size.
func integrate(f func(float64) float64, a, b float64) float64 {
	const step = 0.001

	var area float64
	for x := a; x < b; x += step {
		area += f(x+0.5*step) * step
	}
	return area
}
