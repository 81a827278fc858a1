package stats

import "math"

// TwoProportionZ computes the pooled two-proportion z statistic for
// variant B against variant A. Positive values mean B converts better.
func TwoProportionZ(successesA, trialsA, successesB, trialsB int) float64 {
	if trialsA == 0 || trialsB == 0 {
		return 0
	}
	pA := float64(successesA) / float64(trialsA)
	pB := float64(successesB) / float64(trialsB)
	pooled := float64(successesA+successesB) / float64(trialsA+trialsB)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(trialsA) + 1/float64(trialsB)))
	if se == 0 {
		return 0
	}
	return (pB - pA) / se
}

// TwoTailedP converts a z statistic to a two-tailed p-value.
func TwoTailedP(z float64) float64 {
	return 2 * (1 - normalCDF(math.Abs(z)))
}

// normalCDF approximates the standard normal CDF (Abramowitz and Stegun
// 26.2.17, absolute error below 1e-7).
func normalCDF(x float64) float64 {
	if x < 0 {
		return 1 - normalCDF(-x)
	}
	k := 1 / (1 + 0.2316419*x)
	poly := k * (0.3193815 + k*(-0.3565638+k*(1.781478+k*(-1.821256+k*1.330274))))
	return 1 - 0.3989423*math.Exp(-x*x/2)*poly
}
