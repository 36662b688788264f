package sis

import (
	"math"
	"math/rand"
)

// Means from this value on are drawn by transformed rejection instead of
// Knuth's method, whose cost grows linearly with the mean.
const ptrsMinMean = 10.0

// Poisson draws a random integer from the Poisson distribution with the given
// mean. A non-positive mean always yields 0 but still consumes one number
// from rng, so that the number of values consumed per draw does not depend on
// the mean being zero. Draws that do not fit in an int are saturated to
// math.MaxInt.
func Poisson(rng *rand.Rand, mean float64) int {
	switch {
	case mean <= 0:
		rng.Float64()
		return 0
	case mean < ptrsMinMean:
		return knuth(rng, mean)
	case math.IsInf(mean, 1):
		rng.Float64()
		return math.MaxInt
	default:
		return saturate(ptrs(rng, mean))
	}
}

// knuth implements Knuth's multiplication method which is exact and cheap
// for small means.
func knuth(rng *rand.Rand, mean float64) int {
	l := math.Exp(-mean)
	k := 0
	for p := rng.Float64(); p > l; p *= rng.Float64() {
		k++
	}
	return k
}

// ptrs implements Hörmann's transformed rejection with squeeze (PTRS). Its
// expected number of iterations is bounded independently of the mean, which
// must be at least 10.
func ptrs(rng *rand.Rand, mean float64) float64 {
	logMean := math.Log(mean)
	b := 0.931 + 2.53*math.Sqrt(mean)
	a := -0.059 + 0.02483*b
	invAlpha := 1.1239 + 1.1328/(b-3.4)
	vr := 0.9277 - 3.6224/(b-2)

	for {
		u := rng.Float64() - 0.5
		v := rng.Float64()
		us := 0.5 - math.Abs(u)
		k := math.Floor((2*a/us+b)*u + mean + 0.43)

		if us >= 0.07 && v <= vr {
			return k
		}
		if k < 0 || (us < 0.013 && v > us) {
			continue
		}
		lg, _ := math.Lgamma(k + 1)
		if math.Log(v)+math.Log(invAlpha)-math.Log(a/(us*us)+b) <= -mean+k*logMean-lg {
			return k
		}
	}
}

// saturate converts a non-negative integral float to an int.
func saturate(k float64) int {
	if k >= math.MaxInt64 {
		return math.MaxInt
	}
	return int(k)
}
