// Package simplefn holds small scalar functions used as frontend test
// fixtures — real Go source frontend.Load lowers into internal/ir,
// mirroring the scenarios internal/gradsynth/endtoend_test.go checks
// numerically against a hand-built IR.
package simplefn

import "math"

// Square computes x*x.
func Square(x float64) float64 {
	return x * x
}

// SinPlusYSquared computes sin(x) + y*y.
func SinPlusYSquared(x, y float64) float64 {
	return math.Sin(x) + y*y
}

// Abs returns x if x is non-negative, else -x.
func Abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// CallTwice computes Square(x) + Square(x).
func CallTwice(x float64) float64 {
	return Square(x) + Square(x)
}
