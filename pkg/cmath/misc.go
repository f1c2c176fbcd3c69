package cmath

import "math"

// Some functions that only operate on basic types, that are useful

// RankIndex is the index of the element at rank ratio r (0=first,
// 1=last) in a sorted slice of n elements: floor(n*r), clamped to the
// slice.
func RankIndex(n int, r float64) int {
	i := int(math.Floor(float64(n) * r))
	if i > n-1 { i = n-1 }
	if i < 0 { i = 0 }
	return i
}

// https://www.sjbrown.co.uk/posts/gamma-correct-rendering/ - "linear RGB to sRGB"
func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055 * math.Pow(f, 1.0/2.4) - 0.055
}

func clamp01(f float64) float64 {
	if f < 0 { return 0 }
	if f > 1 { return 1 }
	return f
}
