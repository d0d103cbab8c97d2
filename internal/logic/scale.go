package logic

// Scale maps value linearly from [inMin, inMax] onto [outMin, outMax] and
// clamps the result to the output range. inMin may be greater than inMax
// (a sensor whose reading falls as the quantity rises).
func Scale(value, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	out := outMin + (value-inMin)*(outMax-outMin)/(inMax-inMin)

	lo, hi := outMin, outMax
	if lo > hi {
		lo, hi = hi, lo
	}
	if out < lo {
		return lo
	}
	if out > hi {
		return hi
	}
	return out
}

// Moisture converts a probe voltage to a percentage, with dry mapping to 0
// and wet to 100.
func Moisture(voltage, dry, wet float64) float64 {
	return Scale(voltage, dry, wet, 0, 100)
}
