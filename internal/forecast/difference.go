package forecast

// Difference applies first differencing d times
func Difference(x []float64, d int) []float64 {
	out := append([]float64(nil), x...)
	for i := 0; i < d; i++ {
		if len(out) < 2 {
			return nil
		}
		next := make([]float64, len(out)-1)
		for t := 1; t < len(out); t++ {
			next[t-1] = out[t] - out[t-1]
		}
		out = next
	}
	return out
}

// Integrate maps a forecast of the d-times differenced series back onto the
// scale of history, continuing from its last observations.
func Integrate(history []float64, d int, diffed []float64) []float64 {
	out := append([]float64(nil), diffed...)
	for level := d - 1; level >= 0; level-- {
		base := Difference(history, level)
		last := base[len(base)-1]
		for i := range out {
			last += out[i]
			out[i] = last
		}
	}
	return out
}
