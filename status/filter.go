package status

// FilterDuration applies the minimum on and off durations to a 0/1
// sequence. Off runs shorter than minOff with on samples on both sides are
// switched on first. On runs shorter than minOn are then switched off,
// including runs that touch either end of the sequence.
func FilterDuration(sequence []float64, minOn int, minOff int) []float64 {
	n := len(sequence)
	out := make([]float64, n)
	copy(out, sequence)

	for start := 0; start < n; {
		end := runEnd(out, start)
		if out[start] == 0 && start > 0 && end < n && end-start < minOff {
			fill(out[start:end], 1)
		}
		start = end
	}

	for start := 0; start < n; {
		end := runEnd(out, start)
		if out[start] == 1 && end-start < minOn {
			fill(out[start:end], 0)
		}
		start = end
	}
	return out
}

// runEnd returns the index just past the run of equal values at start.
func runEnd(sequence []float64, start int) int {
	end := start + 1
	for end < len(sequence) && sequence[end] == sequence[start] {
		end++
	}
	return end
}

func fill(values []float64, value float64) {
	for i := range values {
		values[i] = value
	}
}
