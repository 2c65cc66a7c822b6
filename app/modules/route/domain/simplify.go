package routedomain

// Simplify reduces a polyline with the Douglas-Peucker algorithm, keeping
// every point whose perpendicular distance from the surrounding chord exceeds
// toleranceM. The first and last points are always retained, the output never
// has more points than the input, and a straight run of points collapses to
// its two endpoints.
func Simplify(line Polyline, toleranceM float64) Polyline {
	if len(line) < 3 || toleranceM <= 0 {
		out := make(Polyline, len(line))
		copy(out, line)
		return out
	}

	keep := make([]bool, len(line))
	keep[0] = true
	keep[len(line)-1] = true
	douglasPeucker(line, 0, len(line)-1, toleranceM, keep)

	out := make(Polyline, 0, len(line))
	for i, k := range keep {
		if k {
			out = append(out, line[i])
		}
	}
	return out
}

// douglasPeucker marks the points to keep between first and last (exclusive).
// Recursion depth is bounded by log of the segment length for typical traces;
// worst case is the input length, which GPS traces stay far under.
func douglasPeucker(line Polyline, first, last int, toleranceM float64, keep []bool) {
	if last-first < 2 {
		return
	}

	var maxDist float64
	index := -1
	for i := first + 1; i < last; i++ {
		d := SegmentDistanceM(line[i], line[first], line[last])
		if d > maxDist {
			maxDist = d
			index = i
		}
	}

	if index == -1 || maxDist <= toleranceM {
		return
	}

	keep[index] = true
	douglasPeucker(line, first, index, toleranceM, keep)
	douglasPeucker(line, index, last, toleranceM, keep)
}
