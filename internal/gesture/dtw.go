package gesture

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Options controls the alignment freedom of Distance.
type Options struct {
	// Window is the slope tolerance band: cell (i, j) is only reachable while
	// |i/len(a) - j/len(b)| stays within it. Zero or values >= 1 disable the band.
	// The band is never narrower than one cell of either sequence.
	Window float64

	// MaxSlope caps the number of consecutive steps that advance only one of
	// the two sequences. Zero means unlimited.
	MaxSlope int
}

// Distance calculates the Dynamic Time Warping distance between two sequences.
// Returns infinity if either sequence is empty or no alignment satisfies the options.
// The distance is normalized by len(a)+len(b).
//
// Frames must share one dimension; a mismatch panics.
func Distance(a, b Sequence, opts Options) float64 {
	n := len(a)
	m := len(b)

	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	inf := math.Inf(1)
	band := bandWidth(opts.Window, n, m)

	// Two rolling rows of the (n+1) x (m+1) cost matrix, plus the run length
	// of the best path into each cell along either axis.
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	prevRunI := make([]int, m+1)
	currRunI := make([]int, m+1)
	prevRunJ := make([]int, m+1)
	currRunJ := make([]int, m+1)

	prev[0] = 0
	for j := 1; j <= m; j++ {
		prev[j] = inf
	}

	for i := 1; i <= n; i++ {
		curr[0] = inf
		currRunI[0], currRunJ[0] = 0, 0

		for j := 1; j <= m; j++ {
			currRunI[j], currRunJ[j] = 0, 0

			if outsideBand(i, j, n, m, band) {
				curr[j] = inf
				continue
			}

			// Diagonal move first, so ties keep the path on the diagonal.
			best := prev[j-1]
			runI, runJ := 0, 0

			if allowed(prevRunI[j]+1, opts.MaxSlope) && prev[j] < best {
				best = prev[j]
				runI, runJ = prevRunI[j]+1, 0
			}
			if allowed(currRunJ[j-1]+1, opts.MaxSlope) && curr[j-1] < best {
				best = curr[j-1]
				runI, runJ = 0, currRunJ[j-1]+1
			}

			if math.IsInf(best, 1) {
				curr[j] = inf
				continue
			}

			curr[j] = frameDistance(a[i-1], b[j-1]) + best
			currRunI[j], currRunJ[j] = runI, runJ
		}

		prev, curr = curr, prev
		prevRunI, currRunI = currRunI, prevRunI
		prevRunJ, currRunJ = currRunJ, prevRunJ
	}

	return prev[m] / float64(n+m)
}

// frameDistance calculates the Euclidean distance between two frames.
func frameDistance(a, b Frame) float64 {
	return floats.Distance(a, b, 2)
}

// bandWidth returns the effective slope tolerance for sequences of length n and m.
func bandWidth(window float64, n, m int) float64 {
	if window >= 1 || window <= 0 {
		return math.Inf(1)
	}
	return math.Max(window, math.Max(1/float64(n), 1/float64(m)))
}

// outsideBand reports whether cell (i, j) falls outside the slope tolerance band.
func outsideBand(i, j, n, m int, band float64) bool {
	if math.IsInf(band, 1) {
		return false
	}
	return math.Abs(float64(i)/float64(n)-float64(j)/float64(m)) > band
}

// allowed reports whether a run of the given length respects maxSlope.
func allowed(run, maxSlope int) bool {
	return maxSlope <= 0 || run <= maxSlope
}
