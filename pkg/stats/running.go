package stats

// RunningStats tracks the cumulative min, max and mean of the bandwidth
// values reported so far in a phase. The zero value is empty.
type RunningStats struct {
	count int64
	min   float64
	max   float64
	avg   float64
}

// Reset returns the stats to the empty state.
func (s *RunningStats) Reset() {
	*s = RunningStats{}
}

// Update folds one bandwidth sample into the stats. The mean is updated
// incrementally so the history never needs to be re-summed.
func (s *RunningStats) Update(v float64) {
	s.count++
	if s.count == 1 {
		s.min, s.max, s.avg = v, v, v
		return
	}
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.avg += (v - s.avg) / float64(s.count)
}

// Min returns the smallest sample, or 0 when empty.
func (s *RunningStats) Min() float64 { return s.min }

// Max returns the largest sample, or 0 when empty.
func (s *RunningStats) Max() float64 { return s.max }

// Avg returns the arithmetic mean of all samples, or 0 when empty.
func (s *RunningStats) Avg() float64 { return s.avg }

func (s *RunningStats) Count() int64 { return s.count }
