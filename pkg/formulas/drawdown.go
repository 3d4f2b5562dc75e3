package formulas

// MaxDrawdown returns max over t of (runningMax - value)/runningMax for a wealth path.
func MaxDrawdown(path []float64) float64 {
	var tracker DrawdownTracker
	for _, v := range path {
		tracker.Observe(v)
	}
	return tracker.Max()
}

// DrawdownTracker accumulates the maximum drawdown of a path one observation at a time,
// so callers never need the full path in memory.
type DrawdownTracker struct {
	peak    float64
	maxDD   float64
	started bool
}

// Observe feeds the next wealth value.
func (d *DrawdownTracker) Observe(v float64) {
	if !d.started || v > d.peak {
		d.peak = v
		d.started = true
	}
	if d.peak <= 0 {
		return
	}
	if dd := (d.peak - v) / d.peak; dd > d.maxDD {
		d.maxDD = dd
	}
}

// Max returns the largest drawdown seen so far, in [0,1].
func (d *DrawdownTracker) Max() float64 {
	return d.maxDD
}
