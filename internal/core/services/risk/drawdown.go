package risk

// DrawdownStatistics summarizes peak-to-trough declines of a compounded path
type DrawdownStatistics struct {
	MaxDrawdown          float64 `json:"max_drawdown"`
	AverageDrawdown      float64 `json:"average_drawdown"`
	CurrentDrawdown      float64 `json:"current_drawdown"`
	MaxDrawdownDuration  int     `json:"max_drawdown_duration"`
	TotalDrawdownPeriods int     `json:"total_drawdown_periods"`
}

// DrawdownTracker follows a wealth path and records its deepest drawdown
// as a fraction of the running peak. Durations count periods below peak.
type DrawdownTracker struct {
	peak        float64
	value       float64
	maxDrawdown float64
	total       float64
	periods     int
	duration    int
	maxDuration int
}

// NewDrawdownTracker starts a path at wealth 1
func NewDrawdownTracker() *DrawdownTracker {
	return &DrawdownTracker{peak: 1, value: 1}
}

// Update compounds one period return into the path
func (t *DrawdownTracker) Update(r float64) {
	t.value *= 1 + r
	if t.value >= t.peak {
		t.peak = t.value
		t.duration = 0
		return
	}

	dd := t.Current()
	if dd > t.maxDrawdown {
		t.maxDrawdown = dd
	}
	t.total += dd
	t.periods++
	t.duration++
	if t.duration > t.maxDuration {
		t.maxDuration = t.duration
	}
}

// Current returns the drawdown from the running peak
func (t *DrawdownTracker) Current() float64 {
	if t.peak <= 0 || t.value >= t.peak {
		return 0
	}
	return (t.peak - t.value) / t.peak
}

// Statistics returns the accumulated drawdown summary
func (t *DrawdownTracker) Statistics() DrawdownStatistics {
	stats := DrawdownStatistics{
		MaxDrawdown:          t.maxDrawdown,
		CurrentDrawdown:      t.Current(),
		MaxDrawdownDuration:  t.maxDuration,
		TotalDrawdownPeriods: t.periods,
	}
	if t.periods > 0 {
		stats.AverageDrawdown = t.total / float64(t.periods)
	}
	return stats
}

// Drawdowns runs a tracker over returns
func Drawdowns(returns []float64) DrawdownStatistics {
	t := NewDrawdownTracker()
	for _, r := range returns {
		t.Update(r)
	}
	return t.Statistics()
}
