package strategy

// EMA is a streaming exponential moving average. It is seeded with the
// simple average of the first `period` values, then follows the standard
// recurrence v = x·α + prev·(1−α) with α = 2/(period+1).
type EMA struct {
	period int
	alpha  float64
	seed   []float64
	value  float64
	ready  bool
}

// NewEMA creates an EMA with the given period. Period must be positive;
// config validation enforces that before a strategy is built.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / (float64(period) + 1.0),
		seed:   make([]float64, 0, period),
	}
}

// Update folds the next value into the average and returns the current EMA.
// Until `period` values have arrived, the return value is the running
// simple average of the seed window.
func (e *EMA) Update(x float64) float64 {
	if !e.ready {
		e.seed = append(e.seed, x)
		sum := 0.0
		for _, v := range e.seed {
			sum += v
		}
		e.value = sum / float64(len(e.seed))
		if len(e.seed) == e.period {
			e.ready = true
			e.seed = e.seed[:0]
		}
		return e.value
	}
	e.value = x*e.alpha + e.value*(1-e.alpha)
	return e.value
}

// Value returns the current average without consuming a new observation.
func (e *EMA) Value() float64 { return e.value }

// Ready reports whether the seed window has filled.
func (e *EMA) Ready() bool { return e.ready }

// Reset clears all state.
func (e *EMA) Reset() {
	e.seed = e.seed[:0]
	e.value = 0
	e.ready = false
}
