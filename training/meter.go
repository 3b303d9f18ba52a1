package training

import (
	"gonum.org/v1/gonum/stat"
)

// MovingAverageMeter tracks the mean and standard deviation of the most
// recent window of observations. It smooths the reported training loss the
// same way a fixed-size deque would.
type MovingAverageMeter struct {
	window int
	values []float64
	next   int
	filled bool
}

// NewMovingAverageMeter creates a meter over the last window observations.
// A non-positive window falls back to 20.
func NewMovingAverageMeter(window int) *MovingAverageMeter {
	if window <= 0 {
		window = 20
	}
	return &MovingAverageMeter{
		window: window,
		values: make([]float64, 0, window),
	}
}

// Add records one observation, evicting the oldest once the window is full.
func (m *MovingAverageMeter) Add(v float64) {
	if len(m.values) < m.window {
		m.values = append(m.values, v)
		return
	}
	m.values[m.next] = v
	m.next = (m.next + 1) % m.window
	m.filled = true
}

// Count reports how many observations are currently in the window.
func (m *MovingAverageMeter) Count() int {
	return len(m.values)
}

// Mean returns the average over the window, or 0 with no observations.
func (m *MovingAverageMeter) Mean() float64 {
	if len(m.values) == 0 {
		return 0
	}
	return stat.Mean(m.values, nil)
}

// Std returns the sample standard deviation over the window. Fewer than two
// observations yield 0.
func (m *MovingAverageMeter) Std() float64 {
	if len(m.values) < 2 {
		return 0
	}
	return stat.StdDev(m.values, nil)
}
