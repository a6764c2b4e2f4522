package meter

import "math"

// HistorySize is the number of samples kept per chart.
const HistorySize = 100

// Window is a fixed-length series, newest sample first. Slots that have
// not received data yet hold NaN.
type Window [HistorySize]float64

func newWindow() Window {
	var w Window
	for i := range w {
		w[i] = math.NaN()
	}

	return w
}

func (w *Window) push(v float64) {
	copy(w[1:], w[:len(w)-1])
	w[0] = v
}

// Filled counts samples that carry data.
func (w *Window) Filled() int {
	n := 0
	for _, v := range w {
		if !math.IsNaN(v) {
			n++
		}
	}

	return n
}

// History keeps the voltage and current charts in step.
type History struct {
	voltage Window
	current Window
}

func NewHistory() *History {
	return &History{
		voltage: newWindow(),
		current: newWindow(),
	}
}

// Push records one instant on both charts.
func (h *History) Push(voltage, current float64) {
	h.voltage.push(voltage)
	h.current.push(current)
}

// Voltage returns a copy of the voltage window, newest first.
func (h *History) Voltage() []float64 {
	out := make([]float64, HistorySize)
	copy(out, h.voltage[:])

	return out
}

// Current returns a copy of the current window, newest first.
func (h *History) Current() []float64 {
	out := make([]float64, HistorySize)
	copy(out, h.current[:])

	return out
}
