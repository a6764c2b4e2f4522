// Package display renders meter readouts to a terminal.
package display

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/umctl/internal/meter"
	"github.com/mattn/go-isatty"
)

const clearScreen = "\033[H\033[2J"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Console is a meter.Observer that prints every snapshot. On a terminal
// the readout is redrawn in place; otherwise each one is appended.
type Console struct {
	mu   sync.Mutex
	out  io.Writer
	live bool
}

func NewConsole(out io.Writer) *Console {
	live := false
	if f, ok := out.(*os.File); ok {
		live = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return &Console{out: out, live: live}
}

func (c *Console) StateChanged(state meter.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, StateMessage(state))
}

func (c *Console) SnapshotDecoded(snap meter.Snapshot, voltage, current []float64) {
	var b strings.Builder
	if c.live {
		b.WriteString(clearScreen)
	}
	Render(&b, snap, voltage, current)

	c.mu.Lock()
	defer c.mu.Unlock()

	io.WriteString(c.out, b.String())
}

// StateMessage is the line printed on a session state change.
func StateMessage(state meter.State) string {
	switch state {
	case meter.StateConnecting:
		return "connecting…"
	case meter.StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Render writes one readout. Sparklines are drawn only for non-nil
// history windows.
func Render(w io.Writer, s meter.Snapshot, voltage, current []float64) {
	fmt.Fprintf(w, "Model: %s\n", s.Model)
	fmt.Fprintf(w, "%s V   %s A\n", Volts(s.Voltage), Amps(s.Current))
	fmt.Fprintf(w, "%s mAh   %s Ω\n", Counter(s.Charge), Ohms(s.Resistance))
	fmt.Fprintf(w, "%s mWh   %s W\n", Counter(s.Energy), Watts(s.Power))
	if voltage != nil {
		fmt.Fprintf(w, "V %s\n", Sparkline(voltage))
	}
	if current != nil {
		fmt.Fprintf(w, "A %s\n", Sparkline(current))
	}
	fmt.Fprintf(w, "⊕ %s V   Group: %d\n", DataLine(s.DataPlus), s.Group)
	fmt.Fprintf(w, "⊖ %s V   %d °C\n", DataLine(s.DataMinus), s.Temperature)
	fmt.Fprintf(w, "%s   %s\n", s.ChargingMode, Duration(s.Duration))
}

// Volts formats millivolts as "00.00".
func Volts(mv uint32) string {
	return fmt.Sprintf("%05.2f", float64(mv)/1000)
}

func Amps(raw uint32) string {
	return fmt.Sprintf("%.3f", float64(raw)/1000)
}

func Watts(raw uint32) string {
	return fmt.Sprintf("%06.3f", float64(raw)/1000)
}

func Ohms(raw uint64) string {
	return fmt.Sprintf("%06.1f", float64(raw)/1000)
}

// Counter formats an accumulator as five zero-padded digits.
func Counter(v uint32) string {
	return fmt.Sprintf("%05d", v)
}

func DataLine(mv uint32) string {
	return fmt.Sprintf("%.2f", float64(mv)/1000)
}

// Duration renders h:mm:ss, or m:ss under an hour. Zero renders empty.
func Duration(d time.Duration) string {
	if d <= 0 {
		return ""
	}

	total := int64(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}

	return fmt.Sprintf("%d:%02d", m, s)
}

// Sparkline plots a newest-first window oldest to newest, left to right.
// Empty slots are blanks.
func Sparkline(window []float64) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range window {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]rune, len(window))
	for i, v := range window {
		pos := len(window) - 1 - i
		switch {
		case math.IsNaN(v):
			out[pos] = ' '
		case hi == lo:
			out[pos] = sparkBlocks[0]
		default:
			idx := int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
			out[pos] = sparkBlocks[idx]
		}
	}

	return string(out)
}
