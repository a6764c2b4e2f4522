package meter

import "time"

// Snapshot holds the measurements decoded from one frame. It is a value:
// consumers get their own copy and never share it.
type Snapshot struct {
	Model Model
	// Group is the active accumulator slot, normally 0..9.
	Group uint16

	Voltage     uint32 // mV
	Current     uint32 // as reported; Current/1000 is plotted as A
	Power       uint32 // as reported; Power/1000 is W
	Resistance  uint64 // Resistance/1000 is Ω
	Temperature int    // °C

	Charge uint32 // mAh, active group
	Energy uint32 // mWh, active group

	Duration time.Duration

	DataPlus  uint32 // mV
	DataMinus uint32 // mV

	ChargingMode ChargingMode

	// ReceivedAt is stamped by the session, not by Decode.
	ReceivedAt time.Time
}

// Volts returns the voltage as plotted in the history window.
func (s Snapshot) Volts() float64 {
	return float64(s.Voltage) / 1000
}

// Amps returns the current as plotted in the history window.
func (s Snapshot) Amps() float64 {
	return float64(s.Current) / 1000
}
