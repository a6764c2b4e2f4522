package meter

import (
	"encoding/binary"
	"time"
)

// Field offsets within a Frame. All values are big-endian.
const (
	offModel        = 0
	offVoltage      = 2
	offCurrent      = 4
	offPower        = 6
	offTemperature  = 10
	offGroup        = 14
	offCharge       = 16
	offEnergy       = 20
	offDataMinus    = 96
	offDataPlus     = 98
	offChargingMode = 100
	offDuration     = 112
	offResistance   = 122

	groupStride = 8
	groupCount  = 10
)

// Decode interprets a frame. It never fails: unrecognised identifiers
// decode to ModelUnknown / ChargingUnknown.
func Decode(f Frame) Snapshot {
	be := binary.BigEndian

	model := ModelFromID(be.Uint16(f[offModel:]))

	// The UM25C reports millivolts; the others report centivolts.
	voltage := uint32(be.Uint16(f[offVoltage:]))
	if model != ModelUM25C {
		voltage *= 10
	}

	s := Snapshot{
		Model:        model,
		Group:        be.Uint16(f[offGroup:]),
		Voltage:      voltage,
		Current:      uint32(be.Uint16(f[offCurrent:])),
		Power:        be.Uint32(f[offPower:]),
		Resistance:   uint64(be.Uint32(f[offResistance:])) * 100,
		Temperature:  int(be.Uint16(f[offTemperature:])),
		Duration:     time.Duration(be.Uint32(f[offDuration:])) * time.Second,
		DataMinus:    uint32(be.Uint16(f[offDataMinus:])) * 10,
		DataPlus:     uint32(be.Uint16(f[offDataPlus:])) * 10,
		ChargingMode: ChargingModeFromID(be.Uint16(f[offChargingMode:])),
	}

	// Groups past the table would read into the data-line fields.
	if s.Group < groupCount {
		g := int(s.Group) * groupStride
		s.Charge = be.Uint32(f[offCharge+g:])
		s.Energy = be.Uint32(f[offEnergy+g:])
	}

	return s
}

// AccumulatorOffsets returns where the charge and energy counters of
// group live in a frame.
func AccumulatorOffsets(group int) (charge, energy int) {
	return offCharge + group*groupStride, offEnergy + group*groupStride
}
