package meter

const (
	// FrameSize is the length of one telemetry record.
	FrameSize = 130

	// ChunkSize is the notification unit that closes a frame. The link
	// delivers 20-byte notifications followed by a final 10-byte one.
	ChunkSize = 10

	// CmdRequestSnapshot asks the meter for one frame.
	CmdRequestSnapshot byte = 0xF0
)

// Frame is one complete, fixed-layout record as sent by the meter.
type Frame [FrameSize]byte

// Model identifies the meter hardware.
type Model int

const (
	ModelUnknown Model = iota
	ModelUM24C
	ModelUM25C
	ModelUM34C
)

var modelIDs = map[uint16]Model{
	0x0963: ModelUM24C,
	0x09c9: ModelUM25C,
	0x0d4c: ModelUM34C,
}

// ModelFromID resolves the identifier at frame offset 0.
func ModelFromID(id uint16) Model {
	if m, ok := modelIDs[id]; ok {
		return m
	}

	return ModelUnknown
}

func (m Model) String() string {
	switch m {
	case ModelUM24C:
		return "UM24C"
	case ModelUM25C:
		return "UM25C"
	case ModelUM34C:
		return "UM34C"
	default:
		return "n/a"
	}
}

// ChargingMode is the fast-charge protocol detected on the data lines.
type ChargingMode int

const (
	ChargingUnknown ChargingMode = iota
	ChargingQC2
	ChargingQC3
	ChargingApple24
	ChargingApple21
	ChargingApple10
	ChargingApple05
	ChargingDCP15
	ChargingSamsung
)

var chargingModeNames = [...]string{
	ChargingUnknown: "unknown",
	ChargingQC2:     "QC2",
	ChargingQC3:     "QC3",
	ChargingApple24: "APP2.4A",
	ChargingApple21: "APP2.1A",
	ChargingApple10: "APP1.0A",
	ChargingApple05: "APP0.5A",
	ChargingDCP15:   "DCP1.5A",
	ChargingSamsung: "SAMSUNG",
}

// ChargingModeFromID maps the wire value at offset 100. Values 1..8 are
// defined by the firmware; everything else is unknown.
func ChargingModeFromID(id uint16) ChargingMode {
	if id >= uint16(ChargingQC2) && id <= uint16(ChargingSamsung) {
		return ChargingMode(id)
	}

	return ChargingUnknown
}

func (c ChargingMode) String() string {
	if c < 0 || int(c) >= len(chargingModeNames) {
		return chargingModeNames[ChargingUnknown]
	}

	return chargingModeNames[c]
}
