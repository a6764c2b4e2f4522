package config

import (
	"time"

	"codeberg.org/mutker/umctl/internal/recorder"
)

// Provider defines the interface for accessing configuration values.
// Values are immutable after loading.
type Provider interface {
	// GetTransport returns "ble" or "serial"
	GetTransport() string

	// GetDevice returns the BLE address or name filter, or the serial port
	GetDevice() string

	GetBaudRate() int

	// GetInterval returns the delay between a completed cycle and the
	// next snapshot request
	GetInterval() time.Duration

	GetConnectTimeout() time.Duration

	// GetLogLevel returns the configured logging level
	GetLogLevel() string

	// IsRecordEnabled returns whether snapshots are written to SQLite
	IsRecordEnabled() bool

	RecorderConfig() recorder.Config
}

var _ Provider = (*Config)(nil)
