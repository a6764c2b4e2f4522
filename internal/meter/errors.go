package meter

import "codeberg.org/mutker/umctl/internal/errors"

const (
	// Lifecycle Errors
	ErrSessionActive = errors.ErrorCode("meter_session_active")
	ErrConnectFailed = errors.ErrorCode("meter_connect_failed")

	// Link Errors
	ErrWriteFailed = errors.ErrorCode("meter_write_failed")
	ErrLinkLost    = errors.ErrorCode("meter_link_lost")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrSessionActive: "Meter session already running",
		ErrConnectFailed: "Failed to connect to meter",
		ErrWriteFailed:   "Failed to request snapshot from meter",
		ErrLinkLost:      "Lost connection to meter",
	})
}
