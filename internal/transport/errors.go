package transport

import "codeberg.org/mutker/umctl/internal/errors"

const (
	// Discovery Errors
	ErrAdapterUnavailable = errors.ErrorCode("transport_adapter_unavailable")
	ErrScanFailed         = errors.ErrorCode("transport_scan_failed")
	ErrDeviceNotFound     = errors.ErrorCode("transport_device_not_found")
	ErrServiceNotFound    = errors.ErrorCode("transport_service_not_found")
	ErrSubscribeFailed    = errors.ErrorCode("transport_subscribe_failed")

	// Link Errors
	ErrOpenFailed  = errors.ErrorCode("transport_open_failed")
	ErrLinkClosed  = errors.ErrorCode("transport_link_closed")
	ErrWriteFailed = errors.ErrorCode("transport_write_failed")
	ErrReadFailed  = errors.ErrorCode("transport_read_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrAdapterUnavailable: "Bluetooth adapter unavailable",
		ErrScanFailed:         "Bluetooth scan failed",
		ErrDeviceNotFound:     "No matching meter found",
		ErrServiceNotFound:    "Meter service not found",
		ErrSubscribeFailed:    "Failed to subscribe to meter notifications",
		ErrOpenFailed:         "Failed to open link",
		ErrLinkClosed:         "Link closed",
		ErrWriteFailed:        "Failed to write to link",
		ErrReadFailed:         "Failed to read from link",
	})
}
