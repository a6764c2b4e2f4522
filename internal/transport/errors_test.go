package transport_test

import (
	"testing"

	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/transport"
	"github.com/stretchr/testify/assert"
)

func TestErrorCodesHaveMessages(t *testing.T) {
	codes := []errors.ErrorCode{
		transport.ErrAdapterUnavailable, transport.ErrScanFailed, transport.ErrDeviceNotFound,
		transport.ErrServiceNotFound, transport.ErrSubscribeFailed, transport.ErrOpenFailed,
		transport.ErrLinkClosed, transport.ErrWriteFailed, transport.ErrReadFailed,
	}
	for _, code := range codes {
		assert.NotEqual(t, string(code), errors.GetErrorMessage(code), code)
	}
}
