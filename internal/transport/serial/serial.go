// Package serial connects to a meter through its Bluetooth SPP port
// (an rfcomm tty). The byte stream is cut back into the notification
// sizes the BLE link uses, so the meter session frames both the same way.
package serial

import (
	"context"
	"io"
	"time"

	"codeberg.org/mutker/umctl/internal/errors"
	"codeberg.org/mutker/umctl/internal/logger"
	"codeberg.org/mutker/umctl/internal/meter"
	"codeberg.org/mutker/umctl/internal/transport"
	goserial "go.bug.st/serial"
)

const (
	DefaultPort     = "/dev/rfcomm0"
	DefaultBaudRate = 9600

	// notifySize is the BLE notification payload; a frame is six of these
	// and a closing meter.ChunkSize one.
	notifySize = 20

	// idleTimeout bounds one read. An idle gap inside a frame means bytes
	// were lost, so the partial frame is dropped.
	idleTimeout = 250 * time.Millisecond
)

type Config struct {
	Port     string
	BaudRate int
}

// Port is the subset of go.bug.st/serial.Port the transport uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port. Tests swap in an in-memory port.
type Opener func(name string, mode *goserial.Mode) (Port, error)

type Transport struct {
	cfg  Config
	open Opener
	log  logger.Logger
}

func New(cfg Config, log logger.Logger) *Transport {
	return NewWithOpener(cfg, func(name string, mode *goserial.Mode) (Port, error) {
		return goserial.Open(name, mode)
	}, log)
}

func NewWithOpener(cfg Config, open Opener, log logger.Logger) *Transport {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	return &Transport{cfg: cfg, open: open, log: log.With("serial")}
}

func (t *Transport) Connect(ctx context.Context) (meter.Conn, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return nil, errFactory.Wrap(transport.ErrOpenFailed, err)
	}

	port, err := t.open(t.cfg.Port, &goserial.Mode{
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, errFactory.Wrap(transport.ErrOpenFailed, err).WithData(describePortError(t.cfg.Port, err))
	}

	if err := port.SetReadTimeout(idleTimeout); err != nil {
		port.Close()
		return nil, errFactory.Wrap(transport.ErrOpenFailed, err)
	}

	t.log.Info().Str("port", t.cfg.Port).Int("baud_rate", t.cfg.BaudRate).Msg("Opened serial port")

	link := transport.NewLink(
		func(b []byte) error {
			_, err := port.Write(b)
			return err
		},
		port.Close,
	)
	go t.pump(port, link)

	return link, nil
}

// pump reads the stream and re-chunks it until the port fails or closes.
func (t *Transport) pump(port Port, link *transport.Link) {
	defer link.End()

	c := newChunker()
	buf := make([]byte, meter.FrameSize)

	for {
		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-link.Done():
			default:
				link.Fail(errors.New().Wrap(transport.ErrReadFailed, err))
			}
			return
		}

		if n == 0 {
			if dropped := c.reset(); dropped > 0 {
				t.log.Debug().Int("bytes", dropped).Msg("Dropping partial frame after idle gap")
			}
			continue
		}

		for _, chunk := range c.feed(buf[:n]) {
			if !link.Deliver(chunk) {
				return
			}
		}
	}
}

// chunker cuts a byte stream into 20-byte pieces with a 10-byte piece
// closing every frame.
type chunker struct {
	pending []byte
	offset  int
}

func newChunker() *chunker {
	return &chunker{pending: make([]byte, 0, notifySize)}
}

func (c *chunker) next() int {
	if c.offset >= meter.FrameSize-meter.ChunkSize {
		return meter.ChunkSize
	}

	return notifySize
}

func (c *chunker) feed(b []byte) [][]byte {
	var out [][]byte

	for len(b) > 0 {
		want := c.next() - len(c.pending)
		n := min(want, len(b))
		c.pending = append(c.pending, b[:n]...)
		b = b[n:]

		if len(c.pending) == c.next() {
			out = append(out, append([]byte(nil), c.pending...))
			c.offset = (c.offset + len(c.pending)) % meter.FrameSize
			c.pending = c.pending[:0]
		}
	}

	return out
}

// reset drops a partially received frame and reports how many bytes went.
func (c *chunker) reset() int {
	dropped := c.offset + len(c.pending)
	c.offset = 0
	c.pending = c.pending[:0]

	return dropped
}

func describePortError(port string, err error) string {
	var portErr *goserial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case goserial.PortNotFound:
			return port + ": not found (is the rfcomm device bound?)"
		case goserial.PortBusy:
			return port + ": busy"
		case goserial.PermissionDenied:
			return port + ": permission denied"
		}
	}

	return port
}
