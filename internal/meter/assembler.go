package meter

// Assembler rebuilds frames from link notifications. Framing is inferred
// only from notification sizes: a ChunkSize chunk ends a cycle, and the
// cycle yields a frame if exactly FrameSize bytes were collected. There is
// no length field or checksum to check against.
type Assembler struct {
	buf []byte
}

func NewAssembler() *Assembler {
	return &Assembler{buf: make([]byte, 0, FrameSize)}
}

// Feed appends chunk to the pending buffer. boundary is true when chunk
// closed a notification cycle, in which case the buffer has been reset
// whether or not a frame came out of it. A mis-sized cycle is dropped.
func (a *Assembler) Feed(chunk []byte) (frame *Frame, boundary bool) {
	a.buf = append(a.buf, chunk...)

	if len(chunk) != ChunkSize {
		return nil, false
	}

	if len(a.buf) == FrameSize {
		frame = new(Frame)
		copy(frame[:], a.buf)
	}
	a.buf = a.buf[:0]

	return frame, true
}

// Buffered returns the number of bytes waiting for the next boundary.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Reset drops any partial cycle.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
}
