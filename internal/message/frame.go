package message

import (
	"bytes"

	"github.com/codefionn/netserver/internal/consts"
)

// DefaultMaxFrameSize bounds a partial frame held by a FrameBuffer
const DefaultMaxFrameSize = consts.BufferSize64KB

// FrameBuffer accumulates bytes from successive reads and splits them into
// newline-terminated frames. A trailing partial frame is kept until the rest
// of it arrives. It is not safe for concurrent use.
type FrameBuffer struct {
	buf []byte
	max int
}

// NewFrameBuffer creates a buffer that flushes a partial frame once it grows
// beyond maxFrame bytes. maxFrame <= 0 selects DefaultMaxFrameSize.
func NewFrameBuffer(maxFrame int) *FrameBuffer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &FrameBuffer{max: maxFrame}
}

// Write appends a chunk of received bytes
func (b *FrameBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Frames extracts every complete frame without its delimiter. Blank lines are
// dropped.
func (b *FrameBuffer) Frames() [][]byte {
	var frames [][]byte
	start := 0
	for {
		idx := bytes.IndexByte(b.buf[start:], Delimiter)
		if idx < 0 {
			break
		}
		line := b.buf[start : start+idx]
		start += idx + 1
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		frames = append(frames, append([]byte(nil), line...))
	}

	rest := len(b.buf) - start
	copy(b.buf, b.buf[start:])
	b.buf = b.buf[:rest]

	// an oversized partial frame is delivered as-is
	if len(b.buf) > b.max {
		frames = append(frames, append([]byte(nil), b.buf...))
		b.buf = b.buf[:0]
	}
	return frames
}

// Flush returns the pending partial frame, if any, and empties the buffer
func (b *FrameBuffer) Flush() []byte {
	if len(bytes.TrimSpace(b.buf)) == 0 {
		b.buf = b.buf[:0]
		return nil
	}
	out := append([]byte(nil), b.buf...)
	b.buf = b.buf[:0]
	return out
}

// Len returns the number of buffered bytes not yet returned as a frame
func (b *FrameBuffer) Len() int {
	return len(b.buf)
}
