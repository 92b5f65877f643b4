package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func framesAsStrings(frames [][]byte) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, string(f))
	}
	return out
}

func TestFrameBufferSplitAcrossReads(t *testing.T) {
	b := NewFrameBuffer(0)

	b.Write([]byte(`{"type":"pi`))
	assert.Empty(t, b.Frames())
	assert.Equal(t, 11, b.Len())

	b.Write([]byte(`ng"}` + "\n"))
	assert.Equal(t, []string{`{"type":"ping"}`}, framesAsStrings(b.Frames()))
	assert.Equal(t, 0, b.Len())
}

func TestFrameBufferSeveralFramesInOneRead(t *testing.T) {
	b := NewFrameBuffer(0)
	b.Write([]byte("one\ntwo\n\n   \nthree\nfou"))

	assert.Equal(t, []string{"one", "two", "three"}, framesAsStrings(b.Frames()))
	assert.Equal(t, 3, b.Len())

	b.Write([]byte("r\n"))
	assert.Equal(t, []string{"four"}, framesAsStrings(b.Frames()))
}

func TestFrameBufferFramesAreIndependentCopies(t *testing.T) {
	b := NewFrameBuffer(0)
	b.Write([]byte("abc\n"))
	frames := b.Frames()
	require.Len(t, frames, 1)

	b.Write([]byte("xyz\n"))
	b.Frames()
	assert.Equal(t, "abc", string(frames[0]))
}

func TestFrameBufferOversizedPartialIsFlushed(t *testing.T) {
	b := NewFrameBuffer(8)
	b.Write([]byte(strings.Repeat("x", 12)))

	frames := b.Frames()
	require.Len(t, frames, 1)
	assert.Len(t, frames[0], 12)
	assert.Equal(t, 0, b.Len())
}

func TestFrameBufferFlush(t *testing.T) {
	b := NewFrameBuffer(0)
	assert.Nil(t, b.Flush())

	b.Write([]byte("hello there"))
	assert.Empty(t, b.Frames())
	assert.Equal(t, "hello there", string(b.Flush()))
	assert.Equal(t, 0, b.Len())

	b.Write([]byte(" \r"))
	assert.Nil(t, b.Flush())
}
