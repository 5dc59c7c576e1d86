// Package frame resynchronizes an unbounded byte stream into validated MDP
// wire frames, tolerating concatenation, fragmentation and garbage bytes.
package frame

import (
	"bytes"

	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/kstaniek/mdp-host/internal/metrics"
)

const (
	magic0 = 0x5A
	magic1 = 0x5A

	headerSize = 6
	minSize    = headerSize

	// garbageCap bounds how much buffered, unresolvable garbage the scanner
	// will hold before giving up and discarding it outright.
	garbageCap = 256
)

// Frame is one validated, checksummed wire frame including its 6-byte
// header. Payload is frame[6:].
type Frame []byte

// Type returns the frame's packet-type tag (frame[2]).
func (f Frame) Type() uint8 { return f[2] }

// Channel returns the frame's header channel selector (frame[4]).
func (f Frame) Channel() uint8 { return f[4] }

// Payload returns the bytes after the 6-byte header.
func (f Frame) Payload() []byte { return f[headerSize:] }

// Scanner owns a growing receive buffer and turns Feed calls into a sequence
// of validated frames using a resync-and-checksum algorithm for the MDP
// UART envelope.
type Scanner struct {
	buf bytes.Buffer
}

// NewScanner returns an empty Scanner.
func NewScanner() *Scanner { return &Scanner{} }

// Feed appends newly read bytes and invokes onFrame for every frame that can
// now be fully resolved, in stream order. Multiple frames present after one
// Feed call are all emitted in this one call.
func (s *Scanner) Feed(data []byte, onFrame func(Frame)) {
	s.buf.Write(data)
	for {
		buf := s.buf.Bytes()

		i := bytes.Index(buf, []byte{magic0, magic1})
		if i < 0 {
			// No magic anywhere in the buffer. Past the garbage cap the whole
			// buffer is discarded; otherwise only the last byte is kept, in
			// case it is the first half of a magic split across Feed calls.
			if len(buf) > garbageCap {
				metrics.IncFramingError(metrics.FramingOversizeBuffer)
				logging.L().Debug("frame_garbage_discard", "bytes", len(buf))
				s.buf.Reset()
			} else if len(buf) > 1 {
				last := buf[len(buf)-1]
				s.buf.Reset()
				_ = s.buf.WriteByte(last)
			}
			return
		}
		if i > 0 {
			metrics.IncFramingError(metrics.FramingBadMagic)
			logging.L().Debug("frame_bad_magic", "discarded", i)
			s.buf.Next(i)
			continue
		}

		if len(buf) < 4 {
			return
		}
		if buf[2] == magic1 {
			// Three magic bytes in a row: the first is a stray garbage byte
			// (no packet type is 0x5A), so realign one byte later.
			s.buf.Next(1)
			continue
		}
		size := int(buf[3])
		if size < minSize {
			metrics.IncFramingError(metrics.FramingShortSize)
			s.buf.Next(2) // drop the magic pair, do not trust size to advance
			continue
		}
		if len(buf) < size {
			return
		}

		payload := buf[headerSize:size]
		sum := xorChecksum(payload)
		if sum != buf[5] {
			metrics.IncFramingError(metrics.FramingChecksumMismatch)
			logging.L().Debug("frame_checksum_mismatch", "size", size)
			s.buf.Next(size)
			continue
		}

		f := make(Frame, size)
		copy(f, buf[:size])
		s.buf.Next(size)
		onFrame(f)
	}
}

func xorChecksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}
