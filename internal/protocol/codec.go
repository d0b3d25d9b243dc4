package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBadMagic means the stream is not positioned at a frame boundary.
	// The connection is unrecoverable and must be closed.
	ErrBadMagic = errors.New("protocol: bad magic")
	// ErrFrameTooLarge means the header announced a body beyond MaxFrameSize.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")
)

// Encode serializes a frame in wire order. The length field is derived from
// the body, never trusted from the header.
func Encode(f Frame) []byte {
	out := make([]byte, HeaderLength+len(f.Body))
	binary.BigEndian.PutUint16(out[0:2], f.Header.Magic)
	out[2] = f.Header.Version
	out[3] = f.Header.Serial
	out[4] = byte(f.Header.Cmd)
	binary.BigEndian.PutUint64(out[5:13], f.Header.ReqID)
	binary.BigEndian.PutUint32(out[13:17], uint32(len(f.Body)))
	copy(out[HeaderLength:], f.Body)
	return out
}

// Decoder reassembles frames from an arbitrarily segmented byte stream.
// Partial input is buffered until a complete frame is available; the
// unconsumed tail is preserved across Push calls so TCP fragmentation and
// coalescing never corrupt framing.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty stream decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Push appends bytes to the decode buffer and extracts every complete frame
// now available. A non-nil error (bad magic, oversized frame) is fatal: the
// decoder state is poisoned and the caller must close the connection.
func (d *Decoder) Push(p []byte) ([]Frame, error) {
	d.buf = append(d.buf, p...)

	var frames []Frame
	for {
		if len(d.buf) < HeaderLength {
			return frames, nil
		}

		magic := binary.BigEndian.Uint16(d.buf[0:2])
		if magic != Magic {
			return frames, fmt.Errorf("%w: 0x%04X", ErrBadMagic, magic)
		}

		length := binary.BigEndian.Uint32(d.buf[13:17])
		if uint64(length) > MaxFrameSize-HeaderLength {
			return frames, fmt.Errorf("%w: body length %d", ErrFrameTooLarge, length)
		}

		total := HeaderLength + int(length)
		if len(d.buf) < total {
			// Wait for the rest of the body.
			return frames, nil
		}

		f := Frame{Header: Header{
			Magic:   magic,
			Version: d.buf[2],
			Serial:  d.buf[3],
			Cmd:     CmdType(d.buf[4]),
			ReqID:   binary.BigEndian.Uint64(d.buf[5:13]),
			Length:  length,
		}}
		if length > 0 {
			f.Body = append([]byte(nil), d.buf[HeaderLength:total]...)
		}
		frames = append(frames, f)

		rest := len(d.buf) - total
		copy(d.buf, d.buf[total:])
		d.buf = d.buf[:rest]
	}
}

// Buffered reports how many undecoded bytes are pending.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
