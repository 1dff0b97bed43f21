// Package frame implements the length-prefixed framing used on the ctrlr
// wire: one length byte followed by exactly that many payload bytes. There
// is no escaping and no batching; each Read returns exactly one frame.
package frame

import (
	"errors"
	"fmt"
	"io"
)

const (
	// MaxPayload is the largest payload a single length byte can describe
	MaxPayload = 255
	// HandshakeMarker is the reserved first payload byte of a liveness ping
	HandshakeMarker byte = 0xFF
)

// ErrTooLarge is returned when a payload does not fit in one frame.
var ErrTooLarge = errors.New("frame: payload exceeds 255 bytes")

// Handshake is the canonical ping payload.
var Handshake = []byte{HandshakeMarker}

// Encode prepends the length byte to payload.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w (got %d)", ErrTooLarge, len(payload))
	}
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(len(payload))
	copy(buf[1:], payload)
	return buf, nil
}

// Write encodes payload and writes it with a single Write call so that
// concurrent frames never interleave. Nothing is written on ErrTooLarge.
func Write(w io.Writer, payload []byte) error {
	buf, err := Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Read blocks until one whole frame has arrived and returns its payload.
// A zero-length frame yields an empty, non-nil payload.
func Read(r io.Reader) ([]byte, error) {
	var hdr [1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, int(hdr[0]))
	if len(payload) == 0 {
		return payload, nil
	}
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// IsHandshake reports whether payload is a liveness ping rather than a
// routable control message. Bytes after the marker are ignored.
func IsHandshake(payload []byte) bool {
	return len(payload) > 0 && payload[0] == HandshakeMarker
}
