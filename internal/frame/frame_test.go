package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestRoundTripAllLengths(t *testing.T) {
	for n := 0; n <= MaxPayload; n++ {
		payload := bytes.Repeat([]byte{byte(n)}, n)
		var buf bytes.Buffer
		if err := Write(&buf, payload); err != nil {
			t.Fatalf("Write(len=%d): %v", n, err)
		}
		if buf.Len() != n+1 {
			t.Fatalf("encoded len=%d, want %d", buf.Len(), n+1)
		}
		got, err := Read(&buf)
		if err != nil {
			t.Fatalf("Read(len=%d): %v", n, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch at len=%d", n)
		}
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, make([]byte, 300)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge from Write, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("oversized write produced %d bytes on the wire", buf.Len())
	}
}

func TestReadSequentialFrames(t *testing.T) {
	wire := []byte{0x02, 0xFF, 0x01, 0x03, 0x90, 0x3C, 0x64}
	r := bytes.NewReader(wire)

	first, err := Read(r)
	if err != nil {
		t.Fatal(err)
	}
	if !IsHandshake(first) {
		t.Fatalf("first frame %x should be a handshake", first)
	}

	second, err := Read(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(second, []byte{0x90, 0x3C, 0x64}) {
		t.Fatalf("second frame = %x", second)
	}
	if IsHandshake(second) {
		t.Fatal("note-on must not be treated as handshake")
	}

	if _, err := Read(r); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadTruncatedPayload(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0x03, 0x90}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestIsHandshake(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"empty", []byte{}, false},
		{"marker only", []byte{0xFF}, true},
		{"marker with trailing bytes", []byte{0xFF, 0x01, 0x02}, true},
		{"control change", []byte{0xB0, 0x07, 0x7F}, false},
		{"sysex", []byte{0xF0, 0x7F, 0x7F, 0x06, 0x02, 0xF7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHandshake(tt.payload); got != tt.want {
				t.Fatalf("IsHandshake(%x) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}
