package commands

import (
	"bytes"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"90 3C 64", []byte{0x90, 0x3C, 0x64}, false},
		{"903c64", []byte{0x90, 0x3C, 0x64}, false},
		{"0x90,0x3C,0x64", []byte{0x90, 0x3C, 0x64}, false},
		{"F0 7F 7F 06 01 F7", []byte{0xF0, 0x7F, 0x7F, 0x06, 0x01, 0xF7}, false},
		{"", nil, true},
		{"9", nil, true},
		{"zz", nil, true},
	}
	for _, tt := range tests {
		got, err := parseHex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseHex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && !bytes.Equal(got, tt.want) {
			t.Fatalf("parseHex(%q) = % X, want % X", tt.in, got, tt.want)
		}
	}
}

func TestParseData(t *testing.T) {
	tests := []struct {
		in      string
		want    byte
		wantErr bool
	}{
		{"60", 60, false},
		{"0x3C", 0x3C, false},
		{"127", 127, false},
		{"128", 0, true},
		{"-1", 0, true},
		{"c", 0, true},
	}
	for _, tt := range tests {
		got, err := parseData(tt.in, "note")
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseData(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseData(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
