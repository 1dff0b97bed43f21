package osdetect

import (
	"runtime"
	"testing"
)

func TestPlatformOf(t *testing.T) {
	tests := []struct {
		goos string
		want Platform
	}{
		{"darwin", PlatformDarwin},
		{"linux", PlatformLinux},
		{"windows", PlatformWindows},
		{"plan9", PlatformUnknown},
	}
	for _, tt := range tests {
		if got := platformOf(tt.goos); got != tt.want {
			t.Fatalf("platformOf(%q) = %s, want %s", tt.goos, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	info := Detect()
	if info.Arch != runtime.GOARCH {
		t.Fatalf("Arch = %s", info.Arch)
	}
	if info.LookupFound && info.LookupHint != "" {
		t.Fatalf("hint should be empty when dns-sd is installed")
	}
	if !info.LookupFound && info.LookupHint == "" {
		t.Fatalf("missing install hint")
	}
}

func TestStringWithoutVersion(t *testing.T) {
	s := SystemInfo{Platform: PlatformLinux, Arch: "arm64"}
	if s.String() != "linux (arm64)" {
		t.Fatalf("String() = %q", s.String())
	}
}
