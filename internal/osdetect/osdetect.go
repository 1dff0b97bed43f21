// Package osdetect reports the host platform and what it offers for
// service discovery: whether the dns-sd fallback tool is installed and
// where raw MIDI devices live.
package osdetect

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ctrlr/ctrlr/internal/exec"
)

// Platform represents the operating system type
type Platform string

const (
	PlatformDarwin  Platform = "darwin"
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

// LookupTool is the fallback discovery binary
const LookupTool = "dns-sd"

// SystemInfo contains detected system information
type SystemInfo struct {
	Platform Platform `json:"platform"`
	// Version is the OS release, e.g. "14.5" or "Ubuntu 24.04 LTS"
	Version  string `json:"version,omitempty"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
	// LookupFound reports whether dns-sd is on PATH
	LookupFound bool `json:"lookup_found"`
	// LookupHint tells the user how to get dns-sd on this platform
	LookupHint string `json:"lookup_hint,omitempty"`
	// RawMIDI reports whether the platform exposes raw MIDI device files
	RawMIDI bool `json:"raw_midi"`
}

// String returns a human-readable representation of SystemInfo
func (s SystemInfo) String() string {
	if s.Version != "" {
		return fmt.Sprintf("%s %s (%s)", s.Platform, s.Version, s.Arch)
	}
	return fmt.Sprintf("%s (%s)", s.Platform, s.Arch)
}

// Detect detects the current system information
func Detect() *SystemInfo {
	info := &SystemInfo{
		Platform:    platformOf(runtime.GOOS),
		Arch:        runtime.GOARCH,
		LookupFound: exec.CommandExists(LookupTool),
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	detectPlatform(info)
	if info.LookupFound {
		info.LookupHint = ""
	}
	return info
}

func platformOf(goos string) Platform {
	switch goos {
	case "darwin":
		return PlatformDarwin
	case "linux":
		return PlatformLinux
	case "windows":
		return PlatformWindows
	default:
		return PlatformUnknown
	}
}
