//go:build darwin

package osdetect

import (
	"os/exec"
	"strings"
)

// detectPlatform fills in the macOS specifics. dns-sd ships with the OS.
func detectPlatform(info *SystemInfo) {
	if out, err := exec.Command("sw_vers", "-productVersion").Output(); err == nil {
		info.Version = strings.TrimSpace(string(out))
	}
	info.LookupHint = "dns-sd is part of macOS; check that /usr/bin is on PATH"
}
