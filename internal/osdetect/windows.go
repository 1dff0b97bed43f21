//go:build windows

package osdetect

import (
	"os/exec"
	"strings"
)

// detectPlatform fills in the Windows specifics
func detectPlatform(info *SystemInfo) {
	if out, err := exec.Command("cmd", "/c", "ver").Output(); err == nil {
		info.Version = strings.TrimSpace(string(out))
	}
	info.LookupHint = "install Bonjour (Bonjour Print Services) to get dns-sd.exe"
}
