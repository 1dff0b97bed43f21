//go:build linux

package osdetect

import (
	"bufio"
	"os"
	"strings"
)

// detectPlatform fills in the Linux specifics
func detectPlatform(info *SystemInfo) {
	info.Version = osRelease("/etc/os-release")
	info.LookupHint = "install Avahi's Bonjour compatibility tools (e.g. avahi-utils / libavahi-compat) or set lookup_command"
	if _, err := os.Stat("/dev/snd"); err == nil {
		info.RawMIDI = true
	}
}

// osRelease returns PRETTY_NAME from an os-release file
func osRelease(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if key, value, ok := strings.Cut(scanner.Text(), "="); ok {
			values[key] = strings.Trim(value, `"`)
		}
	}
	if name := values["PRETTY_NAME"]; name != "" {
		return name
	}
	return strings.TrimSpace(values["NAME"] + " " + values["VERSION_ID"])
}
