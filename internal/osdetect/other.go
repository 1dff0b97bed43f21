//go:build !darwin && !linux && !windows

package osdetect

func detectPlatform(info *SystemInfo) {
	info.LookupHint = "install a dns-sd compatible tool or set lookup_command"
}
