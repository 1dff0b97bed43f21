// Package ui renders ctrlr status for terminals: plain ANSI output for the
// one-shot commands and a bubbletea monitor for `ctrlr watch`.
package ui

import (
	"os"

	"github.com/ctrlr/ctrlr/internal/status"
	"golang.org/x/term"
)

// ANSI color codes
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Cyan   = "\033[36m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Red    = "\033[31m"
)

// Box drawing characters
const (
	BoxTopLeft     = "╭"
	BoxTopRight    = "╮"
	BoxBottomLeft  = "╰"
	BoxBottomRight = "╯"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
)

var (
	colorEnabled = true
	isTTY        = true
)

func init() {
	// https://no-color.org/
	if os.Getenv("NO_COLOR") != "" {
		colorEnabled = false
	}
	isTTY = term.IsTerminal(int(os.Stdout.Fd()))
	if !isTTY {
		colorEnabled = false
	}
}

// SetNoColor disables color output
func SetNoColor(disable bool) {
	if disable {
		colorEnabled = false
	}
}

// IsColorEnabled returns whether color output is enabled
func IsColorEnabled() bool {
	return colorEnabled
}

// IsTTY returns whether stdout is a terminal
func IsTTY() bool {
	return isTTY
}

// Color wraps text with an ANSI color code
func Color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + Reset
}

// StateColor picks the color a state is shown in
func StateColor(s status.State) string {
	switch s {
	case status.Verified:
		return Green
	case status.Failed:
		return Red
	case status.Disconnected:
		return Dim
	default:
		return Yellow
	}
}
