package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/status"
)

const panelWidth = 60

// RenderStatus draws the status panel for a snapshot
func RenderStatus(s status.Snapshot, now time.Time) string {
	var sb strings.Builder

	title := fmt.Sprintf(" ctrlr %s ", s.Role)
	rightDashes := panelWidth - 2 - 3 - utf8.RuneCountInString(title)
	if rightDashes < 0 {
		rightDashes = 0
	}
	sb.WriteString(Color(Cyan, BoxTopLeft+strings.Repeat(BoxHorizontal, 3)))
	sb.WriteString(Color(Cyan+Bold, title))
	sb.WriteString(Color(Cyan, strings.Repeat(BoxHorizontal, rightDashes)+BoxTopRight))
	sb.WriteString("\n")

	since := ""
	if !s.Since.IsZero() {
		since = fmt.Sprintf(" (%s)", now.Sub(s.Since).Truncate(time.Second))
	}
	sb.WriteString(formatInfoLine("state", Color(StateColor(s.State), s.State.String())+since))
	sb.WriteString(formatInfoLine("connected", yesNo(s.Connected)))
	sb.WriteString(formatInfoLine("peer", orDash(s.Peer)))
	sb.WriteString(formatInfoLine("endpoint", orDash(s.Endpoint)))
	sb.WriteString(formatInfoLine("sources", fmt.Sprintf("%d", s.SourceCount)))
	sb.WriteString(formatInfoLine("rejected", fmt.Sprintf("%d", s.Rejected)))
	sb.WriteString(formatInfoLine("discovery", orDash(s.Discovery)))

	sb.WriteString(Color(Cyan, BoxBottomLeft+strings.Repeat(BoxHorizontal, panelWidth-2)+BoxBottomRight))
	sb.WriteString("\n")
	return sb.String()
}

// formatInfoLine creates a "label: value" line inside the panel
func formatInfoLine(label, value string) string {
	content := fmt.Sprintf(" %-10s %s", label+":", value)
	pad := panelWidth - 2 - visibleLength(content)
	if pad < 0 {
		pad = 0
	}
	return Color(Cyan, BoxVertical) + content + strings.Repeat(" ", pad) + Color(Cyan, BoxVertical) + "\n"
}

// visibleLength counts runes, skipping ANSI escape sequences
func visibleLength(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		default:
			n++
		}
	}
	return n
}

// RenderDiagnostics colors the WARN lines of a diagnostic log
func RenderDiagnostics(lines []string) string {
	if len(lines) == 0 {
		return RenderDim("no diagnostics yet") + "\n"
	}
	var sb strings.Builder
	for _, line := range lines {
		if strings.Contains(line, "[WARN]") {
			line = Color(Yellow, line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderTargets lists targets, marking the selected one
func RenderTargets(infos []midi.Info) string {
	if len(infos) == 0 {
		return RenderDim("no targets") + "\n"
	}
	var sb strings.Builder
	for _, info := range infos {
		mark := "  "
		if info.Selected {
			mark = Color(Green, "* ")
		}
		fmt.Fprintf(&sb, "%s%-24s %s\n", mark, info.ID, Color(Dim, info.Name))
	}
	return sb.String()
}

// RenderError formats an error message
func RenderError(err error) string {
	return Color(Red, "Error: ") + err.Error()
}

// RenderSuccess formats a success message
func RenderSuccess(msg string) string {
	return Color(Green, "✓ ") + msg
}

// RenderDim formats dimmed text
func RenderDim(msg string) string {
	return Color(Dim, msg)
}

func yesNo(b bool) string {
	if b {
		return Color(Green, "yes")
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
