package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ctrlr/ctrlr/internal/exec"
)

// reachableRE matches dns-sd style "can be reached at host:port" output.
var reachableRE = regexp.MustCompile(`(?:reachable|reached) at (\S+):(\d+)`)

// ParseReachable extracts host and port from one line of lookup output.
func ParseReachable(line string) (string, uint16, bool) {
	m := reachableRE.FindStringSubmatch(line)
	if m == nil {
		return "", 0, false
	}
	port, err := strconv.ParseUint(m[2], 10, 16)
	if err != nil || port == 0 {
		return "", 0, false
	}
	return m[1], uint16(port), true
}

// DefaultLookupCommand returns the dns-sd invocation for service
func DefaultLookupCommand(service Service) []string {
	return []string{"dns-sd", "-L", service.Instance, service.Type, service.Domain}
}

// Lookup is the subprocess fallback: one run of the lookup command per Find
type Lookup struct {
	command []string
	runner  *exec.Runner
}

// NewLookup creates a Lookup; command[0] is the executable.
func NewLookup(command []string) *Lookup {
	r := exec.NewRunner()
	r.Timeout = LookupTimeout
	return &Lookup{command: command, runner: r}
}

// SetTimeout bounds each run of the lookup command
func (l *Lookup) SetTimeout(d time.Duration) {
	if d > 0 {
		l.runner.Timeout = d
	}
}

// Name implements Source
func (l *Lookup) Name() string { return "dns-sd" }

// Find implements Source
func (l *Lookup) Find(ctx context.Context, accept func(Candidate) bool) (PeerAddress, error) {
	if len(l.command) == 0 {
		return PeerAddress{}, fmt.Errorf("%w: no lookup command configured", ErrFailed)
	}
	if !exec.CommandExists(l.command[0]) {
		return PeerAddress{}, fmt.Errorf("%w: %s not found in PATH", ErrFailed, l.command[0])
	}

	var found Candidate
	res := l.runner.Stream(ctx, l.command[0], l.command[1:], func(line string) bool {
		host, port, ok := ParseReachable(line)
		if !ok {
			return false
		}
		found = Candidate{
			Addr:     PeerAddress{Host: strings.TrimSuffix(host, "."), Port: port},
			HostName: host,
		}
		return true
	})
	if !res.OK() {
		if res.TimedOut {
			return PeerAddress{}, fmt.Errorf("%w: %s", ErrTimeout, res)
		}
		return PeerAddress{}, fmt.Errorf("%w: %v", ErrFailed, res.Error)
	}
	if !accept(found) {
		return PeerAddress{}, fmt.Errorf("%w: %s", ErrStaleRecord, found.Addr)
	}
	return found.Addr, nil
}
