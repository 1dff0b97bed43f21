package midi

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// DefaultRawMIDIGlob matches ALSA raw MIDI device nodes
const DefaultRawMIDIGlob = "/dev/snd/midiC*D*"

// Target is a local destination for inbound control messages, such as a
// virtual MIDI port visible to the DAW.
type Target interface {
	ID() string
	Name() string
	Send(msg []byte) error
}

// FuncTarget adapts a function to the Target interface.
type FuncTarget struct {
	TargetID   string
	TargetName string
	Fn         func(msg []byte) error
}

func (f *FuncTarget) ID() string   { return f.TargetID }
func (f *FuncTarget) Name() string { return f.TargetName }

// Send calls Fn with a private copy of msg.
func (f *FuncTarget) Send(msg []byte) error {
	return f.Fn(append([]byte(nil), msg...))
}

// LogTarget writes every message to a zap logger. It is the fallback
// target when no device is available.
type LogTarget struct {
	log *zap.Logger
}

// NewLogTarget creates a LogTarget
func NewLogTarget(log *zap.Logger) *LogTarget {
	return &LogTarget{log: log.Named("midi")}
}

func (t *LogTarget) ID() string   { return "log" }
func (t *LogTarget) Name() string { return "Log" }

func (t *LogTarget) Send(msg []byte) error {
	t.log.Info("control message",
		zap.String("msg", Describe(msg)),
		zap.String("hex", hex.EncodeToString(msg)))
	return nil
}

// DeviceTarget writes raw message bytes to a character device or FIFO,
// e.g. an ALSA rawmidi node or a virmidi port. The file is opened lazily
// and reopened after a write error.
type DeviceTarget struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewDeviceTarget creates a DeviceTarget for path
func NewDeviceTarget(path string) *DeviceTarget {
	return &DeviceTarget{path: path}
}

func (d *DeviceTarget) ID() string   { return "rawmidi:" + filepath.Base(d.path) }
func (d *DeviceTarget) Name() string { return filepath.Base(d.path) }

func (d *DeviceTarget) Send(msg []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
		if err != nil {
			return fmt.Errorf("open %s: %w", d.path, err)
		}
		d.f = f
	}
	if _, err := d.f.Write(msg); err != nil {
		d.f.Close()
		d.f = nil
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	return nil
}

// Close releases the device handle
func (d *DeviceTarget) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Fanout delivers each message to every member, mirroring one stream to a
// script port and a MIDI-learnable map port.
type Fanout struct {
	id      string
	name    string
	members []Target
}

// NewFanout groups members under a single target id
func NewFanout(id, name string, members ...Target) *Fanout {
	return &Fanout{id: id, name: name, members: members}
}

func (f *Fanout) ID() string   { return f.id }
func (f *Fanout) Name() string { return f.name }

func (f *Fanout) Send(msg []byte) error {
	var errs []error
	for _, m := range f.members {
		if err := m.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// ScanRawMIDI returns a Scanner that lists device nodes matching pattern.
func ScanRawMIDI(pattern string) Scanner {
	return func() ([]Target, error) {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		targets := make([]Target, 0, len(paths))
		for _, p := range paths {
			targets = append(targets, NewDeviceTarget(p))
		}
		return targets, nil
	}
}
