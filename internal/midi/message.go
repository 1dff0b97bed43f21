// Package midi builds and inspects the short control messages carried over
// the ctrlr link, and manages the local targets they are delivered to.
package midi

import (
	"fmt"
	"strings"
)

// Status bytes (channel in the low nibble).
const (
	StatusNoteOff       byte = 0x80
	StatusNoteOn        byte = 0x90
	StatusControlChange byte = 0xB0
	SysExStart          byte = 0xF0
	SysExEnd            byte = 0xF7
)

// MMCCommand is a MIDI Machine Control command byte.
type MMCCommand byte

const (
	MMCStop          MMCCommand = 0x01
	MMCPlay          MMCCommand = 0x02
	MMCDeferredPlay  MMCCommand = 0x03
	MMCFastForward   MMCCommand = 0x04
	MMCRewind        MMCCommand = 0x05
	MMCRecordStrobe  MMCCommand = 0x06
	MMCRecordExit    MMCCommand = 0x07
	MMCPause         MMCCommand = 0x09
)

// Note and controller numbers the companion remote script listens on.
const (
	PlayNote   byte = 60
	StopNote   byte = 62
	RecordNote byte = 64
	VolumeCC   byte = 7
	ArmCC      byte = 65
	LoopCC     byte = 66
)

// DefaultVelocity matches the control surface's button velocity
const DefaultVelocity byte = 100

// NoteOn returns a note-on message. channel is 0-based.
func NoteOn(channel, note, velocity byte) []byte {
	return []byte{StatusNoteOn | channel&0x0F, note & 0x7F, velocity & 0x7F}
}

// NoteOff returns a note-off message with zero release velocity.
func NoteOff(channel, note byte) []byte {
	return []byte{StatusNoteOff | channel&0x0F, note & 0x7F, 0}
}

// ControlChange returns a continuous-controller message.
func ControlChange(channel, controller, value byte) []byte {
	return []byte{StatusControlChange | channel&0x0F, controller & 0x7F, value & 0x7F}
}

// MMC returns a broadcast (device 0x7F) MIDI Machine Control sysex.
func MMC(cmd MMCCommand) []byte {
	return []byte{SysExStart, 0x7F, 0x7F, 0x06, byte(cmd), SysExEnd}
}

// Toggle maps a boolean switch to the 0/127 CC convention.
func Toggle(on bool) byte {
	if on {
		return 127
	}
	return 0
}

// Preset returns the message sequence a named transport button sends.
// Buttons fire note-on immediately followed by note-off.
func Preset(name string) ([][]byte, error) {
	tap := func(note byte) [][]byte {
		return [][]byte{NoteOn(0, note, DefaultVelocity), NoteOff(0, note)}
	}
	switch strings.ToLower(name) {
	case "play":
		return tap(PlayNote), nil
	case "stop":
		return tap(StopNote), nil
	case "record", "rec":
		return tap(RecordNote), nil
	case "loop-on":
		return [][]byte{ControlChange(0, LoopCC, 127)}, nil
	case "loop-off":
		return [][]byte{ControlChange(0, LoopCC, 0)}, nil
	case "arm-on":
		return [][]byte{ControlChange(0, ArmCC, 127)}, nil
	case "arm-off":
		return [][]byte{ControlChange(0, ArmCC, 0)}, nil
	}
	return nil, fmt.Errorf("unknown preset %q", name)
}

// ParseMMC resolves an MMC command name.
func ParseMMC(name string) (MMCCommand, error) {
	switch strings.ToLower(name) {
	case "stop":
		return MMCStop, nil
	case "play":
		return MMCPlay, nil
	case "deferred-play":
		return MMCDeferredPlay, nil
	case "ff", "fast-forward":
		return MMCFastForward, nil
	case "rew", "rewind":
		return MMCRewind, nil
	case "record", "rec":
		return MMCRecordStrobe, nil
	case "record-exit":
		return MMCRecordExit, nil
	case "pause":
		return MMCPause, nil
	}
	return 0, fmt.Errorf("unknown MMC command %q", name)
}

// Describe renders msg for diagnostics, e.g. "note-on ch1 60 vel 100".
func Describe(msg []byte) string {
	if len(msg) == 0 {
		return "empty"
	}
	st := msg[0]
	if st == SysExStart {
		if len(msg) == 6 && msg[1] == 0x7F && msg[3] == 0x06 && msg[5] == SysExEnd {
			return fmt.Sprintf("mmc %s", mmcName(MMCCommand(msg[4])))
		}
		return fmt.Sprintf("sysex % X", msg)
	}
	ch := int(st&0x0F) + 1
	switch {
	case st&0xF0 == StatusNoteOn && len(msg) >= 3:
		return fmt.Sprintf("note-on ch%d %d vel %d", ch, msg[1], msg[2])
	case st&0xF0 == StatusNoteOff && len(msg) >= 3:
		return fmt.Sprintf("note-off ch%d %d", ch, msg[1])
	case st&0xF0 == StatusControlChange && len(msg) >= 3:
		return fmt.Sprintf("cc ch%d %d=%d", ch, msg[1], msg[2])
	}
	return fmt.Sprintf("raw % X", msg)
}

func mmcName(cmd MMCCommand) string {
	switch cmd {
	case MMCStop:
		return "stop"
	case MMCPlay:
		return "play"
	case MMCDeferredPlay:
		return "deferred-play"
	case MMCFastForward:
		return "fast-forward"
	case MMCRewind:
		return "rewind"
	case MMCRecordStrobe:
		return "record"
	case MMCRecordExit:
		return "record-exit"
	case MMCPause:
		return "pause"
	}
	return fmt.Sprintf("0x%02X", byte(cmd))
}
