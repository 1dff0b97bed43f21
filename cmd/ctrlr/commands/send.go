package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ctrlr/ctrlr/internal/control"
	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/ui"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send control messages to the connected peer",
	Long: `Send control messages through the running daemon. Every message is
framed on its own; nothing is sent unless the link is verified.

Examples:
  ctrlr send note 60
  ctrlr send cc 7 100 --channel 2
  ctrlr send mmc stop
  ctrlr send preset record
  ctrlr send raw "90 3C 64"`,
}

var sendNoteCmd = &cobra.Command{
	Use:   "note <note>",
	Short: "Send a note-on (or note-off with --off)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := channelFlag(cmd)
		if err != nil {
			return err
		}
		note, err := parseData(args[0], "note")
		if err != nil {
			return err
		}
		velocity, _ := cmd.Flags().GetUint8("velocity")
		off, _ := cmd.Flags().GetBool("off")
		msg := midi.NoteOn(ch, note, velocity)
		if off {
			msg = midi.NoteOff(ch, note)
		}
		return sendAll(cmd, [][]byte{msg})
	},
}

var sendCCCmd = &cobra.Command{
	Use:   "cc <controller> <value>",
	Short: "Send a control change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := channelFlag(cmd)
		if err != nil {
			return err
		}
		controller, err := parseData(args[0], "controller")
		if err != nil {
			return err
		}
		value, err := parseData(args[1], "value")
		if err != nil {
			return err
		}
		return sendAll(cmd, [][]byte{midi.ControlChange(ch, controller, value)})
	},
}

var sendMMCCmd = &cobra.Command{
	Use:   "mmc <stop|play|deferred-play|ff|rewind|record|record-exit|pause>",
	Short: "Send a MIDI Machine Control command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := midi.ParseMMC(args[0])
		if err != nil {
			return err
		}
		return sendAll(cmd, [][]byte{midi.MMC(command)})
	},
}

var sendPresetCmd = &cobra.Command{
	Use:   "preset <play|stop|record|loop-on|loop-off|arm-on|arm-off>",
	Short: "Send a transport preset understood by the workstation script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := midi.Preset(args[0])
		if err != nil {
			return err
		}
		return sendAll(cmd, msgs)
	},
}

var sendRawCmd = &cobra.Command{
	Use:   "raw <hex>",
	Short: "Send raw bytes given as hex",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := parseHex(strings.Join(args, " "))
		if err != nil {
			return err
		}
		return sendAll(cmd, [][]byte{msg})
	},
}

func init() {
	for _, c := range []*cobra.Command{sendNoteCmd, sendCCCmd} {
		c.Flags().Int("channel", 1, "MIDI channel (1-16)")
	}
	sendNoteCmd.Flags().Uint8("velocity", midi.DefaultVelocity, "Note velocity")
	sendNoteCmd.Flags().Bool("off", false, "Send note-off instead")

	sendCmd.AddCommand(sendNoteCmd)
	sendCmd.AddCommand(sendCCCmd)
	sendCmd.AddCommand(sendMMCCmd)
	sendCmd.AddCommand(sendPresetCmd)
	sendCmd.AddCommand(sendRawCmd)
}

func sendAll(cmd *cobra.Command, msgs [][]byte) error {
	return withClient(cmd, func(ctx context.Context, c *control.Client) error {
		for _, msg := range msgs {
			if err := c.Send(ctx, msg); err != nil {
				return fmt.Errorf("send %s: %w", midi.Describe(msg), err)
			}
			fmt.Println(ui.RenderSuccess("sent " + midi.Describe(msg)))
		}
		return nil
	})
}

// channelFlag converts the 1-based --channel flag to a wire channel
func channelFlag(cmd *cobra.Command) (byte, error) {
	ch, _ := cmd.Flags().GetInt("channel")
	if ch < 1 || ch > 16 {
		return 0, fmt.Errorf("channel %d out of range 1-16", ch)
	}
	return byte(ch - 1), nil
}

// parseData parses a 7-bit MIDI data byte in decimal or 0x hex
func parseData(s, what string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > 127 {
		return 0, fmt.Errorf("invalid %s %q: want 0-127", what, s)
	}
	return byte(v), nil
}

// parseHex accepts "90 3C 64", "903c64" or "0x90,0x3C,0x64"
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer("0x", "", "0X", "", ",", "", " ", "", ":", "").Replace(s)
	if clean == "" {
		return nil, fmt.Errorf("no bytes given")
	}
	msg, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return msg, nil
}
