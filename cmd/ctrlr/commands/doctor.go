package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ctrlr/ctrlr/internal/config"
	"github.com/ctrlr/ctrlr/internal/control"
	"github.com/ctrlr/ctrlr/internal/deviceid"
	"github.com/ctrlr/ctrlr/internal/discovery"
	"github.com/ctrlr/ctrlr/internal/exec"
	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/osdetect"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check this host's discovery and MIDI setup",
	Long: `Run diagnostics on the local setup.

Checks:
- platform and dns-sd lookup tool availability
- configured lookup command
- raw MIDI output devices
- persisted instance id
- whether a daemon's control plane is reachable`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(doctorCmd)
}

type doctorResult struct {
	System        *osdetect.SystemInfo `json:"system"`
	ConfigFile    string               `json:"config_file"`
	LookupCommand []string             `json:"lookup_command"`
	LookupFound   bool                 `json:"lookup_command_found"`
	MIDIDevices   []string             `json:"midi_devices"`
	InstanceID    string               `json:"instance_id,omitempty"`
	DaemonState   string               `json:"daemon_state,omitempty"`
	Notes         []string             `json:"notes,omitempty"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	result := doctorResult{System: osdetect.Detect()}
	if paths, err := config.GetPaths(); err == nil {
		result.ConfigFile = paths.ConfigFile
	}

	result.LookupCommand = cfg.LookupCommand
	if len(result.LookupCommand) == 0 {
		result.LookupCommand = discovery.DefaultLookupCommand(serviceFrom(cfg))
	}
	result.LookupFound = exec.CommandExists(result.LookupCommand[0])
	if !result.LookupFound {
		result.Notes = append(result.Notes, "lookup fallback unavailable: "+result.System.LookupHint)
	}

	devices, err := midi.ScanRawMIDI(cfg.MIDIDeviceGlob)()
	if err != nil {
		result.Notes = append(result.Notes, fmt.Sprintf("MIDI scan failed: %v", err))
	}
	for _, d := range devices {
		result.MIDIDevices = append(result.MIDIDevices, d.ID())
	}
	if len(devices) == 0 {
		result.Notes = append(result.Notes, "no raw MIDI devices; inbound messages go to the log target")
	}

	if id, err := deviceid.GetOrCreate(); err == nil {
		result.InstanceID = id
	} else {
		result.Notes = append(result.Notes, fmt.Sprintf("instance id unavailable: %v", err))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Second)
	defer cancel()
	if c, err := control.Dial(ctx, cfg.ControlAddr); err == nil {
		if snap, err := c.Status(ctx); err == nil {
			result.DaemonState = fmt.Sprintf("%s %s", snap.Role, snap.State)
		}
		c.Close()
	}

	if jsonOutput {
		return printJSON(result)
	}

	fmt.Println("Ctrlr Doctor")
	fmt.Println("============")
	fmt.Println()
	fmt.Printf("  Platform:       %s\n", result.System)
	fmt.Printf("  Config:         %s\n", result.ConfigFile)
	found := "FOUND"
	if !result.LookupFound {
		found = "NOT FOUND"
	}
	fmt.Printf("  Lookup:         %s (%s)\n", strings.Join(result.LookupCommand, " "), found)
	fmt.Printf("  MIDI devices:   %d\n", len(result.MIDIDevices))
	for _, d := range result.MIDIDevices {
		fmt.Printf("                  %s\n", d)
	}
	fmt.Printf("  Instance id:    %s\n", result.InstanceID)
	if result.DaemonState != "" {
		fmt.Printf("  Daemon:         %s on %s\n", result.DaemonState, cfg.ControlAddr)
	} else {
		fmt.Printf("  Daemon:         not running on %s\n", cfg.ControlAddr)
	}

	if len(result.Notes) > 0 {
		fmt.Println()
		fmt.Println("Notes:")
		for _, note := range result.Notes {
			fmt.Printf("  - %s\n", note)
		}
	}
	return nil
}
