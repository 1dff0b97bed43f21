package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ctrlr/ctrlr/internal/control"
	"github.com/ctrlr/ctrlr/internal/status"
	"github.com/ctrlr/ctrlr/internal/ui"
	"github.com/spf13/cobra"
)

const dialTimeout = 3 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running link's state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			snap, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(snapshotJSON(snap))
			}
			fmt.Print(ui.RenderStatus(snap, time.Now()))
			return nil
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the diagnostic log, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			lines, err := c.Diagnostics(ctx)
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderDiagnostics(lines))
			return nil
		})
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Restart discovery and forget rejected endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			if err := c.Reconnect(ctx); err != nil {
				return err
			}
			fmt.Println(ui.RenderSuccess("reconnect requested"))
			return nil
		})
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List control-message targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			list := c.Targets
			if refresh {
				list = c.RefreshTargets
			}
			infos, err := list(ctx)
			if err != nil {
				return err
			}
			fmt.Print(ui.RenderTargets(infos))
			return nil
		})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <target-id>",
	Short: "Select the target inbound messages are delivered to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			if err := c.SelectTarget(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(ui.RenderSuccess("selected " + args[0]))
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow state changes and diagnostics live",
	Long: `Follow the running link live. On a terminal this opens a monitor
("r" reconnects, "q" quits); otherwise every event is printed as a line.`,
	RunE: runWatch,
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	targetsCmd.Flags().Bool("refresh", false, "Rescan devices before listing")
}

// withClient dials the control plane and runs fn with a bounded context
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
	defer cancel()
	c, err := control.Dial(dialCtx, cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("is a ctrlr daemon running? %w", err)
	}
	defer c.Close()

	ctx, cancelCall := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancelCall()
	return fn(ctx, c)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
	defer cancel()
	c, err := control.Dial(dialCtx, cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("is a ctrlr daemon running? %w", err)
	}
	defer c.Close()

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	if !ui.IsTTY() {
		return c.Watch(ctx, func(ev status.Event) bool {
			if ev.Entry != nil {
				fmt.Println(ev.Entry.String())
			} else {
				fmt.Printf("state %s peer=%q endpoint=%q\n", ev.Snapshot.State, ev.Snapshot.Peer, ev.Snapshot.Endpoint)
			}
			return true
		})
	}

	events := make(chan tea.Msg, 64)
	go func() {
		err := c.Watch(ctx, func(ev status.Event) bool {
			select {
			case events <- ui.EventMsg(ev):
				return true
			case <-ctx.Done():
				return false
			}
		})
		select {
		case events <- ui.StreamClosedMsg{Err: err}:
		case <-ctx.Done():
		}
	}()

	reconnect := func() error {
		rctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return c.Reconnect(rctx)
	}
	p := tea.NewProgram(ui.NewWatchModel(events, reconnect), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func snapshotJSON(s status.Snapshot) map[string]any {
	return map[string]any{
		"role":         s.Role,
		"state":        s.State.String(),
		"connected":    s.Connected,
		"peer":         s.Peer,
		"endpoint":     s.Endpoint,
		"source_count": s.SourceCount,
		"rejected":     s.Rejected,
		"discovery":    s.Discovery,
		"since":        s.Since,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
