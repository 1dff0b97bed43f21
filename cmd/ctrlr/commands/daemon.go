package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctrlr/ctrlr/internal/config"
	"github.com/ctrlr/ctrlr/internal/control"
	"github.com/ctrlr/ctrlr/internal/deviceid"
	"github.com/ctrlr/ctrlr/internal/discovery"
	"github.com/ctrlr/ctrlr/internal/link"
	"github.com/ctrlr/ctrlr/internal/midi"
	"github.com/ctrlr/ctrlr/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Advertise this workstation and accept the control surface",
	Long: `Run the advertising side of the link.

The daemon binds the listening port (falling back to an ephemeral port if
the preferred one is taken), publishes it over mDNS, and pings every
connection it accepts. Control messages from the verified surface are
delivered to the selected target.`,
	RunE: runListen,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Discover the workstation and connect to it",
	Long: `Run the discovering side of the link.

The daemon browses mDNS for the advertised service, falls back to the
dns-sd lookup command when browsing finds nothing usable, connects, and
waits for the workstation's handshake before routing anything.`,
	RunE: runConnect,
}

func init() {
	for _, c := range []*cobra.Command{listenCmd, connectCmd} {
		c.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
		c.Flags().String("target", "", "Preferred control-message target id")
		c.Flags().Bool("mirror", false, "Mirror inbound messages to the log target")
	}
	listenCmd.Flags().String("addr", "", "Preferred listening address (default: from config)")
}

// applyDaemonFlags folds daemon-only flags into cfg
func applyDaemonFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, _ := cmd.Flags().GetString("target"); v != "" {
		cfg.PreferredTarget = v
	}
	if v, _ := cmd.Flags().GetBool("mirror"); v {
		cfg.MirrorToLog = true
	}
	if cmd.Flags().Lookup("addr") != nil {
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.ListenAddr = v
		}
	}
}

func serviceFrom(cfg *config.Config) discovery.Service {
	return discovery.Service{
		Instance: cfg.Service.Instance,
		Type:     cfg.Service.Type,
		Domain:   cfg.Service.Domain,
	}
}

// buildTargets registers the log target and the raw MIDI devices. With
// mirroring on, every device also gets a fan-out target that copies each
// message to the log.
func buildTargets(cfg *config.Config, log *zap.Logger) *midi.Registry {
	reg := midi.NewRegistry(cfg.PreferredTarget)
	logTarget := midi.NewLogTarget(log)
	reg.Add(logTarget)

	scan := midi.ScanRawMIDI(cfg.MIDIDeviceGlob)
	reg.AddScanner(func() ([]midi.Target, error) {
		devices, err := scan()
		if err != nil || !cfg.MirrorToLog {
			return devices, err
		}
		out := append([]midi.Target(nil), devices...)
		for _, d := range devices {
			out = append(out, midi.NewFanout("mirror:"+d.ID(), d.Name()+" + log", d, logTarget))
		}
		return out, nil
	})
	if err := reg.Refresh(); err != nil {
		log.Warn("target scan failed", zap.Error(err))
	}
	return reg
}

func linkConfig(cfg *config.Config, log *zap.Logger, metrics *telemetry.Metrics) link.Config {
	return link.Config{
		Service:          serviceFrom(cfg),
		HandshakeTimeout: cfg.Timeout.Handshake.Std(),
		RetryBackoff:     cfg.Timeout.Retry.Std(),
		ConnectTimeout:   cfg.Timeout.Connect.Std(),
		LogSize:          cfg.LogSize,
		Targets:          buildTargets(cfg, log),
		Metrics:          metrics,
		Logger:           log,
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyDaemonFlags(cmd, cfg)
	log := newLogger(cfg)
	defer log.Sync()

	id, err := deviceid.GetOrCreate()
	if err != nil {
		log.Warn("no persistent instance id, advertising without one", zap.Error(err))
	}
	metrics := telemetry.New()
	metrics.SetBuildInfo(Version, Commit)

	adv := discovery.NewAdvertiser(serviceFrom(cfg), id, log)
	l := link.NewListener(linkConfig(cfg, log, metrics), cfg.ListenAddr, adv)
	return runDaemon(cmd.Context(), cfg, l, metrics, log)
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyDaemonFlags(cmd, cfg)
	log := newLogger(cfg)
	defer log.Sync()

	// the id lets the resolver skip this host's own advertisement
	id, err := deviceid.GetOrCreate()
	if err != nil {
		log.Warn("no persistent instance id", zap.Error(err))
	}
	metrics := telemetry.New()
	metrics.SetBuildInfo(Version, Commit)

	svc := serviceFrom(cfg)
	command := cfg.LookupCommand
	if len(command) == 0 {
		command = discovery.DefaultLookupCommand(svc)
	}
	lookup := discovery.NewLookup(command)
	lookup.SetTimeout(cfg.Timeout.Lookup.Std())

	resolver := discovery.NewResolver(discovery.Config{
		Browser:       discovery.NewBrowser(svc),
		Lookup:        lookup,
		BrowseTimeout: cfg.Timeout.Browse.Std(),
		RetryBackoff:  cfg.Timeout.Retry.Std(),
		SelfID:        id,
		Logger:        log,
	})
	s := link.NewSupervisor(linkConfig(cfg, log, metrics), resolver, nil)
	return runDaemon(cmd.Context(), cfg, s, metrics, log)
}

// runDaemon runs l with its control plane and optional metrics endpoint
// until interrupted or the link fails fatally.
func runDaemon(parent context.Context, cfg *config.Config, l link.Link, metrics *telemetry.Metrics, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.OnReceive(func(msg []byte) {
		log.Debug("control message", zap.String("msg", midi.Describe(msg)))
	})

	serveErr := make(chan error, 2)
	go func() {
		if err := control.Serve(ctx, cfg.ControlAddr, l, log); err != nil {
			serveErr <- fmt.Errorf("control plane: %w", err)
		}
	}()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.MetricsAddr, metrics, log); err != nil {
				serveErr <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(ctx) }()

	select {
	case err := <-runErr:
		stop()
		if errors.Is(err, context.Canceled) {
			log.Info("shutting down")
			return nil
		}
		return err
	case err := <-serveErr:
		stop()
		<-runErr
		return err
	}
}
