package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/krisarmstrong/gobridge/pkg/api"
	"github.com/krisarmstrong/gobridge/pkg/bridge"
	"github.com/krisarmstrong/gobridge/pkg/capture"
	"github.com/krisarmstrong/gobridge/pkg/config"
	"github.com/krisarmstrong/gobridge/pkg/interactive"
	"github.com/krisarmstrong/gobridge/pkg/logging"
	"github.com/krisarmstrong/gobridge/pkg/snmp"
	"github.com/krisarmstrong/gobridge/pkg/stats"
	"github.com/krisarmstrong/gobridge/pkg/storage"
)

var (
	version = "v1.2.0"
	commit  = "dev"
	date    = "unknown"
)

var flags struct {
	debug            int
	noColor          bool
	listInterfaces   bool
	configFile       string
	pollTimeout      time.Duration
	announceInterval time.Duration
	startupWindow    time.Duration
	database         string
	trapReceivers    []string
	trapCommunity    string
	apiListen        string
	interactiveMode  bool
	exportStatsJSON  string
	exportStatsCSV   string
}

var rootCmd = &cobra.Command{
	Use:   "gobridge <switch-name>",
	Short: "Learning Ethernet bridge with spanning-tree loop avoidance",
	Long: `gobridge runs one emulated switch: it opens every host interface named
<switch-name>-eth*, elects a spanning-tree root with its neighbors, blocks
redundant links, and forwards host traffic along the tree.

Designed for emulated topologies (mininet-style) where many switches share
one CPU-starved host, so each bridge is a single tight polling loop.`,
	Version: version,
	Run:     run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gobridge %s (commit: %s, built: %s)\n", version, commit, date))

	f := rootCmd.Flags()
	f.IntVarP(&flags.debug, "debug", "d", 1, "Debug level (0-3)")
	f.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	f.BoolVarP(&flags.listInterfaces, "list-interfaces", "l", false, "List available network interfaces and exit")
	f.StringVarP(&flags.configFile, "config", "c", "", "YAML settings file")
	f.DurationVar(&flags.pollTimeout, "poll-timeout", config.DefaultPollTimeout, "Per-port receive timeout")
	f.DurationVar(&flags.announceInterval, "announce-interval", config.DefaultAnnounceInterval, "BPDU re-announce interval")
	f.DurationVar(&flags.startupWindow, "startup-window", config.DefaultStartupWindow, "Learning window after startup")
	f.StringVar(&flags.database, "db", config.StorageDisabled, "Topology event journal path (bbolt), or 'disabled'")
	f.StringSliceVar(&flags.trapReceivers, "trap-receiver", nil, "SNMP trap receiver (host[:port]), repeatable")
	f.StringVar(&flags.trapCommunity, "trap-community", config.DefaultTrapCommunity, "SNMP trap community")
	f.StringVar(&flags.apiListen, "api", "", "Status API listen address (empty to disable)")
	f.BoolVarP(&flags.interactiveMode, "interactive", "i", false, "Show the live status TUI")
	f.StringVar(&flags.exportStatsJSON, "export-stats-json", "", "Write statistics JSON on exit")
	f.StringVar(&flags.exportStatsCSV, "export-stats-csv", "", "Write statistics CSV on exit")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) {
	logging.InitColors(!flags.noColor)

	if flags.listInterfaces {
		if err := capture.ListInterfaces(); err != nil {
			logging.Error("%v", err)
			os.Exit(2)
		}
		os.Exit(0)
	}

	if len(args) != 1 {
		logging.Error("Exactly one switch name is required")
		cmd.Usage()
		os.Exit(1)
	}
	switchName := args[0]

	settings, err := loadSettings(cmd)
	if err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}

	debugConfig := logging.NewDebugConfig(settings.Debug)
	for area, level := range settings.DebugAreas {
		debugConfig.SetAreaLevel(area, level)
	}

	st := stats.New(switchName, "", version)

	b, err := bridge.Open(switchName, bridge.Options{
		PollTimeout:      time.Duration(settings.PollTimeout),
		AnnounceInterval: time.Duration(settings.AnnounceInterval),
		StartupWindow:    time.Duration(settings.StartupWindow),
		Stats:            st,
		Debug:            debugConfig,
	})
	if err != nil {
		logging.Error("%v", err)
		os.Exit(2)
	}
	st.SetSwitchID(b.SwitchID().String())

	listener, cleanup, err := buildListeners(switchName, b.SwitchID().String(), settings, st)
	if err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
	if listener != nil {
		b.SetListener(listener)
	}

	var apiSrv *api.Server
	if settings.APIListen != "" {
		apiSrv = api.NewServer(settings.APIListen, b.Snapshot, st)
		go func() {
			if err := apiSrv.Start(); err != nil {
				logging.Warning("Status API stopped: %v", err)
			}
		}()
	}

	// The engine is its own single thread; everything else just watches.
	runErr := make(chan error, 1)
	go func() {
		runErr <- b.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exit := func(err error) {
		if apiSrv != nil {
			apiSrv.Close()
		}
		cleanup(st)
		if err != nil {
			logging.Error("%v", err)
			os.Exit(2)
		}
		// The loop never finishes on its own; any exit is abnormal.
		os.Exit(1)
	}

	if flags.interactiveMode {
		if err := interactive.Run(b.Snapshot, st); err != nil {
			logging.Warning("TUI failed: %v", err)
		}
		// TUI quit is an operator shutdown request.
		select {
		case err := <-runErr:
			exit(err)
		default:
			exit(nil)
		}
	}

	select {
	case err := <-runErr:
		exit(err)
	case sig := <-sigCh:
		logging.Info("Received %s, shutting down", sig)
		exit(nil)
	}
}

// loadSettings builds the effective settings: file first, flags on top.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	settings := config.Defaults()
	if flags.configFile != "" {
		var err error
		settings, err = config.Load(flags.configFile)
		if err != nil {
			return settings, err
		}
	}

	applyFlagOverrides(cmd, &settings)
	return settings, settings.Validate()
}

func applyFlagOverrides(cmd *cobra.Command, settings *config.Settings) {
	f := cmd.Flags()
	if f.Changed("poll-timeout") {
		settings.PollTimeout = config.Duration(flags.pollTimeout)
	}
	if f.Changed("announce-interval") {
		settings.AnnounceInterval = config.Duration(flags.announceInterval)
	}
	if f.Changed("startup-window") {
		settings.StartupWindow = config.Duration(flags.startupWindow)
	}
	if f.Changed("db") {
		settings.Database = flags.database
	}
	if f.Changed("trap-receiver") {
		settings.TrapReceivers = flags.trapReceivers
	}
	if f.Changed("trap-community") {
		settings.TrapCommunity = flags.trapCommunity
	}
	if f.Changed("api") {
		settings.APIListen = flags.apiListen
	}
	if f.Changed("debug") {
		settings.Debug = flags.debug
	}
}

// buildListeners assembles the management-plane consumers: the event journal
// and the SNMP trap sender, decoupled from the engine by an async buffer.
// The returned cleanup flushes everything on shutdown.
func buildListeners(switchName, switchID string, settings config.Settings, st *stats.Statistics) (bridge.Listener, func(*stats.Statistics), error) {
	var targets bridge.MultiListener

	var journal *storage.Journal
	if settings.StorageEnabled() {
		var err error
		journal, err = storage.Open(settings.Database)
		if err != nil && !errors.Is(err, storage.ErrDisabled) {
			return nil, nil, fmt.Errorf("failed to open event journal: %w", err)
		}
		if journal != nil {
			targets = append(targets, journal)
			logging.Info("Recording topology events to %s", settings.Database)
		}
	}

	var traps *snmp.TrapSender
	if len(settings.TrapReceivers) > 0 {
		var err error
		traps, err = snmp.NewTrapSender(switchName, switchID, settings.TrapReceivers, settings.TrapCommunity, settings.Debug)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, traps)
		logging.Info("Sending topology traps to %v", traps.Receivers())
	}

	var async *bridge.AsyncListener
	var listener bridge.Listener
	if len(targets) > 0 {
		async = bridge.NewAsyncListener(targets, 64)
		listener = async
	}

	started := time.Now()
	cleanup := func(st *stats.Statistics) {
		if async != nil {
			async.Close()
		}
		if journal != nil {
			snap := st.GetSnapshot()
			record := storage.RunRecord{
				StartedAt:       started,
				Duration:        time.Since(started),
				SwitchName:      snap.SwitchName,
				SwitchID:        snap.SwitchID,
				PortCount:       snap.PortCount,
				BPDUsSent:       snap.BPDUsSent,
				BPDUsReceived:   snap.BPDUsReceived,
				FramesForwarded: snap.FramesForwarded,
				RootChanges:     snap.RootChanges,
			}
			if err := journal.AddRun(record); err != nil {
				logging.Warning("Failed to record run summary: %v", err)
			}
			journal.Close()
		}
		if traps != nil {
			traps.Close()
		}
		exportStats(st)
	}

	return listener, cleanup, nil
}

func exportStats(st *stats.Statistics) {
	if flags.exportStatsJSON != "" {
		if err := st.ExportJSON(flags.exportStatsJSON); err != nil {
			logging.Warning("%v", err)
		} else {
			logging.Success("Statistics written to %s", flags.exportStatsJSON)
		}
	}
	if flags.exportStatsCSV != "" {
		if err := st.ExportCSV(flags.exportStatsCSV); err != nil {
			logging.Warning("%v", err)
		} else {
			logging.Success("Statistics written to %s", flags.exportStatsCSV)
		}
	}
}
