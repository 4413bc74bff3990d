package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"torfetch/internal/config"
	"torfetch/internal/database"
	"torfetch/internal/instance"
	"torfetch/internal/log"
	"torfetch/internal/model"
	"torfetch/internal/tracker"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Tor instances, identity usage, and attempt history",
		Long: `Status reports the current state of the local fetch environment:
which Tor daemon instances answer on the expected ports, how many exit
identities were used today, and the accumulated attempt history.`,
		RunE: runStatusCmd,
	}
}

// statusInfo holds everything the status command displays, gathered up
// front so rendering stays a pure function of this struct.
type statusInfo struct {
	Instances    []model.Instance
	Tracker      tracker.Stats
	TrackerPath  string
	DBPath       string
	Outcomes     map[model.Outcome]int
	HistoryError error
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	logger := log.NewLogger(io.Discard, getVerboseFlag(cmd))

	if path := config.FindConfigFile(""); path != "" {
		if file, err := config.LoadConfigFile(path); err == nil {
			file.Apply(cfg)
		}
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	manager := instance.Discover(instance.DiscoverOptions{
		Host:            cfg.Host,
		BaseSocksPort:   cfg.BaseSocksPort,
		BaseControlPort: cfg.BaseControlPort,
		PortIncrement:   cfg.PortIncrement,
		MaxInstances:    cfg.MaxInstances,
		ProbeTimeout:    cfg.ProbeTimeout,
		Logger:          logger,
	})

	trk := tracker.New(cfg.TrackerPath(), tracker.WithLogger(logger))

	info := statusInfo{
		Instances:   manager.Instances(),
		Tracker:     trk.Stats(),
		TrackerPath: cfg.TrackerPath(),
	}

	// History is informational; a missing database is not an error.
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	if db, err := database.Open(cfg.DBDir, opts); err == nil {
		defer db.Close() //nolint:errcheck // Read-only access
		info.DBPath = db.Path()
		info.Outcomes, info.HistoryError = db.CountByOutcome(cmd.Context())
	}

	renderStatus(cmd.OutOrStdout(), info)
	return nil
}

// renderStatus writes the status report.
func renderStatus(w io.Writer, info statusInfo) {
	fmt.Fprintln(w, "TOR INSTANCES")
	for _, inst := range info.Instances {
		fmt.Fprintf(w, "  [%d] socks %s  control %s\n",
			inst.ID, inst.SocksAddr(), inst.ControlAddr())
	}

	fmt.Fprintf(w, "\nEXIT IDENTITIES (%s)\n", info.Tracker.Date)
	fmt.Fprintf(w, "  Attempts:          %d\n", info.Tracker.TotalAttempts)
	fmt.Fprintf(w, "  Unique identities: %d\n", info.Tracker.UniqueIdentities)
	fmt.Fprintf(w, "  Successful:        %d\n", info.Tracker.Successful)
	fmt.Fprintf(w, "  Failed:            %d\n", info.Tracker.Failed)
	fmt.Fprintf(w, "  Tracking file:     %s\n", info.TrackerPath)

	fmt.Fprintln(w, "\nATTEMPT HISTORY")
	switch {
	case info.DBPath == "":
		fmt.Fprintln(w, "  No attempt database found.")
	case info.HistoryError != nil:
		fmt.Fprintf(w, "  Unreadable: %v\n", info.HistoryError)
	default:
		outcomes := make([]string, 0, len(info.Outcomes))
		for outcome := range info.Outcomes {
			outcomes = append(outcomes, string(outcome))
		}
		sort.Strings(outcomes)
		for _, outcome := range outcomes {
			fmt.Fprintf(w, "  %-8s %d\n", outcome, info.Outcomes[model.Outcome(outcome)])
		}
		if len(outcomes) == 0 {
			fmt.Fprintln(w, "  No attempts recorded.")
		}
		fmt.Fprintf(w, "  Database: %s\n", info.DBPath)
	}
}
