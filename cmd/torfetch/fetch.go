package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"torfetch/internal/batch"
	"torfetch/internal/config"
	"torfetch/internal/database"
	"torfetch/internal/fetcher"
	"torfetch/internal/instance"
	"torfetch/internal/log"
	"torfetch/internal/model"
	"torfetch/internal/pool"
	"torfetch/internal/report"
	"torfetch/internal/tor"
	"torfetch/internal/tracker"
	"torfetch/internal/transcript"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [video-id...]",
		Short: "Fetch transcripts for one or more videos through Tor",
		Long: `Fetch downloads caption transcripts for the given video ids through
the Tor network. Between retries the exit identity is rotated, avoiding
identities that failed today or were used within the cooldown window.

Examples:
  # Fetch a single transcript
  torfetch fetch dQw4w9WgXcQ

  # Fetch several videos with 5 parallel workers
  torfetch fetch --workers 5 id1 id2 id3 id4 id5

  # Use a specific external Tor proxy instead of discovery
  torfetch fetch --external-tor 127.0.0.1:9150 dQw4w9WgXcQ

  # Bootstrap a private embedded Tor daemon
  torfetch fetch --embedded-tor dQw4w9WgXcQ

  # Pre-allocate unique exit identities before workers start
  torfetch fetch --pool --pool-size 5 id1 id2 id3

  # Write a JSON report to a file
  torfetch fetch --json -o report.json dQw4w9WgXcQ

Configuration file (.torfetch) example:
  languages: [en, de]
  cooldown: 2h
  maxRetries: 7
  controlPassword: "s3cret"`,
		Args: cobra.ArbitraryArgs,
		RunE: runFetchCmd,
	}

	// Tor connection flags
	cmd.Flags().StringP("external-tor", "e", "",
		"Use external Tor proxy at specified address (e.g., 127.0.0.1:9150)")
	cmd.Flags().Bool("embedded-tor", false,
		"Bootstrap an embedded Tor daemon instead of discovering one")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Fetch behavior flags
	cmd.Flags().StringSliceP("languages", "l", config.DefaultLanguages(),
		"Caption language preference order")
	cmd.Flags().IntP("max-retries", "r", model.DefaultMaxRetries,
		"Number of primary attempts per video before fallback")
	cmd.Flags().Duration("base-timeout", model.DefaultBaseTimeout,
		"Timeout for the first attempt (later attempts grow geometrically)")
	cmd.Flags().Duration("max-timeout", model.DefaultMaxTimeout,
		"Cap on the per-attempt timeout")
	cmd.Flags().Duration("cooldown", model.DefaultCooldown,
		"Minimum age before an exit identity may be reused")
	cmd.Flags().Bool("direct-fallback", true,
		"Try a direct connection once after Tor attempts are exhausted")

	// Concurrency flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent fetch workers")
	cmd.Flags().Bool("pool", false,
		"Pre-allocate unique exit identities before workers start")
	cmd.Flags().Int("pool-size", 0,
		"Identity pool target size (default: --workers)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .torfetch in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildFetchConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging with credential redaction
	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runFetch(ctx, cfg, logger)
}

// buildFetchConfig creates a Config from cobra command flags and the
// optional .torfetch file. Flags the user set explicitly override file
// values; untouched flags leave file values in place.
func buildFetchConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	configPathFlag, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not
	// found. If no path was specified, silently run without a file.
	configPath := config.FindConfigFile(configPathFlag)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	} else if configPathFlag != "" {
		return nil, fmt.Errorf("configuration file not found: %s", configPathFlag)
	}

	cfg.ExternalTor, err = cmd.Flags().GetString("external-tor")
	if err != nil {
		return nil, err
	}

	cfg.EmbeddedTor, err = cmd.Flags().GetBool("embedded-tor")
	if err != nil {
		return nil, err
	}

	cfg.TorStartupTimeout, err = cmd.Flags().GetDuration("tor-timeout")
	if err != nil {
		return nil, err
	}

	// These three overlap with .torfetch file fields, so only an
	// explicitly set flag overrides the file value.
	if cmd.Flags().Changed("languages") {
		cfg.Languages, err = cmd.Flags().GetStringSlice("languages")
		if err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Policy.MaxRetries, err = cmd.Flags().GetInt("max-retries")
		if err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("cooldown") {
		cfg.Policy.Cooldown, err = cmd.Flags().GetDuration("cooldown")
		if err != nil {
			return nil, err
		}
	}

	cfg.Policy.BaseTimeout, err = cmd.Flags().GetDuration("base-timeout")
	if err != nil {
		return nil, err
	}

	cfg.Policy.MaxTimeout, err = cmd.Flags().GetDuration("max-timeout")
	if err != nil {
		return nil, err
	}

	cfg.DirectFallback, err = cmd.Flags().GetBool("direct-fallback")
	if err != nil {
		return nil, err
	}

	cfg.Workers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}

	cfg.UsePool, err = cmd.Flags().GetBool("pool")
	if err != nil {
		return nil, err
	}

	cfg.PoolSize, err = cmd.Flags().GetInt("pool-size")
	if err != nil {
		return nil, err
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// Always persist attempt history using the XDG data directory unless
	// the config file pointed somewhere else.
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	// Positional arguments are the video ids
	cfg.VideoIDs = args

	return cfg, nil
}

// runFetch executes the fetch session.
func runFetch(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting fetch session",
		"videos", len(cfg.VideoIDs),
		"workers", cfg.Workers,
		"pool", cfg.UsePool,
		"languages", cfg.Languages,
	)

	trk := tracker.New(cfg.TrackerPath(), tracker.WithLogger(logger))

	var history *database.AttemptDB
	if cfg.DBDir != "" {
		var err error
		history, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open attempt database: %w", err)
		}
		defer history.Close() //nolint:errcheck // Best effort cleanup
		logger.Info("attempt database opened", "path", history.Path())
	}

	manager, embedded, err := setupInstances(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if embedded != nil {
		defer func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
	}

	controllers, clients, err := newControllers(manager.Instances(), cfg, logger)
	if err != nil {
		return err
	}

	session := &fetchSession{
		cfg:         cfg,
		tracker:     trk,
		history:     history,
		manager:     manager,
		controllers: controllers,
		clients:     clients,
		logger:      logger,
	}

	startedAt := time.Now()
	results, poolStats, err := session.run(ctx)
	if err != nil {
		return err
	}

	summary := &report.Summary{
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Videos:     results,
		Tracker:    trk.Stats(),
		Pool:       poolStats,
		Instances:  manager.Count(),
		Workers:    cfg.Workers,
	}
	return outputReport(cfg, summary)
}

// fetchSession bundles the long-lived pieces of one fetch run so the
// pool and live code paths share a single wiring point.
type fetchSession struct {
	cfg         *config.Config
	tracker     *tracker.IdentityTracker
	history     *database.AttemptDB
	manager     *instance.Manager
	controllers map[int]*tor.Controller
	clients     map[int]*tor.Client
	logger      *slog.Logger
}

// run executes the batch through either the live-rotation path or the
// pre-allocated identity pool.
func (s *fetchSession) run(ctx context.Context) ([]report.VideoResult, *pool.Stats, error) {
	var factory batch.FetcherFactory
	var poolStats *pool.Stats

	if s.cfg.UsePool {
		idPool := pool.New(s.manager.Instances(),
			func(inst model.Instance) pool.Rotator { return s.controllers[inst.ID] },
			s.cfg.UserAgent,
			pool.WithAvoidSource(s.tracker),
			pool.WithCooldown(s.cfg.Policy.Cooldown),
			pool.WithFillBudget(s.cfg.PoolTimeout),
			pool.WithPoolLogger(s.logger),
		)
		if err := idPool.Start(ctx, s.cfg.EffectivePoolSize(), true); err != nil {
			return nil, nil, fmt.Errorf("failed to start identity pool: %w", err)
		}

		// Each worker slot draws one pooled connection up front. The
		// identity behind a pooled connection is fixed, so the engines
		// run without a rotator.
		fetchers := make(map[int]batch.Fetcher, s.cfg.Workers)
		for workerID := 0; workerID < s.cfg.Workers; workerID++ {
			conn, err := idPool.Acquire(workerID)
			if err != nil {
				return nil, nil, fmt.Errorf("worker %d: %w", workerID, err)
			}
			s.logger.Info("worker bound to pooled identity",
				"worker_id", workerID,
				"identity", conn.Identity,
				"instance_id", conn.Instance.ID,
			)
			fetchers[workerID] = s.newEngine(func() *http.Client { return conn.HTTP }, nil, nil)
		}
		factory = func(workerID int, _ model.Instance, _ sync.Locker) batch.Fetcher {
			return fetchers[workerID]
		}

		stats := idPool.Stats()
		poolStats = &stats
	} else {
		// Live mode builds one engine per worker slot, lazily, bound to
		// the slot's instance. Engines on the same instance share the
		// rotation lock handed in by the processor.
		var mu sync.Mutex
		fetchers := make(map[int]batch.Fetcher, s.cfg.Workers)
		factory = func(workerID int, inst model.Instance, lock sync.Locker) batch.Fetcher {
			mu.Lock()
			defer mu.Unlock()
			if f, ok := fetchers[workerID]; ok {
				return f
			}

			client := s.clients[inst.ID]
			f := s.newEngine(func() *http.Client {
				return client.NewHTTPClient(s.cfg.Policy.MaxTimeout)
			}, s.controllers[inst.ID], lock)
			fetchers[workerID] = f
			return f
		}
	}

	opts := []batch.Option{
		batch.WithWorkers(s.cfg.Workers),
		batch.WithBatchLogger(s.logger),
		batch.WithTitleResolver(s.newTitleFetcher()),
	}
	processor := batch.NewProcessor(factory, s.manager, opts...)

	results, err := processor.Process(ctx, s.cfg.VideoIDs, s.cfg.Languages)
	if err != nil {
		return nil, nil, err
	}
	return results, poolStats, nil
}

// newEngine wires one fetch engine around the given HTTP client source.
// rotator and lock are nil in pool mode.
func (s *fetchSession) newEngine(client func() *http.Client, rotator *tor.Controller, lock sync.Locker) *fetcher.Engine {
	provider := transcript.NewYouTubeProvider(client, s.cfg.IdentityProbeURL,
		transcript.WithProviderLogger(s.logger),
	)

	opts := []fetcher.EngineOption{
		fetcher.WithAvailabilityChecker(provider),
		fetcher.WithPolicy(s.cfg.Policy),
		fetcher.WithEngineLogger(s.logger),
	}
	if rotator != nil {
		opts = append(opts, fetcher.WithRotator(rotator))
	}
	if lock != nil {
		opts = append(opts, fetcher.WithRotationLock(lock))
	}
	if s.history != nil {
		opts = append(opts, fetcher.WithHistory(s.history))
	}
	if s.cfg.DirectFallback {
		opts = append(opts, fetcher.WithSecondary(transcript.NewDirectFetcher()))
	}

	return fetcher.NewEngine(provider, s.tracker, opts...)
}

// newTitleFetcher builds the oEmbed title resolver over the first
// instance's circuit.
func (s *fetchSession) newTitleFetcher() *transcript.TitleFetcher {
	inst := s.manager.Assign(0)
	client := s.clients[inst.ID]

	opts := []transcript.TitleOption{
		transcript.WithTitleLogger(s.logger),
	}
	if c, ok := s.controllers[inst.ID]; ok {
		opts = append(opts, transcript.WithTitleRotator(c))
	}
	return transcript.NewTitleFetcher(func() *http.Client {
		return client.NewHTTPClient(s.cfg.Policy.BaseTimeout)
	}, opts...)
}

// setupInstances resolves the Tor daemon instances for this run: an
// explicit external proxy, a freshly bootstrapped embedded daemon, or
// port discovery on the local host.
func setupInstances(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*instance.Manager, *tor.Embedded, error) {
	switch {
	case cfg.ExternalTor != "":
		inst, err := instanceFromSocksAddr(cfg.ExternalTor)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --external-tor address %q: %w", cfg.ExternalTor, err)
		}
		logger.Info("using external Tor proxy",
			"socks_addr", inst.SocksAddr(),
			"control_addr", inst.ControlAddr(),
		)
		return instance.NewManager([]model.Instance{inst}, logger), nil, nil

	case cfg.EmbeddedTor:
		fmt.Println("Starting embedded Tor daemon...")
		fmt.Printf("This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		embedded := tor.NewEmbedded(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := embedded.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}

		inst, err := instanceFromAddrs(embedded.SocksAddr(), embedded.ControlAddr())
		if err != nil {
			_ = embedded.Stop() //nolint:errcheck // Best effort cleanup
			return nil, nil, fmt.Errorf("embedded Tor reported unusable addresses: %w", err)
		}

		logger.Info("embedded Tor daemon started",
			"socks_addr", embedded.SocksAddr(),
			"control_addr", embedded.ControlAddr(),
		)
		fmt.Printf("Embedded Tor daemon started successfully!\nSOCKS proxy: %s\n\n", embedded.SocksAddr())
		return instance.NewManager([]model.Instance{inst}, logger), embedded, nil

	default:
		manager := instance.Discover(instance.DiscoverOptions{
			Host:            cfg.Host,
			BaseSocksPort:   cfg.BaseSocksPort,
			BaseControlPort: cfg.BaseControlPort,
			PortIncrement:   cfg.PortIncrement,
			MaxInstances:    cfg.MaxInstances,
			ProbeTimeout:    cfg.ProbeTimeout,
			Logger:          logger,
		})
		return manager, nil, nil
	}
}

// newControllers builds one SOCKS client and one circuit controller per
// instance. Controllers are shared by every worker on the same instance,
// so the one-way Operational to Degraded transition is visible to all
// of them.
func newControllers(instances []model.Instance, cfg *config.Config, logger *slog.Logger) (map[int]*tor.Controller, map[int]*tor.Client, error) {
	controllers := make(map[int]*tor.Controller, len(instances))
	clients := make(map[int]*tor.Client, len(instances))
	for _, inst := range instances {
		client, err := tor.NewClient(inst.SocksAddr(), cfg.UserAgent)
		if err != nil {
			return nil, nil, fmt.Errorf("instance %d: %w", inst.ID, err)
		}
		resolver := tor.NewResolver(cfg.IdentityProbeURL, func() *http.Client {
			return client.NewHTTPClient(cfg.Policy.BaseTimeout)
		})

		opts := []tor.ControllerOption{
			tor.WithControllerLogger(logger),
		}
		if cfg.ControlPassword != "" {
			opts = append(opts, tor.WithPassword(cfg.ControlPassword))
		}
		clients[inst.ID] = client
		controllers[inst.ID] = tor.NewController(inst.ControlAddr(), resolver, opts...)
	}
	return controllers, clients, nil
}

// instanceFromSocksAddr builds an Instance from a "host:port" SOCKS
// address, assuming the control port is one above the SOCKS port.
func instanceFromSocksAddr(addr string) (model.Instance, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return model.Instance{}, err
	}
	return model.Instance{
		ID:          1,
		Host:        host,
		SocksPort:   port,
		ControlPort: port + 1,
	}, nil
}

// instanceFromAddrs builds an Instance from separate SOCKS and control
// addresses as reported by the embedded daemon.
func instanceFromAddrs(socksAddr, controlAddr string) (model.Instance, error) {
	host, socksPort, err := splitHostPort(socksAddr)
	if err != nil {
		return model.Instance{}, err
	}
	_, controlPort, err := splitHostPort(controlAddr)
	if err != nil {
		return model.Instance{}, err
	}
	return model.Instance{
		ID:          1,
		Host:        host,
		SocksPort:   socksPort,
		ControlPort: controlPort,
	}, nil
}

// splitHostPort splits "host:port" and parses the port.
func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// outputReport writes the session report in the requested format.
func outputReport(cfg *config.Config, summary *report.Summary) error {
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck // Read-only close after write
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output,
			report.WithPrettyPrint(),
			report.WithVersion(getVersion()),
		)
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(summary)
	return err
}
