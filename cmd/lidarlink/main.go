// lidarlink streams telemetry from the SI3 LIDAR instrument's OPC UA server.
//
// Usage:
//
//	lidarlink <opc.tcp://host:port> [--rate SECONDS] [--config PATH] [--console]
//
// Without --rate the client subscribes to data changes every 500 ms. With
// --rate it reads every attribute once per interval. Live values, history
// and commands are served over HTTP and WebSocket on api.port (default
// 5006). MQTT, InfluxDB and the SQLite session journal are optional and
// enabled in the YAML configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/si3lab/lidarlink/internal/acquisition"
	"github.com/si3lab/lidarlink/internal/api"
	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/audit"
	"github.com/si3lab/lidarlink/internal/bridge"
	"github.com/si3lab/lidarlink/internal/console"
	"github.com/si3lab/lidarlink/internal/control"
	"github.com/si3lab/lidarlink/internal/entity"
	"github.com/si3lab/lidarlink/internal/history"
	"github.com/si3lab/lidarlink/internal/infrastructure/config"
	"github.com/si3lab/lidarlink/internal/infrastructure/database"
	"github.com/si3lab/lidarlink/internal/infrastructure/influxdb"
	"github.com/si3lab/lidarlink/internal/infrastructure/logging"
	"github.com/si3lab/lidarlink/internal/infrastructure/mqtt"
	"github.com/si3lab/lidarlink/internal/infrastructure/opcua"
	"github.com/si3lab/lidarlink/internal/metrics"
	"github.com/si3lab/lidarlink/internal/session"
	"github.com/si3lab/lidarlink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// configEnv names the configuration file when --config is not given.
	configEnv = "LIDARLINK_CONFIG"

	shutdownTimeout    = 10 * time.Second
	healthCheckTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds the parsed command line.
type cliOptions struct {
	URL        string
	Rate       *float64
	ConfigPath string
	Console    bool
	Version    bool
	Rollback   bool
}

// parseFlags parses the command line. Usage and parse errors go to stderr.
func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	fs := pflag.NewFlagSet("lidarlink", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: lidarlink <opc.tcp://host:port> [flags]")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	rate := fs.Float64P("rate", "r", 0, "poll every `SECONDS` instead of subscribing to changes")
	configPath := fs.StringP("config", "c", os.Getenv(configEnv), "YAML configuration `PATH` (env "+configEnv+")")
	withConsole := fs.Bool("console", false, "read operator commands from the terminal")
	showVersion := fs.Bool("version", false, "print version and exit")
	rollback := fs.Bool("journal-rollback", false, "revert the latest session journal migration and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(1))
	}

	opts := &cliOptions{
		URL:        fs.Arg(0),
		ConfigPath: *configPath,
		Console:    *withConsole,
		Version:    *showVersion,
		Rollback:   *rollback,
	}
	if fs.Changed("rate") {
		if *rate <= 0 {
			return nil, fmt.Errorf("--rate must be positive, got %v", *rate)
		}
		opts.Rate = rate
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently. Only
// setup failures are returned; a lost or unreachable instrument is retried
// until shutdown.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.Version {
		fmt.Printf("lidarlink %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	logging.Default().Info("starting lidarlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.LoadWithOverrides(opts.ConfigPath, config.Overrides{URL: opts.URL, PollRate: opts.Rate})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.Rollback {
		return rollbackJournal(ctx, cfg, logging.New(cfg.Logging, version))
	}

	attrs, err := attribute.Load(cfg.Instrument.AttributeFile, cfg.Instrument.NamespaceIndex)
	if err != nil {
		return fmt.Errorf("loading attribute map: %w", err)
	}
	catalogue := control.New(cfg.Instrument.NamespaceIndex, cfg.History.MaxRetentionMinutes)

	// The console claims the terminal before anything logs, so log lines
	// are printed above the prompt.
	var (
		term *console.Console
		log  *logging.Logger
	)
	if opts.Console {
		term, err = console.New(catalogue, console.Options{ResultTimeout: cfg.CommandTimeout() + time.Second})
		if err != nil {
			return fmt.Errorf("starting console: %w", err)
		}
		defer term.Close() //nolint:errcheck // Terminal restore is best effort
		log = logging.NewWithWriter(cfg.Logging, version, term.Stdout())
		term.SetLogLevels(log)
	} else {
		log = logging.New(cfg.Logging, version)
	}
	log.Info("configuration loaded",
		"path", opts.ConfigPath,
		"url", cfg.Instrument.URL,
		"attributes", attrs.Len(),
	)

	store, err := history.New(cfg.History.RetentionMinutes)
	if err != nil {
		return fmt.Errorf("creating history store: %w", err)
	}
	projector := entity.NewProjector(attrs)
	pipeline := acquisition.NewPipeline(projector, store)
	pipeline.SetLogger(log.With("component", "acquisition"))

	reg := metrics.New()
	reg.RegisterHistory(store)
	reg.RegisterPipeline(pipeline)
	pipeline.AddSink("metrics", reg)

	strategy, poll := newStrategy(cfg, attrs, pipeline, log)
	if poll != nil {
		reg.RegisterPoll(poll)
	}

	dialer := opcua.NewDialer(opcua.Options{
		Namespace:      uint16(cfg.Instrument.NamespaceIndex), // #nosec G115 -- validated 0-65535
		ControlObjects: []string{cfg.Instrument.ControlObject, cfg.Instrument.ControlFallback},
		DialTimeout:    cfg.DialTimeout(),
		RequestTimeout: cfg.RequestTimeout(),
	})
	dialer.SetLogger(log.With("component", "opcua"))

	manager := session.NewManager(session.Config{
		URL:              cfg.Instrument.URL,
		ProbeAddress:     attrs.First().Address,
		ProbeInterval:    cfg.ProbeInterval(),
		ReconnectBackoff: cfg.ReconnectBackoff(),
		CommandTimeout:   cfg.CommandTimeout(),
		QueueSize:        cfg.Session.CommandQueueSize,
	}, dialer, strategy)
	manager.SetLogger(log.With("component", "session"))
	manager.SetRetentionSetter(store)
	manager.OnStateChange(reg.ObserveTransition)
	manager.OnCommand(reg.ObserveCommand)

	links := map[string]api.Link{"instrument": manager}

	// Session journal (optional)
	db, journal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		recorder := audit.NewRecorder(journal, cfg.JournalKeep())
		recorder.SetLogger(log.With("component", "journal"))
		recorder.Attach(manager)

		recCtx, stopRecorder := context.WithCancel(context.Background())
		recDone := make(chan struct{})
		go func() {
			defer close(recDone)
			recorder.Run(recCtx)
		}()
		defer func() {
			stopRecorder()
			<-recDone
			written, dropped := recorder.Counts()
			log.Info("journal stopped", "written", written, "dropped", dropped)
		}()
	} else {
		log.Info("session journal disabled")
	}

	// InfluxDB exporter (optional)
	influxClient := connectInflux(ctx, cfg, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		pipeline.AddSink("influxdb", influxClient)
		manager.OnStateChange(influxClient.ObserveTransition)
		links["influxdb"] = influxClient
	}

	// MQTT publisher and command subscriber (optional)
	mqttClient, br := startMQTT(ctx, cfg, attrs, projector, catalogue, manager, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		defer func() {
			br.Stop()
			st := br.Stats()
			log.Info("MQTT bridge stopped", "published", st.Published, "failed", st.Failed, "dropped", st.Dropped)
		}()
		pipeline.AddSink("mqtt", br)
		manager.OnStateChange(br.ObserveTransition)
		manager.OnCommand(br.ObserveCommand)
		links["mqtt"] = mqttClient
	}

	checkCtx, cancelCheck := context.WithTimeout(ctx, healthCheckTimeout)
	err = healthCheck(checkCtx, db, mqttClient, influxClient)
	cancelCheck()
	if err != nil {
		return fmt.Errorf("startup health check: %w", err)
	}
	log.Info("startup health check passed")

	// Visualization API
	if cfg.API.Enabled {
		srv, srvErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.With("component", "api"),
			Session:     manager,
			Attrs:       attrs,
			Store:       store,
			Projector:   projector,
			Catalogue:   catalogue,
			Pipeline:    pipeline,
			Poll:        poll,
			Journal:     journal,
			DB:          db,
			Links:       links,
			Metrics:     reg.Handler(),
			CommandWait: 2 * cfg.CommandTimeout(),
			Version:     version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		pipeline.AddSink("websocket", srv)
		manager.OnStateChange(srv.ObserveTransition)
		manager.OnCommand(srv.ObserveCommand)

		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// Session last: it is closed first, so no batch reaches a closed sink.
	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting session: %w", startErr)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := manager.Close(closeCtx); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
		log.Info("session closed")
	}()

	if term != nil {
		go func() {
			if runErr := term.Run(ctx, manager); runErr != nil {
				log.Error("console stopped", "error", runErr)
			}
		}()
	}

	log.Info("initialisation complete",
		"mode", strategy.Mode(),
		"url", cfg.Instrument.URL,
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-manager.ShutdownRequested():
		log.Info("shutdown requested, cleaning up")
	}

	if term != nil {
		_ = term.Close() //nolint:errcheck // Unblocks the pending Readline
	}

	// Deferred calls run in reverse order:
	// 1. Session (acquisition stops, probes stop)
	// 2. API server
	// 3. MQTT bridge and client (if enabled)
	// 4. InfluxDB (if enabled)
	// 5. Journal and database (if enabled)

	log.Info("lidarlink stopped")
	return nil
}

// healthCheck verifies the optional dependencies that were enabled and
// connected. Nil arguments are skipped.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// rollbackJournal reverts the most recent journal migration.
func rollbackJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	if !cfg.Database.Enabled {
		return errors.New("--journal-rollback needs database.enabled")
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Best effort close after rollback

	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back journal migration: %w", err)
	}
	applied, _, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("journal migration rolled back", "path", db.Path(), "migrations_applied", len(applied))
	return nil
}

// newStrategy picks polling when a poll rate is configured and change
// subscriptions otherwise.
func newStrategy(cfg *config.Config, attrs *attribute.Map, pipeline *acquisition.Pipeline, log *logging.Logger) (acquisition.Strategy, *acquisition.Poll) {
	if interval := cfg.PollInterval(); interval > 0 {
		poll := acquisition.NewPoll(attrs, acquisition.PollOptions{
			Interval:         interval,
			Floor:            cfg.PollFloor(),
			FailureThreshold: cfg.Acquisition.PollFailureThreshold,
		}, pipeline)
		poll.SetLogger(log.With("component", "poll"))
		log.Info("acquisition mode: poll", "interval", interval)
		return poll, poll
	}

	push := acquisition.NewPush(attrs, cfg.PushPeriod(), pipeline)
	push.SetLogger(log.With("component", "push"))
	log.Info("acquisition mode: push", "period", push.Period())
	return push, nil
}

// openJournal opens the SQLite journal and applies migrations. It returns
// nils when the journal is disabled.
//
// Returns:
//   - *database.DB: Open database, or nil
//   - audit.Repository: Journal repository, or nil
//   - error: If the enabled journal cannot be opened or migrated
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, audit.Repository, error) {
	if !cfg.Database.Enabled {
		return nil, nil, nil
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database connected", "path", db.Path(), "migrations_applied", applied)

	return db, audit.NewSQLiteRepository(db.DB), nil
}

// connectInflux connects the exporter. An unreachable server is logged and
// the exporter is skipped; telemetry keeps flowing to the other sinks.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB unavailable, exporter disabled", "url", cfg.InfluxDB.URL, "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}

// startMQTT connects to the broker and starts the bridge. An unreachable
// broker is logged and MQTT is skipped.
func startMQTT(
	ctx context.Context,
	cfg *config.Config,
	attrs *attribute.Map,
	projector *entity.Projector,
	catalogue *control.Catalogue,
	manager *session.Manager,
	log *logging.Logger,
) (*mqtt.Client, *bridge.Bridge) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	mqttLog := log.With("component", "mqtt")
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Warn("MQTT broker unavailable, publishing disabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"error", err,
		)
		return nil, nil
	}
	client.SetLogger(mqttLog)
	client.SetOnConnect(func() {
		mqttLog.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		mqttLog.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	br, err := bridge.NewBridge(bridge.Options{
		Client:            client,
		Topics:            client.Topics(),
		QoS:               byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0-2
		Session:           manager,
		Catalogue:         catalogue,
		Attrs:             attrs,
		Projector:         projector,
		StateInterval:     time.Duration(cfg.MQTT.StateInterval) * time.Second,
		PublishAttributes: cfg.MQTT.PublishAttributes,
		Commands:          cfg.MQTT.Commands,
	})
	if err == nil {
		br.SetLogger(mqttLog)
		err = br.Start(ctx)
	}
	if err != nil {
		log.Warn("MQTT bridge failed to start", "error", err)
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil
	}

	return client, br
}
