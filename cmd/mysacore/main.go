// mysa-core keeps a local, reconciled view of Mysa thermostats.
//
// It signs in to the vendor cloud, discovers homes and devices, merges
// polled and pushed state into one store, and serves that state plus a
// command surface over a local HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/mysa-core/migrations"

	"github.com/nerrad567/mysa-core/internal/api"
	"github.com/nerrad567/mysa-core/internal/auth"
	"github.com/nerrad567/mysa-core/internal/cloud"
	"github.com/nerrad567/mysa-core/internal/device"
	"github.com/nerrad567/mysa-core/internal/infrastructure/config"
	"github.com/nerrad567/mysa-core/internal/infrastructure/database"
	"github.com/nerrad567/mysa-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/mysa-core/internal/infrastructure/logging"
	"github.com/nerrad567/mysa-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mysa-core/internal/realtime"
	"github.com/nerrad567/mysa-core/internal/state"
	"github.com/nerrad567/mysa-core/internal/syncer"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting mysa-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Account session
	session := auth.NewSession(
		auth.NewCognitoProvider(auth.CognitoConfig{
			Region:         cfg.Cloud.Region,
			UserPoolID:     cfg.Cloud.UserPoolID,
			ClientID:       cfg.Cloud.ClientID,
			IdentityPoolID: cfg.Cloud.IdentityPoolID,
		}),
		auth.NewCredentialCache(db.DB),
		auth.SessionConfig{
			Username:    cfg.Account.Username,
			Password:    cfg.Account.Password,
			RenewMargin: cfg.Cloud.RenewMarginDuration(),
			Broker: auth.BrokerConfig{
				Endpoint: cfg.Realtime.Endpoint,
				Path:     cfg.Realtime.Path,
				Service:  cfg.Realtime.Service,
				Region:   cfg.Cloud.Region,
			},
		},
	)
	session.SetLogger(log.Component("auth"))
	if restoreErr := session.Restore(ctx); restoreErr != nil {
		log.Warn("cached credential unusable, will sign in", "error", restoreErr)
	}

	rest := cloud.NewClient(session, cloud.Config{
		BaseURL:   cfg.Cloud.BaseURL,
		UserAgent: cfg.Cloud.UserAgent,
		Timeout:   cfg.Cloud.RequestTimeoutDuration(),
	})

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), cfg.Account.UpgradedLiteDevices)
	registry.SetLogger(log.Component("registry"))
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}

	store := state.NewStore(state.Config{
		PendingWindow: cfg.Sync.StaleGuardDuration(),
		EventBuffer:   cfg.Sync.EventBuffer,
	})
	store.SetLogger(log.Component("state"))

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			st := influxClient.Stats()
			log.Info("InfluxDB closed", "points", st.Points, "retried", st.Retried,
				"rejected", st.Rejected, "failed", st.Failed)
		}()
		influxClient.SetOnError(func(err error) {
			if errors.Is(err, influxdb.ErrWriteRejected) {
				log.Error("InfluxDB rejected telemetry batch", "error", err)
				return
			}
			log.Warn("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Realtime channel (optional)
	var channel syncer.Channel = syncer.Offline{}
	var rt *realtime.Channel
	if cfg.Realtime.Enabled {
		rt = startRealtime(cfg, session, registry, store, log)
		if influxClient != nil {
			rt.SetReadingObserver(influxClient.WriteReading)
		}
		channel = rt
	} else {
		log.Info("realtime channel disabled, state comes from polling only")
	}

	orch := syncer.New(rest, channel, registry, store, syncer.Config{
		PollInterval:        cfg.Sync.PollIntervalDuration(),
		HomeRefreshInterval: cfg.Sync.HomeRefreshDuration(),
	})
	orch.SetLogger(log.Component("sync"))

	sinks := []func(state.Event){}
	if influxClient != nil {
		sinks = append(sinks, influxClient.WriteStateEvent)
	}

	// Local API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Registry: registry,
			Store:    store,
			Engine:   orch,
			Version:  version,
		}
		if rt != nil {
			deps.Channel = rt
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		sinks = append(sinks, server.PublishStateEvent)
	}

	go relayEvents(ctx, store.Events(), sinks...)

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete")

	if err := orch.Run(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	log.Info("mysa-core stopped")
	return nil
}

// startRealtime builds the push channel. Each connection attempt dials the
// broker with a freshly signed URL.
func startRealtime(cfg *config.Config, session *auth.Session, registry *device.Registry, store *state.Store, log *logging.Logger) *realtime.Channel {
	rc := cfg.Realtime

	dial := realtime.Dialer(mqtt.Config{
		Endpoint:       rc.Endpoint,
		URL:            session.SignedBrokerURL,
		UserAgent:      cfg.Cloud.UserAgent,
		QoS:            byte(rc.QoS),
		KeepAlive:      seconds(rc.KeepAlive),
		PingTimeout:    seconds(rc.PingTimeout),
		ConnectTimeout: seconds(rc.ConnectTimeout),
	}, log.Component("mqtt"))

	rt := realtime.NewChannel(dial, session, registry, store, realtime.Config{
		QoS:            byte(rc.QoS),
		InitialBackoff: seconds(rc.Reconnect.InitialDelay),
		MaxBackoff:     seconds(rc.Reconnect.MaxDelay),
		MaxAttempts:    rc.Reconnect.MaxAttempts,
	})
	rtLog := log.Component("realtime")
	rt.SetLogger(rtLog)
	rt.SetOnStateChange(func(s realtime.ConnState) {
		rtLog.Info("realtime channel state", "state", s.String())
	})
	return rt
}

// relayEvents hands every accepted state change to each sink until ctx is
// cancelled.
func relayEvents(ctx context.Context, events <-chan state.Event, sinks ...func(state.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			for _, sink := range sinks {
				sink(ev)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses MYSA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MYSA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies local infrastructure connections are healthy. The
// vendor cloud is not checked here; discovery retries on its own.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
