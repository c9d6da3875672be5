package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wschoenell/chimera-manager/internal/api"
	"github.com/wschoenell/chimera-manager/internal/bridge"
	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/ephemeris"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/config"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/influxdb"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/logging"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/mqtt"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/redis"
	"github.com/wschoenell/chimera-manager/internal/instrument"
	"github.com/wschoenell/chimera-manager/internal/notify"
	"github.com/wschoenell/chimera-manager/internal/process"
	"github.com/wschoenell/chimera-manager/internal/supervisor"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// serve wires every component and runs the supervisor until ctx is done.
// Deferred closes run in reverse order of construction.
//
//nolint:gocognit,gocyclo // Linear startup sequence
func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Nothing left to report to
	log.Info("starting chimera supervisor",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	health := map[string]api.HealthChecker{"database": db}

	lookup := capability.NewStatic(map[string]any{
		capability.NameSite: ephemeris.NewSite(
			cfg.Site.Location.Latitude,
			cfg.Site.Location.Longitude,
			cfg.Site.Location.Elevation,
		),
	})

	runner := process.NewRunner(process.Config{
		Dir:            cfg.Scripts.Dir,
		DefaultTimeout: time.Duration(cfg.Scripts.Timeout) * time.Second,
	})
	runner.SetLogger(log)

	// InfluxDB (optional)
	var influx *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		health["influxdb"] = influx
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Redis pass lease (optional)
	var guard supervisor.PassGuard
	if cfg.Redis.Enabled {
		lease, leaseErr := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      time.Duration(cfg.Redis.LeaseTTL) * time.Second,
		}, cfg.Site.ID)
		if leaseErr != nil {
			return fmt.Errorf("connecting to redis: %w", leaseErr)
		}
		defer func() {
			if closeErr := lease.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		}()
		guard = lease
		health["redis"] = lease
		log.Info("pass lease enabled", "key", lease.Key())
	}

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	notifierOpts := notify.Options{
		Publisher:      hub,
		DefaultTimeout: time.Duration(cfg.Notifier.AskTimeout) * time.Second,
		Logger:         log,
	}

	// MQTT carries the instrument protocol and the operator channel.
	var (
		mqttClient *mqtt.Client
		br         *bridge.Bridge
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Notifier.TopicPrefix))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		notifierOpts.Bus = mqttClient
		notifierOpts.Topics = mqttClient.Topics()
		notifierOpts.QoS = mqttClient.QoS()

		var onReading bridge.ReadingFunc
		if influx != nil {
			onReading = influx.RecordReading
		}
		br, err = bridge.New(bridge.Options{
			Bus:             mqttClient,
			Topics:          mqttClient.Topics(),
			QoS:             mqttClient.QoS(),
			Instruments:     cfg.Supervisor.Instruments,
			WeatherStations: cfg.Supervisor.WeatherStations,
			Fans:            cfg.Supervisor.Fans,
			OnReading:       onReading,
			Logger:          log,
		})
		if err != nil {
			return fmt.Errorf("creating instrument bridge: %w", err)
		}
		for name, v := range br.Capabilities() {
			lookup.Put(name, v)
		}
	} else {
		log.Warn("MQTT disabled, running without instruments or operator channel")
	}

	notifier := notify.New(notifierOpts)
	lookup.Put(capability.NameNotifier, notifier)

	deps := supervisor.Deps{
		Store:     instrument.NewStore(instrument.NewSQLiteRepository(db.DB), log),
		Items:     checklist.NewSQLiteRepository(db.DB),
		Lookup:    lookup,
		Scripts:   runner,
		Guard:     guard,
		Metrics:   supervisor.NewMetrics(prometheus.DefaultRegisterer),
		Publisher: hub,
		Logger:    log,
	}
	if influx != nil {
		deps.Recorder = influx
	}
	sup := supervisor.New(supervisor.Config{
		Site:           cfg.Site.ID,
		Instruments:    instrumentNames(cfg),
		Interval:       cfg.WakeInterval(),
		HandlerTimeout: cfg.HandlerTimeout(),
		MaxDataAge:     cfg.MaxDataAge(),
		AskTimeout:     time.Duration(cfg.Notifier.AskTimeout) * time.Second,
	}, deps)

	if cfg.Supervisor.Checklist != "" {
		n, provErr := provision(ctx, deps.Items, sup.Registry(), cfg.Supervisor.Checklist)
		if provErr != nil {
			return provErr
		}
		log.Info("checklist provisioned", "path", cfg.Supervisor.Checklist, "items", n)
	}

	if err := sup.Init(ctx); err != nil {
		return fmt.Errorf("initialising supervisor: %w", err)
	}

	if br != nil {
		br.SetEventHandler(sup.HandleEvent)
		if err := br.Start(ctx); err != nil {
			return fmt.Errorf("starting instrument bridge: %w", err)
		}
		defer br.Close()
		log.Info("instrument bridge started", "instruments", br.IDs())
	}

	if err := notifier.Start(); err != nil {
		return fmt.Errorf("starting notifier: %w", err)
	}
	if err := notifier.ServeCommands(ctx, sup.HandleCommand); err != nil {
		return fmt.Errorf("serving operator commands: %w", err)
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log,
			Supervisor: sup,
			Questions:  notifier,
			Hub:        hub,
			Gatherer:   prometheus.DefaultGatherer,
			Health:     health,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete",
		"interval", cfg.WakeInterval().String(),
		"instruments", instrumentNames(cfg),
	)

	// Blocks until the shutdown signal, then waits for the running pass.
	sup.Run(ctx)

	log.Info("chimera supervisor stopped")
	return nil
}

// instrumentNames returns the supervised instrument names, sorted.
func instrumentNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Supervisor.Instruments))
	for name := range cfg.Supervisor.Instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func provision(ctx context.Context, repo checklist.Repository, registry *checklist.Registry, path string) (int, error) {
	p, err := checklist.LoadProvisioningFile(path)
	if err != nil {
		return 0, err
	}
	n, err := checklist.Provision(ctx, repo, registry, p)
	if err != nil {
		return n, fmt.Errorf("provisioning %s: %w", path, err)
	}
	return n, nil
}
