package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/flowline-core/internal/action"
	"github.com/nerrad567/flowline-core/internal/api"
	"github.com/nerrad567/flowline-core/internal/automation"
	"github.com/nerrad567/flowline-core/internal/infrastructure/config"
	"github.com/nerrad567/flowline-core/internal/infrastructure/database"
	"github.com/nerrad567/flowline-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/flowline-core/internal/infrastructure/logging"
	"github.com/nerrad567/flowline-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flowline-core/internal/ingest"
	"github.com/nerrad567/flowline-core/internal/record"
)

// runServe is the service entry point, separated from the command for
// testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Global flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, opts *rootOptions) error { //nolint:gocognit,gocyclo // startup wiring is a flat sequence of optional components
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Flowline",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	checks := map[string]api.HealthChecker{"database": db}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Build the engine
	engine, err := buildEngine(cfg, db, mqttClient, log)
	if err != nil {
		return err
	}

	seeded, err := seedDefinitions(ctx, engine, cfg.Automations.DefinitionsDir)
	if err != nil {
		return fmt.Errorf("loading automation definitions: %w", err)
	}
	if seeded > 0 {
		log.Info("automation definitions created", "count", seeded, "dir", cfg.Automations.DefinitionsDir)
	}

	// API server and run listeners
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Engine:   engine,
		DB:       db.DB,
		Checks:   checks,
		Version:  version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	engine.AddListener(server.Hub())
	if mqttClient != nil {
		engine.AddListener(&runPublisher{pub: mqttClient, log: log})
	}
	if influxClient != nil {
		engine.AddListener(&runMetrics{writer: influxClient})
	}

	// Load automations and start the scheduler
	if cfg.Scheduler.Enabled {
		if err := engine.Bootstrap(ctx, cfg.Scheduler.LoadOwnerID); err != nil {
			return fmt.Errorf("starting automation engine: %w", err)
		}
		defer engine.StopScheduler()
		log.Info("scheduler started", "cron_mode", cfg.Scheduler.CronMode)
	} else {
		if _, err := engine.LoadAutomations(ctx, cfg.Scheduler.LoadOwnerID); err != nil {
			return fmt.Errorf("starting automation engine: %w", err)
		}
		log.Info("scheduler disabled")
	}

	// Event ingestion
	if mqttClient != nil {
		ingestor := ingest.New(mqttClient, engine, log)
		if err := ingestor.Start(ctx); err != nil {
			return fmt.Errorf("starting event ingestion: %w", err)
		}
		defer func() {
			if stopErr := ingestor.Stop(); stopErr != nil {
				log.Warn("error stopping event ingestion", "error", stopErr)
			}
		}()
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"automations", engine.Registry().Count(),
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	// Deferred calls run in reverse order: API, ingestion, scheduler,
	// InfluxDB, MQTT, database.
	log.Info("shutdown signal received, cleaning up")
	log.Info("Flowline stopped")
	return nil
}

// buildEngine wires the handler table and the engine.
func buildEngine(cfg *config.Config, db *database.DB, mqttClient *mqtt.Client, log *logging.Logger) (*automation.Engine, error) {
	deps := action.Deps{
		Records: record.NewSQLiteStore(db.DB),
		Notify: action.NotifyConfig{
			TopicPrefix:     cfg.Notify.TopicPrefix,
			SlackWebhookURL: cfg.Notify.SlackWebhookURL,
		},
		Webhook: action.WebhookConfig{
			Timeout: config.Seconds(cfg.Webhook.Timeout),
			Breaker: action.BreakerConfig{
				MaxFailures: uint32(max(cfg.Webhook.Breaker.MaxFailures, 0)), //nolint:gosec // clamped non-negative
				Timeout:     config.Seconds(cfg.Webhook.Breaker.Timeout),
				Interval:    config.Seconds(cfg.Webhook.Breaker.Interval),
			},
		},
		Logger: log,
	}

	// Nil collaborators stay unset so their handlers report ErrNotConfigured.
	if mqttClient != nil {
		deps.Publisher = mqttClient
		deps.Team = &mqttTeam{pub: mqttClient, now: time.Now}
		deps.Spaces = &mqttSpaces{pub: mqttClient, now: time.Now}
	}
	if cfg.Email.Host != "" {
		deps.Mailer = action.NewSMTPMailer(action.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	}

	dispatcher, err := automation.NewDispatcher(action.Handlers(deps), log)
	if err != nil {
		return nil, fmt.Errorf("building action dispatcher: %w", err)
	}

	engine := automation.NewEngine(automation.NewSQLiteRepository(db.DB), dispatcher, log)
	engine.Scheduler().SetMode(automation.CronMode(cfg.Scheduler.CronMode))
	return engine, nil
}

// seedDefinitions creates every automation in dir whose ID is not yet
// stored. Returns the number created. An empty dir is a no-op.
func seedDefinitions(ctx context.Context, engine *automation.Engine, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	definitions, err := automation.LoadDefinitions(dir)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range definitions {
		a := &definitions[i]
		if a.ID != "" {
			if _, err := engine.GetAutomation(ctx, a.ID); err == nil {
				continue
			} else if !errors.Is(err, automation.ErrNotFound) {
				return created, err
			}
		}
		if err := engine.CreateAutomation(ctx, a); err != nil {
			return created, fmt.Errorf("creating %q: %w", a.Name, err)
		}
		created++
	}
	return created, nil
}
