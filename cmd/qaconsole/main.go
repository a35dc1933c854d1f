// QA Console Core - Test Orchestration Engine
//
// This is the main entry point for the QA console core. The core
// orchestrates scripted UI tests across a fleet of physical and
// emulated mobile devices:
//   - Scenario flow graphs authored in the browser console
//   - Per-device FIFO execution queues with priority insertion
//   - MQTT command/result traffic to the on-host device agents
//   - Live progress over WebSocket, history in SQLite, telemetry in InfluxDB
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/kws0109/QA-Automation-sub001/migrations"

	"github.com/kws0109/QA-Automation-sub001/internal/api"
	"github.com/kws0109/QA-Automation-sub001/internal/device"
	"github.com/kws0109/QA-Automation-sub001/internal/driver"
	"github.com/kws0109/QA-Automation-sub001/internal/engine"
	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/config"
	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/database"
	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/influxdb"
	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/logging"
	"github.com/kws0109/QA-Automation-sub001/internal/infrastructure/mqtt"
	"github.com/kws0109/QA-Automation-sub001/internal/report"
	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting QA console core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
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

	// Scenario registry
	scenarioRegistry := scenario.NewRegistry(scenario.NewSQLiteRepository(db.DB))
	scenarioRegistry.SetLogger(log)
	if refreshErr := scenarioRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading scenario registry: %w", refreshErr)
	}
	log.Info("scenario registry initialised", "scenarios", scenarioRegistry.Count())

	// Device registry. Devices come up offline until their agent reports in.
	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log)
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.Count())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Device agent driver: command/result round trips over the broker
	qos := byte(cfg.MQTT.QoS)
	agentDriver := driver.NewMQTTDriver(mqttClient, qos, cfg.GetActionTimeout())
	agentDriver.SetLogger(log)
	if startErr := agentDriver.Start(); startErr != nil {
		return fmt.Errorf("starting agent driver: %w", startErr)
	}

	// Agent status topic feeds the device registry
	if subErr := subscribeAgentStatuses(mqttClient, qos, deviceRegistry, log); subErr != nil {
		return fmt.Errorf("subscribing to agent statuses: %w", subErr)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub is shared between the API server and the engine emitter
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	var emitter engine.Emitter = api.NewHubEmitter(hub)
	if influxClient != nil {
		emitter = engine.MultiEmitter{emitter, influxdb.NewEmitter(influxClient)}
	}

	// Orchestration engine
	locks := engine.NewLockRegistry()
	locks.SetLogger(log)

	runner := engine.NewRunner(agentDriver, cfg.Engine.MaxNodeVisits)
	runner.SetLogger(log)
	runner.SetEmitter(emitter)

	queue := engine.NewQueue(locks, runner)
	queue.SetLogger(log)
	queue.SetEmitter(emitter)
	defer queue.Close()

	reportRepo := report.NewSQLiteRepository(db.DB)

	coordinator := engine.NewCoordinator(queue, scenarioRegistry, deviceRegistry)
	coordinator.SetLogger(log)
	coordinator.SetEmitter(emitter)
	coordinator.SetReportSink(reportRepo)
	defer coordinator.Close()

	log.Info("orchestration engine initialised",
		"max_node_visits", cfg.Engine.MaxNodeVisits,
		"action_timeout_s", cfg.Engine.ActionTimeout,
	)

	// API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.Server,
		WS:          cfg.WebSocket,
		Auth:        cfg.Auth,
		Logger:      log,
		Devices:     deviceRegistry,
		Scenarios:   scenarioRegistry,
		Coordinator: coordinator,
		Queue:       queue,
		Reports:     reportRepo,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.Server.Host, "port", cfg.Server.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Coordinator, queue
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("QA console core stopped")
	return nil
}

// agentStatusMessage is the payload device agents publish on their
// status topic (retained, with an offline LWT).
type agentStatusMessage struct {
	Status string `json:"status"`
}

// subscribeAgentStatuses wires the agent status topic into the device
// registry. Unknown devices are logged and dropped by the registry.
func subscribeAgentStatuses(client *mqtt.Client, qos byte, registry *device.Registry, log *logging.Logger) error {
	topic := mqtt.Topics{}.AllAgentStatuses()
	log.Info("subscribing to agent statuses", "topic", topic)

	return client.Subscribe(topic, qos, func(t string, payload []byte) error {
		deviceID := mqtt.DeviceIDFromStatusTopic(t)
		if deviceID == "" {
			log.Warn("agent status on unexpected topic", "topic", t)
			return nil
		}

		var msg agentStatusMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn("invalid agent status payload", "topic", t, "error", err)
			return nil
		}

		status := device.Status(msg.Status)
		if !status.Valid() {
			log.Warn("unknown agent status", "topic", t, "status", msg.Status)
			return nil
		}

		registry.SetStatus(context.Background(), deviceID, status)
		return nil
	})
}

// getConfigPath returns the configuration file path.
// Uses QACONSOLE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("QACONSOLE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
