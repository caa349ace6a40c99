// Hearth Core - Home Automation Hub
//
// hearthd mediates between heterogeneous device integrations and a
// user-visible model of devices, groups, scenes, routines and UI state,
// broadcasting a debounced, consistent world-state to connected clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homehub/hearth-core/internal/api"
	"github.com/homehub/hearth-core/internal/core/appstate"
	"github.com/homehub/hearth-core/internal/core/devices"
	"github.com/homehub/hearth-core/internal/core/groups"
	"github.com/homehub/hearth-core/internal/core/routines"
	"github.com/homehub/hearth-core/internal/core/scenes"
	"github.com/homehub/hearth-core/internal/core/ui"
	"github.com/homehub/hearth-core/internal/eventbus"
	"github.com/homehub/hearth-core/internal/integration"
	"github.com/homehub/hearth-core/internal/integration/mqttbridge"
	"github.com/homehub/hearth-core/internal/persistence/sqlite"
	"github.com/homehub/hearth-core/internal/platform/config"
	"github.com/homehub/hearth-core/internal/platform/logging"
	"github.com/homehub/hearth-core/internal/platform/metrics"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	fmt.Printf("Hearth Core %s (%s) built %s\n", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	configPath := os.Getenv("HEARTH_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting hearthd", "site_id", cfg.Site.ID)

	// Construction order: EventBus -> Integrations registry -> UI ->
	// WebSocket hub -> Groups -> Devices -> Scenes -> Routines -> AppState
	// aggregator -> API server -> dispatcher loop -> integration Start()
	// calls -> StartupCompleted. Scenes takes Groups and Devices as
	// constructor arguments, so both are built before it. There is no
	// separate Expr component: AppState builds the expr context on demand.
	bus := eventbus.New()
	integrations := integration.NewRegistry()
	uiStore := ui.New()
	hub := api.NewHub(cfg.WebSocket.SendBufferSize, log)

	var db *sqlite.DB
	if cfg.DBAvailable() {
		db, err = sqlite.Open(cfg.Database)
		if err != nil {
			log.Error("database unavailable, continuing without persistence", "error", err)
			db = nil
		} else {
			defer db.Close()
		}
	} else {
		log.Warn("DATABASE_URL unset, persistence layer skipped")
	}

	groupDefs := loadGroupConfig()
	groupsComponent := groups.New(groupDefs, log)

	devicesComponent := devices.New(log)

	sceneConfigs := loadSceneConfig()
	scenesComponent := scenes.New(sceneConfigs, groupsComponent, devicesComponent, log)
	scenesComponent.AddSearchConfigs(loadSceneSearchConfig())
	if db != nil {
		dbScenes, err := db.LoadScenes(ctx)
		if err != nil {
			log.Warn("loading db scenes failed", "error", err)
		} else {
			scenesComponent.RefreshDB(dbScenes)
		}

		overrides, err := db.LoadSceneOverrides(ctx)
		if err != nil {
			log.Warn("loading scene overrides failed", "error", err)
		} else {
			for key, on := range overrides {
				scenesComponent.StoreOverride(key, on)
			}
		}

		uiState, err := db.GetUIState(ctx)
		if err != nil {
			log.Warn("loading ui state failed", "error", err)
		} else {
			uiStore.ReplaceAll(uiState)
		}
	}

	routineDefs := loadRoutineConfig()
	routinesComponent := routines.New(routineDefs, log)

	reg := prometheus.NewRegistry()
	metricsCollector := metrics.New(reg)

	var persistence appstate.Persistence
	if db != nil {
		persistence = db
	}

	app := appstate.New(appstate.Deps{
		Devices:      devicesComponent,
		Groups:       groupsComponent,
		Scenes:       scenesComponent,
		Routines:     routinesComponent,
		UI:           uiStore,
		Integrations: integrations,
		Bus:          bus,
		WS:           hub,
		DB:           persistence,
		Log:          log,
		Metrics:      metricsCollector,
	})
	hub.SetInitialState(app.StateSnapshot)

	mqttBridge := mqttbridge.New("mqtt", cfg.Integration.MQTT, func(d devices.Device) {
		app.Send(eventbus.ExternalStateUpdate(d))
	}, log)
	integrations.Add(mqttBridge)

	var dbHealth api.DBHealthChecker
	if db != nil {
		dbHealth = db
	}

	server, err := api.New(api.Deps{
		AppState: app,
		Hub:      hub,
		DB:       dbHealth,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Config:   cfg.API,
		WSConfig: cfg.WebSocket,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("constructing api server: %w", err)
	}

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		app.Run(ctx)
	}()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrCh <- err
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	for _, c := range integrations.All() {
		if err := c.Start(startCtx); err != nil {
			log.Error("integration start failed", "integration_id", c.ID(), "error", err)
		}
	}
	startCancel()

	app.Send(eventbus.StartupCompleted())
	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
	case err := <-serverErrCh:
		log.Error("api server failed", "error", err)
		cancel()
	}

	log.Info("shutdown signal received, cleaning up")
	<-dispatcherDone
	log.Info("hearthd stopped")
	return nil
}

// loadGroupConfig, loadSceneConfig, loadSceneSearchConfig and
// loadRoutineConfig supply the respective static definitions. No file or
// environment variable is read for them: each returns an empty set, so
// hearthd starts with zero static groups, scenes and routines.
func loadGroupConfig() []groups.Config             { return nil }
func loadSceneConfig() []scenes.Config             { return nil }
func loadSceneSearchConfig() []scenes.SearchConfig { return nil }
func loadRoutineConfig() []routines.Routine        { return nil }
