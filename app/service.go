// Package app assembles the tracker service from its configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cargoroute/tracker/api"
	"github.com/cargoroute/tracker/config"
	"github.com/cargoroute/tracker/core/alert"
	"github.com/cargoroute/tracker/core/engine"
	coremetrics "github.com/cargoroute/tracker/core/metrics"
	"github.com/cargoroute/tracker/core/realtime"
	corestore "github.com/cargoroute/tracker/core/store"
	"github.com/cargoroute/tracker/infra/logger"
	"github.com/cargoroute/tracker/infra/metrics"
	"github.com/cargoroute/tracker/infra/mqtt"
	"github.com/cargoroute/tracker/infra/store"
	"github.com/cargoroute/tracker/infra/ws"
	"github.com/cargoroute/tracker/internal/eventbus"
)

// Service orchestrates the engine, alert manager, live hub and transports.
type Service struct {
	Engine *engine.Engine
	Alerts *alert.Manager
	Hub    *realtime.Hub

	cfg      *config.Config
	store    corestore.Store
	bus      *eventbus.Bus
	router   *realtime.Router
	ingestor *mqtt.Ingestor
	srv      *http.Server
	log      logger.Logger

	closeStore func() error
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMultiSink(sinks...)
	}

	var (
		st         corestore.Store
		closeStore func() error
	)
	switch cfg.Store.Backend {
	case "memory":
		st = corestore.NewMemoryStore()
	default:
		dbStore, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st = dbStore
		closeStore = dbStore.Close
	}

	bus := eventbus.New()
	busLog := logger.New("eventbus")
	bus.Dropped = func(name string) {
		busLog.Warnf("subscriber full, dropped %s", name)
	}
	eng, err := engine.New(st, bus, logger.New("engine"), sink)
	if err != nil {
		return nil, err
	}
	alerts, err := alert.New(st, bus, logger.New("alerts"), sink)
	if err != nil {
		return nil, err
	}

	registry := realtime.NewRegistry()
	hub, err := realtime.NewHub(registry, logger.New("hub"))
	if err != nil {
		return nil, err
	}
	sendTimeout := time.Duration(cfg.Realtime.SendTimeoutSeconds) * time.Second
	router, err := realtime.NewRouter(hub, registry, sendTimeout, logger.New("router"), sink)
	if err != nil {
		return nil, err
	}
	hub.SetRouter(router)

	mux := http.NewServeMux()
	api.New(eng, alerts, st).Register(mux)
	mux.Handle("GET /ws", ws.NewHandler(hub))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	svc := &Service{
		Engine:     eng,
		Alerts:     alerts,
		Hub:        hub,
		cfg:        cfg,
		store:      st,
		bus:        bus,
		router:     router,
		srv:        &http.Server{Addr: cfg.HTTP.Addr, Handler: mux},
		log:        logg,
		closeStore: closeStore,
	}

	if cfg.MQTT.Enabled {
		ing, err := mqtt.NewIngestor(cfg.MQTT, eng)
		if err != nil {
			return nil, fmt.Errorf("mqtt ingestor: %w", err)
		}
		svc.ingestor = ing
	}
	return svc, nil
}

// Run starts the transports and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	sub := s.bus.Subscribe()
	go s.router.Run(ctx, sub)

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			addr := ":" + s.cfg.Metrics.PrometheusPort
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()

	s.log.Infof("listening on %s", s.cfg.HTTP.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases the broker connection and the store.
func (s *Service) Close() error {
	if s.ingestor != nil {
		s.ingestor.Close()
	}
	s.bus.Close()
	if s.closeStore != nil {
		return s.closeStore()
	}
	return nil
}
