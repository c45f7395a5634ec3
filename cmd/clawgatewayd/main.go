package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clawbernetes/clawgatewayd/internal/attestation"
	"github.com/clawbernetes/clawgatewayd/internal/clawlog"
	"github.com/clawbernetes/clawgatewayd/internal/config"
	"github.com/clawbernetes/clawgatewayd/internal/dispatcher"
	"github.com/clawbernetes/clawgatewayd/internal/gatewaysession"
	"github.com/clawbernetes/clawgatewayd/internal/httpapi"
	"github.com/clawbernetes/clawgatewayd/internal/mesh"
	"github.com/clawbernetes/clawgatewayd/internal/metrics"
	"github.com/clawbernetes/clawgatewayd/internal/registry"
	"github.com/clawbernetes/clawgatewayd/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("clawgatewayd: %v", err)
	}

	logger := clawlog.Named("clawgatewayd")
	logger.Infof("starting with listen_addr=%s http_addr=%s", cfg.ListenAddr, cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("received shutdown signal")
		cancel()
	}()

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.ExporterType = cfg.TracingExporter
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tracingCfg.JaegerEndpoint = cfg.JaegerEndpoint
	tracer, err := tracing.NewService(tracingCfg)
	if err != nil {
		logger.Errorf("tracing init failed: %v", err)
		tracer, _ = tracing.NewService(&tracing.Config{ExporterType: "none"})
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	reg := registry.New(registry.Config{
		HealthyWindow:  time.Duration(cfg.HealthyHeartbeatSecs) * time.Second,
		DegradedWindow: time.Duration(cfg.DegradedHeartbeatSecs) * time.Second,
	})

	disp := dispatcher.New(reg, dispatcher.Config{
		MemoryHeadroomMiB: cfg.MemoryHeadroomMiB,
		MaxWorkloadGPUs:   cfg.MaxWorkloadGPUs,
		PendingQueueCap:   cfg.PendingQueueCap,
	})

	allocator, err := mesh.NewAllocator(mesh.DefaultRegionLayout())
	if err != nil {
		logger.Errorf("mesh allocator init failed: %v", err)
		os.Exit(1)
	}

	metricsReg := metrics.New(prometheus.DefaultRegisterer)
	go pollHealthMetrics(ctx, disp, metricsReg)

	sessionServer := gatewaysession.NewServer(disp, cfg.VerifierID, allocator)
	_ = attestation.DefaultConfig() // verifier config surfaced via sessionServer's own defaults

	sessionMux := http.NewServeMux()
	sessionMux.Handle("/ws", sessionServer)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: tracer.Middleware()(sessionMux),
	}

	apiServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.New(disp, sessionServer),
	}

	go func() {
		logger.Infof("node/session listener on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("session server exited: %v", err)
		}
	}()
	go func() {
		logger.Infof("http api listener on %s", cfg.HTTPAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http api server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = apiServer.Shutdown(shutdownCtx)
	logger.Infof("shutdown complete")
}

// pollHealthMetrics periodically refreshes the Prometheus gauges that
// have no natural push point (registry health breakdown).
func pollHealthMetrics(ctx context.Context, d *dispatcher.Dispatcher, m *metrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := d.Registry().HealthSummary()
			m.ObserveHealthSummary(s.Total, s.Healthy, s.Degraded, s.Offline)
		}
	}
}
