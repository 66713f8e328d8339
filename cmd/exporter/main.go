package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/kubeadapt/nvsmi-exporter/internal/collector/gpu"
	"github.com/kubeadapt/nvsmi-exporter/internal/config"
	"github.com/kubeadapt/nvsmi-exporter/internal/errors"
	"github.com/kubeadapt/nvsmi-exporter/internal/observability"
	"github.com/kubeadapt/nvsmi-exporter/internal/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// 1. Load and validate config.
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Create shared infrastructure.
	metrics := observability.NewMetrics()
	metrics.Info.WithLabelValues(cfg.InstanceID).Set(1)
	failures := errors.NewRecentFailures()

	// 3. Build the GPU collector.
	querier := gpu.NewNvidiaSMIQuerier(cfg.Command, cfg.QueryTimeout)
	collector := gpu.NewGPUMetricsCollector(querier, metrics, failures)

	// 4. Start the exporter server.
	srv := server.NewServer(cfg.Port, collector, metrics, failures, cfg.DebugEndpoints)
	if err := srv.Start(); err != nil {
		slog.Error("failed to start exporter server", "error", err)
		os.Exit(1)
	}

	slog.Info("nvsmi-exporter started",
		"instance_id", cfg.InstanceID,
		"addr", srv.Addr(),
		"metrics_url", fmt.Sprintf("http://localhost:%d/metrics", cfg.Port),
		"debug_endpoints", cfg.DebugEndpoints,
	)

	// 5. Block until SIGINT/SIGTERM, then stop without draining.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("shutting down metrics server", "signal", sig)

	if err := srv.Close(); err != nil {
		slog.Error("exporter server close error", "error", err)
	}
}
