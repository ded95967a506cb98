package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-metrics"
	gmprom "github.com/hashicorp/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// startMetrics returns the sink every component emits to. With a listen
// address, metrics are exposed to Prometheus, otherwise they are kept in
// memory and dumped to stderr on SIGUSR1.
func startMetrics(cfg MetricsConfig, logger *slog.Logger) (metrics.MetricSink, func(), error) {
	if cfg.Listen == "" {
		inm := metrics.NewInmemSink(10*time.Second, time.Minute)
		sig := metrics.NewInmemSignal(inm, metrics.DefaultSignal, os.Stderr)
		return inm, sig.Stop, nil
	}

	sink, err := gmprom.NewPrometheusSink()
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", cfg.Listen, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	return sink, stop, nil
}
