package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	cometlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartMetrics configures the Prometheus HTTP server and handler.
func StartMetrics(out io.Writer) {
	logger := cometlog.NewTMLogger(cometlog.NewSyncWriter(out)).With("module", "metrics")

	if len(config.Config.PrometheusListenAddress) == 0 {
		logger.Error("prometheus-listen-address not defined")
		return
	}
	logger.Info("Prometheus Metrics Listening", "address", config.Config.PrometheusListenAddress)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              config.Config.PrometheusListenAddress,
		Handler:           mux,
		ReadTimeout:       1 * time.Second,
		WriteTimeout:      1 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		logger.Error(fmt.Sprintf("Prometheus Endpoint failed to start: %s", err))
	}
}
