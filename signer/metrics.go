package signer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Prometheus Metrics
	totalSignRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_sign_requests",
		Help: "Total blinded sign requests received",
	})
	totalPartialSignatures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_partial_signatures",
		Help: "Total partial signatures produced",
	})
	totalReplayedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_replayed_requests",
		Help: "Total sign requests answered from the replay set without a quota charge",
	})
	totalQuotaDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_quota_denials",
		Help: "Total sign requests denied for exhausted quota",
	})
	totalAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_auth_failures",
		Help: "Total requests rejected for an invalid authorization credential",
	})
	totalMalformedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_malformed_requests",
		Help: "Total requests rejected before authentication for malformed input",
	})
	totalDependencyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_dependency_failures",
		Help: "Total requests failed by the delegation registry or entitlement source",
	})
	totalQuotaRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signer_total_quota_requests",
		Help: "Total quota query requests received",
	})
	secondsSinceLastPartialSignature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signer_seconds_since_last_partial_signature",
		Help: "Seconds since last partial signature (High count may indicate no traffic or signing issues)",
	})
)
