// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the kbagent service.
//
// # Description
//
// Metrics cover the conversation manager's hot paths: operation counts,
// response generation latency, context cache effectiveness, and retrieval
// volume. They are exposed on the /metrics endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all kbagent metrics.
const metricsNamespace = "aleutian"

// Subsystem for conversation manager metrics.
const conversationSubsystem = "kbagent"

// ConversationMetrics holds the Prometheus metrics for conversation
// operations.
//
// # Fields
//
//   - OperationsTotal: Counter of manager operations by name and status
//   - GenerationSeconds: Histogram of end-to-end generation latency
//   - ContextCacheLookups: Counter of cache lookups by result (hit, miss)
//   - PassagesRetrieved: Histogram of passages returned per retrieval
type ConversationMetrics struct {
	// OperationsTotal counts manager operations.
	// Labels: operation (create_conversation, add_message, generate, ...),
	// status (success, error)
	OperationsTotal *prometheus.CounterVec

	// GenerationSeconds measures wall-clock latency of GenerateResponse,
	// including retrieval, generation, and both message appends.
	GenerationSeconds prometheus.Histogram

	// ContextCacheLookups counts context cache lookups.
	// Labels: result (hit, miss)
	ContextCacheLookups *prometheus.CounterVec

	// PassagesRetrieved observes how many passages each retrieval returned.
	PassagesRetrieved prometheus.Histogram
}

// DefaultMetrics is the singleton instance used by the service. Nil until
// InitMetrics is called, so tests that never initialize metrics pay nothing.
var DefaultMetrics *ConversationMetrics

// InitMetrics initializes DefaultMetrics with the default registerer.
// Call once at startup; calling twice panics on duplicate registration.
func InitMetrics() {
	DefaultMetrics = &ConversationMetrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: conversationSubsystem,
			Name:      "operations_total",
			Help:      "Conversation manager operations by name and status.",
		}, []string{"operation", "status"}),

		GenerationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: conversationSubsystem,
			Name:      "generation_seconds",
			Help:      "End-to-end response generation latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		ContextCacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: conversationSubsystem,
			Name:      "context_cache_lookups_total",
			Help:      "Context cache lookups by result.",
		}, []string{"result"}),

		PassagesRetrieved: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: conversationSubsystem,
			Name:      "passages_retrieved",
			Help:      "Passages returned per knowledge base retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// RecordOperation increments the operation counter. No-op when metrics are
// not initialized.
func RecordOperation(operation, status string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveGeneration records a generation latency sample in seconds.
func ObserveGeneration(seconds float64) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.GenerationSeconds.Observe(seconds)
}

// RecordCacheLookup records a context cache hit or miss.
func RecordCacheLookup(hit bool) {
	if DefaultMetrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.ContextCacheLookups.WithLabelValues(result).Inc()
}

// ObservePassagesRetrieved records how many passages a retrieval returned.
func ObservePassagesRetrieved(count int) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.PassagesRetrieved.Observe(float64(count))
}
