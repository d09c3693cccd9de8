/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the arranger
daemon, tracking HTTP requests, traffic with the arranging app, orchestrator
state and snapshot persistence.

# Features

- HTTP request metrics (latency, throughput)
- App transport metrics (messages, round-trip latency, failures by reason)
- Orchestrator metrics (running state, observed windows, lock wait)
- Snapshot persistence counters per slot
- Event WebSocket connection gauge

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Time an app call
	timer := monitoring.NewTimer(metrics, "setArrangement")
	// ... perform call ...
	timer.Stop("")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
