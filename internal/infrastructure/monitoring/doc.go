/*
Package monitoring provides metrics collection for the PTY host and displays.

# Overview

This package implements Prometheus-based metrics collection on a private
registry, tracking HTTP requests, PTY session lifecycle, WebSocket traffic,
and display mount/renderer/health activity.

# Features

- HTTP request metrics (latency, status) keyed by route template
- Session metrics (created, closed by reason, active, output bytes)
- WebSocket connection and message metrics
- Display metrics (mounts, subscriptions, renderer fallbacks, health checks)
- Nil-safe recording: a nil *Metrics records nothing

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.IncSessionsCreated()
	metrics.RecordRendererFallback("gpu", "context_lost")
*/
package monitoring
