/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

Metrics live on a private Prometheus registry, so tests can build as many
collectors as they like. Besides HTTP traffic the collector tracks preview
rebuilds, session saves, relayed console lines and WebSocket clients.

*Metrics satisfies playground.Observer and relay.Observer directly.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	rel := relay.New(relay.Options{Observer: metrics})
	pg, err := playground.New(ctx, playground.Options{Observer: metrics, ...})

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
