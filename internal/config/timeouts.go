// Package config provides centralized timeout constants for the application.
//
// Connector webhooks (LINE in particular) expect a fast 200 acknowledgment,
// so event processing runs detached from the request with its own deadline.
package config

import "time"

// HTTP server timeouts
const (
	// HTTPRead is the server read timeout. Connector payloads are small JSON documents.
	HTTPRead = 10 * time.Second

	// HTTPWrite must cover a synchronous REST dispatch plus serialization.
	HTTPWrite = 65 * time.Second

	// HTTPIdle is the keep-alive idle timeout.
	HTTPIdle = 120 * time.Second
)

// Dispatch timeouts
const (
	// DispatchProcessing bounds one inbound event: NLP parse, story handler and persistence.
	DispatchProcessing = 60 * time.Second

	// NLPParse bounds a single classifier call including retries.
	NLPParse = 20 * time.Second

	// TalkRequest bounds an admin "talk" round trip through a REST connector.
	TalkRequest = 15 * time.Second
)

// Health checks
const (
	// ReadinessCheck bounds the database ping in /readyz.
	ReadinessCheck = 3 * time.Second

	// HealthCheck bounds the pluggable NLP health probe.
	HealthCheck = 5 * time.Second

	// ReadinessGracePeriod is how long /readyz waits for installation before reporting ready anyway.
	ReadinessGracePeriod = 2 * time.Minute
)

// Database
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of pooled connections.
	DatabaseConnMaxLifetime = time.Hour

	// SlowQueryThreshold triggers a slow-operation warning in repositories.
	SlowQueryThreshold = 100 * time.Millisecond
)

// Background jobs
const (
	// RateLimiterCleanupInterval is how often idle per-user limiters are dropped.
	RateLimiterCleanupInterval = 5 * time.Minute

	// SnapshotUpload bounds one snapshot compress-and-upload run.
	SnapshotUpload = 5 * time.Minute

	// GracefulShutdown is the default for CONVOBOT_SHUTDOWN_TIMEOUT.
	GracefulShutdown = 30 * time.Second
)
