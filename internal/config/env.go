// Environment variable keys.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "CONVOBOT_PORT"
	EnvLogLevel        = "CONVOBOT_LOG_LEVEL"
	EnvShutdownTimeout = "CONVOBOT_SHUTDOWN_TIMEOUT"
	EnvDataDir         = "CONVOBOT_DATA_DIR"

	// Bots and connectors
	EnvConnectorsFile   = "CONVOBOT_CONNECTORS_FILE"
	EnvDefaultNamespace = "CONVOBOT_DEFAULT_NAMESPACE"
	EnvDefaultLocale    = "CONVOBOT_DEFAULT_LOCALE"
	EnvRestCompanion    = "CONVOBOT_REST_COMPANION"
	EnvDispatchTimeout  = "CONVOBOT_DISPATCH_TIMEOUT"
	EnvReadinessGrace   = "CONVOBOT_READINESS_GRACE_PERIOD"
	EnvWatchConnectors  = "CONVOBOT_WATCH_CONNECTORS_FILE"

	// LINE connector defaults (used when a declaration omits credentials)
	EnvLineChannelAccessToken = "CONVOBOT_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "CONVOBOT_LINE_CHANNEL_SECRET"

	// Rate limits
	EnvUserRateBurst  = "CONVOBOT_USER_RATE_BURST"
	EnvUserRateRefill = "CONVOBOT_USER_RATE_REFILL"

	// Admin
	EnvAdminToken = "CONVOBOT_ADMIN_TOKEN"

	// NLP classifier
	EnvLLMProviders  = "CONVOBOT_LLM_PROVIDERS"
	EnvGeminiAPIKey  = "CONVOBOT_GEMINI_API_KEY"
	EnvGeminiModel   = "CONVOBOT_GEMINI_MODEL"
	EnvOpenAIAPIKey  = "CONVOBOT_OPENAI_API_KEY"
	EnvOpenAIBaseURL = "CONVOBOT_OPENAI_BASE_URL"
	EnvOpenAIModel   = "CONVOBOT_OPENAI_MODEL"

	// Snapshots
	EnvSnapshotEnabled  = "CONVOBOT_SNAPSHOT_ENABLED"
	EnvSnapshotSchedule = "CONVOBOT_SNAPSHOT_SCHEDULE"
	EnvSnapshotKey      = "CONVOBOT_SNAPSHOT_KEY"
	EnvR2Endpoint       = "CONVOBOT_R2_ENDPOINT"
	EnvR2AccessKeyID    = "CONVOBOT_R2_ACCESS_KEY_ID"
	EnvR2SecretKey      = "CONVOBOT_R2_SECRET_ACCESS_KEY"
	EnvR2Bucket         = "CONVOBOT_R2_BUCKET_NAME"

	// Observability
	EnvMetricsUsername     = "CONVOBOT_METRICS_USERNAME"
	EnvMetricsPassword     = "CONVOBOT_METRICS_PASSWORD"
	EnvBetterStackToken    = "CONVOBOT_BETTERSTACK_SOURCE_TOKEN"
	EnvBetterStackEndpoint = "CONVOBOT_BETTERSTACK_ENDPOINT"
	EnvSentryToken         = "CONVOBOT_SENTRY_TOKEN"
	EnvSentryHost          = "CONVOBOT_SENTRY_HOST"
	EnvSentryEnvironment   = "CONVOBOT_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate    = "CONVOBOT_SENTRY_SAMPLE_RATE"
)
