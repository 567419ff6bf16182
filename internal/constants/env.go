// Package constants provides centralized definitions of constants used throughout the application
package constants

// Environment variable names
const (
	// EnvAPIBase is the base URL of the CTS
	EnvAPIBase = "CTS_API_BASE"

	// EnvDefaultJobLimit is the page size used when a listing sets no limit
	EnvDefaultJobLimit = "CTS_DEFAULT_JOB_LIMIT"

	// EnvPollingIntervalActive is the status polling cadence for non-terminal jobs
	EnvPollingIntervalActive = "CTS_POLLING_INTERVAL_ACTIVE"

	// EnvPollingIntervalList is the job list polling cadence
	EnvPollingIntervalList = "CTS_POLLING_INTERVAL_LIST"

	// EnvPollJitter is the standard deviation applied to poll ticks
	EnvPollJitter = "CTS_POLL_JITTER"

	// EnvMockMode switches every call to the fixture-backed mock
	EnvMockMode = "CTS_MOCK_MODE"

	// EnvAuthToken is the KBase credential sent as a bearer token
	EnvAuthToken = "KBASE_AUTH_TOKEN"

	// EnvTimeout is the per-request timeout
	EnvTimeout = "CTS_TIMEOUT"

	// EnvRateLimit bounds requests per second, zero for unlimited
	EnvRateLimit = "CTS_RATE_LIMIT"

	// EnvRetryDelay is the pause before the single retry of a failed query
	EnvRetryDelay = "CTS_RETRY_DELAY"

	// EnvLogLevel is the logrus level name
	EnvLogLevel = "LOG_LEVEL"

	// EnvProxyPort is the listen port of the dev proxy
	EnvProxyPort = "PROXY_PORT"

	// EnvMockServerPort is the listen port of the mock CTS server
	EnvMockServerPort = "MOCK_SERVER_PORT"
)
