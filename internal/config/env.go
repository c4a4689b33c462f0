package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables that override file values.
const (
	EnvWorkers          = "APPSYNC_WORKERS"
	EnvNamespace        = "APPSYNC_NAMESPACE"
	EnvMetricsAddr      = "APPSYNC_METRICS_ADDR"
	EnvBackoffBaseDelay = "APPSYNC_BACKOFF_BASE_DELAY"
	EnvBackoffMaxDelay  = "APPSYNC_BACKOFF_MAX_DELAY"
	EnvBackoffQPS       = "APPSYNC_BACKOFF_QPS"
	EnvBackoffBurst     = "APPSYNC_BACKOFF_BURST"
)

// ApplyEnv overrides fields from environment variables. Unset or
// unparsable variables leave the current value alone.
func (c *Config) ApplyEnv() {
	c.Workers = parseInt(EnvWorkers, c.Workers)
	c.Namespace = parseString(EnvNamespace, c.Namespace)
	c.MetricsBindAddress = parseString(EnvMetricsAddr, c.MetricsBindAddress)
	c.Backoff.BaseDelay = parseDuration(EnvBackoffBaseDelay, c.Backoff.BaseDelay)
	c.Backoff.MaxDelay = parseDuration(EnvBackoffMaxDelay, c.Backoff.MaxDelay)
	c.Backoff.QPS = parseFloat(EnvBackoffQPS, c.Backoff.QPS)
	c.Backoff.Burst = parseInt(EnvBackoffBurst, c.Backoff.Burst)
}

func parseString(envVar, defaultVal string) string {
	if val, ok := os.LookupEnv(envVar); ok {
		return val
	}
	return defaultVal
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}

func parseFloat(envVar string, defaultVal float64) float64 {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}

	return f
}
