package config

import "time"

// Config is the operator configuration.
type Config struct {
	// Workers is the number of ManagedApps reconciled in parallel.
	Workers int `yaml:"workers"`

	// Namespace restricts the operator to one namespace. Empty means all.
	Namespace string `yaml:"namespace"`

	MetricsBindAddress     string `yaml:"metricsBindAddress"`
	HealthProbeBindAddress string `yaml:"healthProbeBindAddress"`

	LeaderElection LeaderElection `yaml:"leaderElection"`
	Backoff        Backoff        `yaml:"backoff"`
}

// LeaderElection configures leader election between operator replicas.
type LeaderElection struct {
	Enabled bool   `yaml:"enabled"`
	ID      string `yaml:"id"`
}

// Backoff configures how failed reconciles are requeued. The delay for an
// item is the larger of its per-item exponential delay and the delay
// imposed by the overall token bucket.
type Backoff struct {
	BaseDelay time.Duration `yaml:"baseDelay"` // first per-item retry delay
	MaxDelay  time.Duration `yaml:"maxDelay"`  // cap on the per-item delay
	QPS       float64       `yaml:"qps"`       // overall requeue rate
	Burst     int           `yaml:"burst"`     // overall requeue burst
}

// Default values.
const (
	DefaultWorkers                = 2
	DefaultMetricsBindAddress     = ":8080"
	DefaultHealthProbeBindAddress = ":8081"
	DefaultLeaderElectionID       = "appsync-operator.appsync.k8zner.io"
	DefaultBaseDelay              = 5 * time.Millisecond
	DefaultMaxDelay               = 1000 * time.Second
	DefaultQPS                    = 10
	DefaultBurst                  = 100
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Workers:                DefaultWorkers,
		MetricsBindAddress:     DefaultMetricsBindAddress,
		HealthProbeBindAddress: DefaultHealthProbeBindAddress,
		LeaderElection: LeaderElection{
			ID: DefaultLeaderElectionID,
		},
		Backoff: Backoff{
			BaseDelay: DefaultBaseDelay,
			MaxDelay:  DefaultMaxDelay,
			QPS:       DefaultQPS,
			Burst:     DefaultBurst,
		},
	}
}
