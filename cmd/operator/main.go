// Package main is the entrypoint for the appsync-operator.
package main

import (
	"flag"
	"os"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/config"
	"github.com/imamik/appsync/internal/operator/controller"
	"github.com/imamik/appsync/internal/operator/engine"
	"github.com/imamik/appsync/internal/store"
	"github.com/imamik/appsync/internal/util/logging"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")

	// Version is set at build time
	Version = "dev"
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(appsyncv1alpha1.AddToScheme(scheme))
}

func main() {
	var (
		configPath           string
		metricsAddr          string
		probeAddr            string
		enableLeaderElection bool
	)

	flag.StringVar(&configPath, "config", "", "Path to the operator configuration file.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", "", "The address the metric endpoint binds to. Overrides the config file.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", "", "The address the probe endpoint binds to. Overrides the config file.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager. Overrides the config file.")

	opts := logging.BindFlags(flag.CommandLine, os.Stderr)
	flag.Parse()

	ctrl.SetLogger(logging.New(opts))

	setupLog.Info("starting appsync-operator", "version", Version)

	cfg, err := config.Load(configPath)
	if err != nil {
		setupLog.Error(err, "unable to load configuration")
		os.Exit(1)
	}
	applyFlagOverrides(cfg, metricsAddr, probeAddr, enableLeaderElection)

	mgrOpts := ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress: cfg.MetricsBindAddress,
		},
		HealthProbeBindAddress: cfg.HealthProbeBindAddress,
		LeaderElection:         cfg.LeaderElection.Enabled,
		LeaderElectionID:       cfg.LeaderElection.ID,
		// LeaderElectionReleaseOnCancel defines if the leader should step down voluntarily
		// when the Manager ends. This requires the binary to immediately end when the
		// Manager is stopped, otherwise, this setting is unsafe.
		LeaderElectionReleaseOnCancel: true,
	}
	if cfg.Namespace != "" {
		mgrOpts.Cache = cache.Options{
			DefaultNamespaces: map[string]cache.Config{cfg.Namespace: {}},
		}
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOpts)
	if err != nil {
		setupLog.Error(err, "unable to create manager")
		os.Exit(1)
	}

	if err = controller.NewManagedAppReconciler(
		store.FromClient(mgr.GetClient()),
		mgr.GetScheme(),
		mgr.GetEventRecorderFor("managedapp-controller"),
		controller.WithMaxConcurrentReconciles(cfg.Workers),
		controller.WithRateLimiter(engine.NewRateLimiter(cfg.Backoff)),
	).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "ManagedApp")
		os.Exit(1)
	}

	// Add health checks
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager", "workers", cfg.Workers, "namespace", cfg.Namespace)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// applyFlagOverrides lets explicitly set flags win over the config file.
func applyFlagOverrides(cfg *config.Config, metricsAddr, probeAddr string, leaderElect bool) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "metrics-bind-address":
			cfg.MetricsBindAddress = metricsAddr
		case "health-probe-bind-address":
			cfg.HealthProbeBindAddress = probeAddr
		case "leader-elect":
			cfg.LeaderElection.Enabled = leaderElect
		}
	})
}
