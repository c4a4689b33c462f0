package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/config"
	"github.com/imamik/appsync/internal/operator/controller"
	"github.com/imamik/appsync/internal/operator/engine"
	"github.com/imamik/appsync/internal/store"
	"github.com/imamik/appsync/internal/util/logging"
)

// convergePollInterval is the interval between checks while waiting for
// the apps to be observed.
const convergePollInterval = 20 * time.Millisecond

// SimulateOptions configures a simulation run.
type SimulateOptions struct {
	ManifestPath string
	ConfigPath   string
	Delete       bool
	Timeout      time.Duration
	Verbose      bool
}

// Simulate runs the ManagedApp controller against an in-memory store seeded
// from a manifest and writes a summary of the result to out.
func Simulate(ctx context.Context, opts SimulateOptions, out io.Writer) error {
	apps, err := loadManifests(opts.ManifestPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logr.Discard()
	if opts.Verbose {
		logOpts := logging.Options(os.Stderr)
		logger = logging.New(&logOpts)
	}

	result, err := simulate(ctx, apps, cfg, opts, logger)
	if err != nil {
		return err
	}

	_, err = io.WriteString(out, renderSimulation(result))
	return err
}

// simulationResult is what a simulation observed.
type simulationResult struct {
	Apps      []appSummary
	Objects   []objectSummary
	Events    []string
	Deleted   bool
	Remaining []objectSummary
}

type appSummary struct {
	Namespace     string
	Name          string
	Phase         appsyncv1alpha1.ManagedAppPhase
	ReadyReplicas int32
	Message       string
}

type objectSummary struct {
	Kind      string
	Namespace string
	Name      string
	Owner     string
}

// eventLog collects events delivered by the broadcaster.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e *corev1.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("%s %s %s/%s: %s",
		e.Type, e.Reason, e.InvolvedObject.Namespace, e.InvolvedObject.Name, e.Message))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func simulate(ctx context.Context, apps []*appsyncv1alpha1.ManagedApp, cfg *config.Config, opts SimulateOptions, logger logr.Logger) (*simulationResult, error) {
	scheme := appsyncv1alpha1.Scheme
	mem := store.NewMemory(scheme)

	broadcaster := record.NewBroadcaster()
	defer broadcaster.Shutdown()
	events := &eventLog{}
	broadcaster.StartEventWatcher(events.add)
	recorder := broadcaster.NewRecorder(scheme, corev1.EventSource{Component: "appsync-simulate"})

	reconciler := controller.NewManagedAppReconciler(mem, scheme, recorder, controller.WithMetrics(false))
	eng := engine.New("managedapp", reconciler,
		engine.WithWorkers(cfg.Workers),
		engine.WithRateLimiter(engine.NewRateLimiter(cfg.Backoff)),
		engine.WithLogger(logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watch := mem.Watch(runCtx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return eng.Start(gctx) })
	g.Go(func() error {
		eng.Watch(gctx, watch)
		return nil
	})

	for _, app := range apps {
		seed := app.DeepCopy()
		seed.ResourceVersion = ""
		seed.UID = ""
		if err := mem.Create(ctx, seed); err != nil {
			cancel()
			_ = g.Wait()
			return nil, fmt.Errorf("failed to create %s/%s: %w", app.Namespace, app.Name, err)
		}
	}

	waitErr := waitObserved(ctx, mem, apps, opts.Timeout)

	result := &simulationResult{
		Apps:    summarizeApps(ctx, mem, apps),
		Objects: summarizeObjects(mem),
	}

	if waitErr == nil && opts.Delete {
		for _, app := range apps {
			current := &appsyncv1alpha1.ManagedApp{}
			if err := mem.Get(ctx, client.ObjectKeyFromObject(app), current); err != nil {
				continue
			}
			if err := mem.Delete(ctx, current); err != nil {
				waitErr = fmt.Errorf("failed to delete %s/%s: %w", app.Namespace, app.Name, err)
				break
			}
		}
		result.Deleted = true
		result.Remaining = summarizeObjects(mem)
	}

	cancel()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.Events = events.snapshot()

	if waitErr != nil {
		return result, waitErr
	}
	return result, nil
}

// waitObserved polls until every app's status reflects its current spec
// generation.
func waitObserved(ctx context.Context, st store.Store, apps []*appsyncv1alpha1.ManagedApp, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, convergePollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		for _, app := range apps {
			current := &appsyncv1alpha1.ManagedApp{}
			if err := st.Get(ctx, client.ObjectKeyFromObject(app), current); err != nil {
				return false, err
			}
			if current.Status.Phase == "" || current.Status.ObservedGeneration != current.Generation {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("apps were not reconciled within %s: %w", timeout, err)
	}
	return nil
}

func summarizeApps(ctx context.Context, st store.Store, apps []*appsyncv1alpha1.ManagedApp) []appSummary {
	out := make([]appSummary, 0, len(apps))
	for _, app := range apps {
		current := &appsyncv1alpha1.ManagedApp{}
		if err := st.Get(ctx, client.ObjectKeyFromObject(app), current); err != nil {
			continue
		}
		summary := appSummary{
			Namespace:     current.Namespace,
			Name:          current.Name,
			Phase:         current.Status.Phase,
			ReadyReplicas: current.Status.ReadyReplicas,
		}
		if cond := meta.FindStatusCondition(current.Status.Conditions, appsyncv1alpha1.ConditionReady); cond != nil {
			summary.Message = cond.Message
		} else if cond := meta.FindStatusCondition(current.Status.Conditions, appsyncv1alpha1.ConditionDependentsSynced); cond != nil {
			summary.Message = cond.Message
		}
		out = append(out, summary)
	}
	return out
}

func summarizeObjects(mem *store.Memory) []objectSummary {
	kinds := []struct {
		name string
		list []client.Object
	}{
		{"Deployment", mem.List(appsv1.SchemeGroupVersion.WithKind("Deployment"))},
		{"Service", mem.List(corev1.SchemeGroupVersion.WithKind("Service"))},
	}

	var out []objectSummary
	for _, k := range kinds {
		for _, obj := range k.list {
			summary := objectSummary{Kind: k.name, Namespace: obj.GetNamespace(), Name: obj.GetName()}
			if ref := metav1.GetControllerOfNoCopy(obj); ref != nil {
				summary.Owner = ref.Kind + "/" + ref.Name
			}
			out = append(out, summary)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}
