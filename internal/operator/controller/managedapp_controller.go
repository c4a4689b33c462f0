package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/operator/desired"
	"github.com/imamik/appsync/internal/operator/ownership"
	"github.com/imamik/appsync/internal/store"
)

const (
	kindDeployment = "Deployment"
	kindService    = "Service"
)

// ManagedAppReconciler reconciles a ManagedApp object.
type ManagedAppReconciler struct {
	Store    store.Store
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	enableMetrics           bool
	maxConcurrentReconciles int
	rateLimiter             workqueue.TypedRateLimiter[reconcile.Request]
}

// Option configures a ManagedAppReconciler.
type Option func(*ManagedAppReconciler)

// WithMetrics enables or disables Prometheus metrics.
func WithMetrics(enabled bool) Option {
	return func(r *ManagedAppReconciler) {
		r.enableMetrics = enabled
	}
}

// WithMaxConcurrentReconciles sets the number of parallel workers.
func WithMaxConcurrentReconciles(n int) Option {
	return func(r *ManagedAppReconciler) {
		r.maxConcurrentReconciles = n
	}
}

// WithRateLimiter sets the requeue backoff policy used by SetupWithManager.
func WithRateLimiter(rl workqueue.TypedRateLimiter[reconcile.Request]) Option {
	return func(r *ManagedAppReconciler) {
		r.rateLimiter = rl
	}
}

// NewManagedAppReconciler creates a new ManagedAppReconciler.
func NewManagedAppReconciler(st store.Store, scheme *runtime.Scheme, recorder record.EventRecorder, opts ...Option) *ManagedAppReconciler {
	r := &ManagedAppReconciler{
		Store:                   st,
		Scheme:                  scheme,
		Recorder:                recorder,
		enableMetrics:           true,
		maxConcurrentReconciles: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// +kubebuilder:rbac:groups=appsync.k8zner.io,resources=managedapps,verbs=get;list;watch
// +kubebuilder:rbac:groups=appsync.k8zner.io,resources=managedapps/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// Reconcile handles the reconciliation loop for ManagedApp resources.
func (r *ManagedAppReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	start := time.Now()

	// Fetch the ManagedApp
	app := &appsyncv1alpha1.ManagedApp{}
	if err := r.Store.Get(ctx, req.NamespacedName, app); err != nil {
		if apierrors.IsNotFound(err) {
			// Object deleted; its dependents are collected through their owner references
			logger.V(1).Info("managed app not found, nothing to do")
			r.recordReconcile(req.Namespace, resultNotFound, time.Since(start).Seconds())
			return ctrl.Result{}, nil
		}
		logger.Error(err, "unable to fetch ManagedApp")
		r.recordReconcile(req.Namespace, resultError, time.Since(start).Seconds())
		return ctrl.Result{}, err
	}

	result, err := r.reconcile(ctx, app)

	r.recordReconcile(req.Namespace, outcome(err), time.Since(start).Seconds())
	return result, err
}

// reconcile runs the main reconciliation logic.
func (r *ManagedAppReconciler) reconcile(ctx context.Context, app *appsyncv1alpha1.ManagedApp) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	requeue := resyncPeriod(app)

	// Check if paused
	if app.Spec.Paused {
		logger.Info("managed app is paused, skipping reconciliation")
		changed, err := r.updateStatus(ctx, app, pausedStatus())
		if err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to update status: %w", err)
		}
		if changed {
			r.Recorder.Event(app, corev1.EventTypeNormal, EventReasonPaused, "Reconciliation paused")
		}
		return ctrl.Result{RequeueAfter: requeue}, nil
	}

	state := desired.Build(client.ObjectKeyFromObject(app), app.Spec)

	// Dependents are converged in a fixed order; the first failure ends the pass
	dep, err := r.reconcileDeployment(ctx, app, state.Deployment)
	if err != nil {
		return r.handleApplyError(ctx, app, kindDeployment, err)
	}

	if err := r.reconcileService(ctx, app, state); err != nil {
		return r.handleApplyError(ctx, app, kindService, err)
	}

	if _, err := r.updateStatus(ctx, app, convergedStatus(state, dep)); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to update status: %w", err)
	}

	return ctrl.Result{RequeueAfter: requeue}, nil
}

// handleApplyError classifies a dependent failure. Other errors are
// recorded on DependentsSynced and returned for a rate-limited retry.
//
// Ownership conflicts cannot be fixed by retrying and are returned as
// terminal errors. The app stays Failed until it is reconciled again: events
// of the foreign dependent go to its own controller and status-only updates
// of the app are filtered, so after removing the conflicting object the user
// edits the app's spec (or waits for resyncPeriod) to recover.
func (r *ManagedAppReconciler) handleApplyError(ctx context.Context, app *appsyncv1alpha1.ManagedApp, kind string, err error) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if !ownership.IsAlreadyOwned(err) {
		msg := fmt.Sprintf("Failed to reconcile %s: %v", kind, err)
		r.Recorder.Event(app, corev1.EventTypeWarning, EventReasonApplyFailed, msg)
		if _, statusErr := r.updateStatus(ctx, app, applyFailedStatus(msg)); statusErr != nil {
			logger.Error(statusErr, "failed to record apply failure in status")
		}
		return ctrl.Result{}, err
	}

	logger.Error(err, "dependent is controlled by another owner, manual intervention required", "kind", kind)
	r.Recorder.Eventf(app, corev1.EventTypeWarning, EventReasonOwnershipConflict, "%s: %v", kind, err)
	r.recordOwnershipConflict(kind)

	if _, statusErr := r.updateStatus(ctx, app, failedStatus(appsyncv1alpha1.ReasonOwnershipConflict, err.Error())); statusErr != nil {
		logger.Error(statusErr, "failed to record ownership conflict in status")
	}
	return ctrl.Result{}, reconcile.TerminalError(err)
}

// SetupWithManager sets up the controller with the Manager.
func (r *ManagedAppReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		// Status writes do not bump the generation and must not retrigger us
		For(&appsyncv1alpha1.ManagedApp{}, builder.WithPredicates(predicate.GenerationChangedPredicate{})).
		Owns(&appsv1.Deployment{}).
		Owns(&corev1.Service{}).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: r.maxConcurrentReconciles,
			RateLimiter:             r.rateLimiter,
		}).
		Complete(r)
}

// Helper functions

func resyncPeriod(app *appsyncv1alpha1.ManagedApp) time.Duration {
	if app.Spec.ResyncPeriod == nil || app.Spec.ResyncPeriod.Duration < 0 {
		return 0
	}
	return app.Spec.ResyncPeriod.Duration
}

func outcome(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, reconcile.TerminalError(nil)):
		return resultTerminal
	default:
		return resultError
	}
}
