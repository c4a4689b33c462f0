package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/operator/ownership"
	"github.com/imamik/appsync/internal/store"
	"github.com/imamik/appsync/internal/util/labels"
)

func setupTestScheme(t *testing.T) *runtime.Scheme {
	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))
	require.NoError(t, appsv1.AddToScheme(scheme))
	require.NoError(t, appsyncv1alpha1.AddToScheme(scheme))
	return scheme
}

// countingStore counts writes so tests can assert on their absence.
type countingStore struct {
	store.Store

	mu     sync.Mutex
	writes []string
}

func (s *countingStore) record(op string, obj client.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, op+" "+obj.GetName())
}

func (s *countingStore) Create(ctx context.Context, obj client.Object) error {
	s.record("create", obj)
	return s.Store.Create(ctx, obj)
}

func (s *countingStore) Update(ctx context.Context, obj client.Object) error {
	s.record("update", obj)
	return s.Store.Update(ctx, obj)
}

func (s *countingStore) UpdateStatus(ctx context.Context, obj client.Object) error {
	s.record("status", obj)
	return s.Store.UpdateStatus(ctx, obj)
}

func (s *countingStore) Delete(ctx context.Context, obj client.Object) error {
	s.record("delete", obj)
	return s.Store.Delete(ctx, obj)
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

type reconcilerEnv struct {
	memory   *store.Memory
	store    *countingStore
	recorder *record.FakeRecorder
	r        *ManagedAppReconciler
}

func newReconcilerEnv(t *testing.T) *reconcilerEnv {
	scheme := setupTestScheme(t)
	memory := store.NewMemory(scheme)
	st := &countingStore{Store: memory}
	recorder := record.NewFakeRecorder(50)
	return &reconcilerEnv{
		memory:   memory,
		store:    st,
		recorder: recorder,
		r:        NewManagedAppReconciler(st, scheme, recorder, WithMetrics(false)),
	}
}

func (e *reconcilerEnv) createApp(t *testing.T, name string, mutate ...func(*appsyncv1alpha1.ManagedApp)) *appsyncv1alpha1.ManagedApp {
	app := &appsyncv1alpha1.ManagedApp{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "ns"},
		Spec:       appsyncv1alpha1.ManagedAppSpec{Replicas: ptr.To[int32](3)},
	}
	for _, m := range mutate {
		m(app)
	}
	require.NoError(t, e.memory.Create(context.Background(), app))
	e.store.reset()
	return app
}

func (e *reconcilerEnv) reconcile(t *testing.T, name string) (ctrl.Result, error) {
	return e.r.Reconcile(context.Background(), requestFor("ns", name))
}

func (e *reconcilerEnv) getApp(t *testing.T, name string) *appsyncv1alpha1.ManagedApp {
	app := &appsyncv1alpha1.ManagedApp{}
	require.NoError(t, e.memory.Get(context.Background(), types.NamespacedName{Namespace: "ns", Name: name}, app))
	return app
}

func (e *reconcilerEnv) getDeployment(t *testing.T, name string) *appsv1.Deployment {
	dep := &appsv1.Deployment{}
	require.NoError(t, e.memory.Get(context.Background(), types.NamespacedName{Namespace: "ns", Name: name}, dep))
	return dep
}

func requestFor(namespace, name string) ctrl.Request {
	return ctrl.Request{NamespacedName: types.NamespacedName{Namespace: namespace, Name: name}}
}

func objectMeta(namespace, name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Namespace: namespace, Name: name}
}

func drainEvents(recorder *record.FakeRecorder) []string {
	var events []string
	for {
		select {
		case ev := <-recorder.Events:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func hasEvent(events []string, reason string) bool {
	for _, ev := range events {
		if strings.Contains(ev, " "+reason+" ") {
			return true
		}
	}
	return false
}

func TestNewManagedAppReconciler(t *testing.T) {
	scheme := setupTestScheme(t)
	st := store.NewMemory(scheme)
	recorder := record.NewFakeRecorder(10)

	t.Run("with default options", func(t *testing.T) {
		r := NewManagedAppReconciler(st, scheme, recorder)

		assert.Equal(t, st, r.Store)
		assert.Equal(t, scheme, r.Scheme)
		assert.Equal(t, recorder, r.Recorder)
		assert.True(t, r.enableMetrics)
		assert.Equal(t, 1, r.maxConcurrentReconciles)
		assert.Nil(t, r.rateLimiter)
	})

	t.Run("with custom options", func(t *testing.T) {
		r := NewManagedAppReconciler(st, scheme, recorder,
			WithMetrics(false),
			WithMaxConcurrentReconciles(4),
		)

		assert.False(t, r.enableMetrics)
		assert.Equal(t, 4, r.maxConcurrentReconciles)
	})
}

func TestManagedAppReconciler_Reconcile(t *testing.T) {
	t.Run("missing app is a no-op", func(t *testing.T) {
		env := newReconcilerEnv(t)

		result, err := env.reconcile(t, "ghost")

		require.NoError(t, err)
		assert.Equal(t, ctrl.Result{}, result)
		assert.Empty(t, env.store.writes)
		assert.Empty(t, drainEvents(env.recorder))
	})

	t.Run("creates an owned deployment and cascades on delete", func(t *testing.T) {
		env := newReconcilerEnv(t)
		app := env.createApp(t, "app")

		_, err := env.reconcile(t, "app")
		require.NoError(t, err)

		dep := env.getDeployment(t, "app-app")
		assert.Equal(t, int32(3), *dep.Spec.Replicas)
		assert.Equal(t, "app", dep.Labels[labels.KeyInstance])

		ref := metav1.GetControllerOf(dep)
		require.NotNil(t, ref)
		assert.Equal(t, "ManagedApp", ref.Kind)
		assert.Equal(t, "app", ref.Name)
		assert.Equal(t, app.UID, ref.UID)

		events := drainEvents(env.recorder)
		assert.True(t, hasEvent(events, EventReasonDependentCreated))

		require.NoError(t, env.memory.Delete(context.Background(), env.getApp(t, "app")))
		err = env.memory.Get(context.Background(), client.ObjectKeyFromObject(dep), &appsv1.Deployment{})
		assert.True(t, apierrors.IsNotFound(err))

		result, err := env.reconcile(t, "app")
		require.NoError(t, err)
		assert.Equal(t, ctrl.Result{}, result)
	})

	t.Run("second pass writes nothing", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app", func(a *appsyncv1alpha1.ManagedApp) { a.Spec.Port = 8080 })

		_, err := env.reconcile(t, "app")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"create app-app", "create app-svc", "status app"}, env.store.writes)
		drainEvents(env.recorder)

		env.store.reset()
		_, err = env.reconcile(t, "app")
		require.NoError(t, err)
		assert.Empty(t, env.store.writes)
		assert.Empty(t, drainEvents(env.recorder))
	})

	t.Run("spec change updates only managed fields", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app")
		_, err := env.reconcile(t, "app")
		require.NoError(t, err)

		// Another actor adds an annotation and a sidecar.
		dep := env.getDeployment(t, "app-app")
		dep.Annotations = map[string]string{"external.io/note": "keep"}
		dep.Spec.Template.Spec.Containers = append(dep.Spec.Template.Spec.Containers,
			corev1.Container{Name: "sidecar", Image: "proxy:1"})
		require.NoError(t, env.memory.Update(context.Background(), dep))

		app := env.getApp(t, "app")
		app.Spec.Replicas = ptr.To[int32](5)
		app.Spec.Image = "example/app:2"
		require.NoError(t, env.memory.Update(context.Background(), app))
		drainEvents(env.recorder)

		_, err = env.reconcile(t, "app")
		require.NoError(t, err)

		dep = env.getDeployment(t, "app-app")
		assert.Equal(t, int32(5), *dep.Spec.Replicas)
		assert.Equal(t, "keep", dep.Annotations["external.io/note"])
		require.Len(t, dep.Spec.Template.Spec.Containers, 2)
		assert.Equal(t, "example/app:2", dep.Spec.Template.Spec.Containers[0].Image)
		assert.Equal(t, "proxy:1", dep.Spec.Template.Spec.Containers[1].Image)
		assert.True(t, hasEvent(drainEvents(env.recorder), EventReasonDependentUpdated))

		assert.Equal(t, app.Generation, env.getApp(t, "app").Status.ObservedGeneration)
	})

	t.Run("dependent controlled by another owner is a terminal error", func(t *testing.T) {
		env := newReconcilerEnv(t)
		other := env.createApp(t, "other")
		env.createApp(t, "app")

		foreign := &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "app-app", Namespace: "ns"}}
		require.NoError(t, ownership.SetControllerReference(other, foreign, env.r.Scheme))
		foreign.Spec.Replicas = ptr.To[int32](1)
		require.NoError(t, env.memory.Create(context.Background(), foreign))
		before := env.getDeployment(t, "app-app")
		env.store.reset()

		result, err := env.reconcile(t, "app")

		require.Error(t, err)
		assert.True(t, errors.Is(err, reconcile.TerminalError(nil)))
		assert.True(t, ownership.IsAlreadyOwned(err))
		assert.Equal(t, ctrl.Result{}, result)

		after := env.getDeployment(t, "app-app")
		assert.Equal(t, before, after, "foreign dependent is left untouched")
		assert.Equal(t, []string{"status app"}, env.store.writes)

		app := env.getApp(t, "app")
		assert.Equal(t, appsyncv1alpha1.ManagedAppPhaseFailed, app.Status.Phase)
		cond := meta.FindStatusCondition(app.Status.Conditions, appsyncv1alpha1.ConditionDependentsSynced)
		require.NotNil(t, cond)
		assert.Equal(t, metav1.ConditionFalse, cond.Status)
		assert.Equal(t, appsyncv1alpha1.ReasonOwnershipConflict, cond.Reason)

		assert.True(t, hasEvent(drainEvents(env.recorder), EventReasonOwnershipConflict))
	})

	t.Run("pending replicas keep the app progressing", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app")
		_, err := env.reconcile(t, "app")
		require.NoError(t, err)

		app := env.getApp(t, "app")
		assert.Equal(t, appsyncv1alpha1.ManagedAppPhasePending, app.Status.Phase)
		assert.Equal(t, "app-app", app.Status.DeploymentName)
		assert.True(t, meta.IsStatusConditionTrue(app.Status.Conditions, appsyncv1alpha1.ConditionDependentsSynced))
		assert.False(t, meta.IsStatusConditionTrue(app.Status.Conditions, appsyncv1alpha1.ConditionReady))

		dep := env.getDeployment(t, "app-app")
		dep.Status.ObservedGeneration = dep.Generation
		dep.Status.ReadyReplicas = 1
		require.NoError(t, env.memory.UpdateStatus(context.Background(), dep))
		_, err = env.reconcile(t, "app")
		require.NoError(t, err)
		assert.Equal(t, appsyncv1alpha1.ManagedAppPhaseProgressing, env.getApp(t, "app").Status.Phase)

		dep.Status.ReadyReplicas = 3
		require.NoError(t, env.memory.UpdateStatus(context.Background(), dep))
		_, err = env.reconcile(t, "app")
		require.NoError(t, err)

		app = env.getApp(t, "app")
		assert.Equal(t, appsyncv1alpha1.ManagedAppPhaseReady, app.Status.Phase)
		assert.Equal(t, int32(3), app.Status.ReadyReplicas)
		assert.True(t, meta.IsStatusConditionTrue(app.Status.Conditions, appsyncv1alpha1.ConditionReady))
	})

	t.Run("resync period becomes requeue after", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app", func(a *appsyncv1alpha1.ManagedApp) {
			a.Spec.ResyncPeriod = &metav1.Duration{Duration: 30 * time.Second}
		})

		result, err := env.reconcile(t, "app")
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, result.RequeueAfter)
	})

	t.Run("paused app touches no dependent", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app", func(a *appsyncv1alpha1.ManagedApp) { a.Spec.Paused = true })

		_, err := env.reconcile(t, "app")
		require.NoError(t, err)
		assert.Equal(t, []string{"status app"}, env.store.writes)
		assert.Equal(t, appsyncv1alpha1.ManagedAppPhasePaused, env.getApp(t, "app").Status.Phase)
		assert.True(t, hasEvent(drainEvents(env.recorder), EventReasonPaused))

		env.store.reset()
		_, err = env.reconcile(t, "app")
		require.NoError(t, err)
		assert.Empty(t, env.store.writes)
		assert.Empty(t, drainEvents(env.recorder))
	})
}

func TestManagedAppReconciler_Service(t *testing.T) {
	t.Run("port creates a service and removing it prunes", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app", func(a *appsyncv1alpha1.ManagedApp) { a.Spec.Port = 80 })

		_, err := env.reconcile(t, "app")
		require.NoError(t, err)

		svc := &corev1.Service{}
		require.NoError(t, env.memory.Get(context.Background(), types.NamespacedName{Namespace: "ns", Name: "app-svc"}, svc))
		assert.Equal(t, labels.Selector("app"), svc.Spec.Selector)
		assert.Equal(t, "app-svc", env.getApp(t, "app").Status.ServiceName)

		app := env.getApp(t, "app")
		app.Spec.Port = 0
		require.NoError(t, env.memory.Update(context.Background(), app))
		drainEvents(env.recorder)

		_, err = env.reconcile(t, "app")
		require.NoError(t, err)

		err = env.memory.Get(context.Background(), client.ObjectKeyFromObject(svc), &corev1.Service{})
		assert.True(t, apierrors.IsNotFound(err))
		assert.True(t, hasEvent(drainEvents(env.recorder), EventReasonDependentPruned))
		assert.Empty(t, env.getApp(t, "app").Status.ServiceName)
	})

	t.Run("service not controlled by the app is left alone", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app")
		unowned := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "app-svc", Namespace: "ns"}}
		require.NoError(t, env.memory.Create(context.Background(), unowned))

		_, err := env.reconcile(t, "app")
		require.NoError(t, err)

		require.NoError(t, env.memory.Get(context.Background(), client.ObjectKeyFromObject(unowned), &corev1.Service{}))
	})
}

func TestManagedAppReconciler_TransientErrors(t *testing.T) {
	scheme := setupTestScheme(t)
	app := &appsyncv1alpha1.ManagedApp{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "ns", UID: "app-uid", Generation: 1},
	}

	t.Run("dependent read failure is retried", func(t *testing.T) {
		c := fake.NewClientBuilder().
			WithScheme(scheme).
			WithObjects(app.DeepCopy()).
			WithStatusSubresource(&appsyncv1alpha1.ManagedApp{}).
			WithInterceptorFuncs(interceptor.Funcs{
				Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
					if _, ok := obj.(*appsv1.Deployment); ok {
						return apierrors.NewServiceUnavailable("apiserver restarting")
					}
					return c.Get(ctx, key, obj, opts...)
				},
			}).
			Build()
		recorder := record.NewFakeRecorder(10)
		r := NewManagedAppReconciler(store.FromClient(c), scheme, recorder, WithMetrics(false))

		_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: client.ObjectKeyFromObject(app)})

		require.Error(t, err)
		assert.True(t, apierrors.IsServiceUnavailable(err))
		assert.False(t, errors.Is(err, reconcile.TerminalError(nil)))
		assert.True(t, hasEvent(drainEvents(recorder), EventReasonApplyFailed))
	})

	t.Run("owner read failure is returned", func(t *testing.T) {
		c := fake.NewClientBuilder().
			WithScheme(scheme).
			WithInterceptorFuncs(interceptor.Funcs{
				Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
					return apierrors.NewTimeoutError("slow", 1)
				},
			}).
			Build()
		r := NewManagedAppReconciler(store.FromClient(c), scheme, record.NewFakeRecorder(10), WithMetrics(false))

		_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: client.ObjectKeyFromObject(app)})
		require.Error(t, err)
		assert.True(t, apierrors.IsTimeout(err))
	})

	t.Run("works against the API client", func(t *testing.T) {
		c := fake.NewClientBuilder().
			WithScheme(scheme).
			WithObjects(app.DeepCopy()).
			WithStatusSubresource(&appsyncv1alpha1.ManagedApp{}).
			Build()
		r := NewManagedAppReconciler(store.FromClient(c), scheme, record.NewFakeRecorder(10), WithMetrics(false))

		_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: client.ObjectKeyFromObject(app)})
		require.NoError(t, err)

		dep := &appsv1.Deployment{}
		require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: "ns", Name: "app-app"}, dep))
		assert.Equal(t, types.UID("app-uid"), metav1.GetControllerOf(dep).UID)

		updated := &appsyncv1alpha1.ManagedApp{}
		require.NoError(t, c.Get(context.Background(), client.ObjectKeyFromObject(app), updated))
		assert.Equal(t, updated.Generation, updated.Status.ObservedGeneration)
		assert.Equal(t, "app-app", updated.Status.DeploymentName)
	})
}

func TestManagedAppReconciler_PartialFailure(t *testing.T) {
	scheme := setupTestScheme(t)
	app := &appsyncv1alpha1.ManagedApp{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "ns", UID: "app-uid", Generation: 1},
		Spec:       appsyncv1alpha1.ManagedAppSpec{Port: 80},
	}

	failService := true
	c := fake.NewClientBuilder().
		WithScheme(scheme).
		WithObjects(app.DeepCopy()).
		WithStatusSubresource(&appsyncv1alpha1.ManagedApp{}).
		WithInterceptorFuncs(interceptor.Funcs{
			Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
				if _, ok := obj.(*corev1.Service); ok && failService {
					return apierrors.NewServiceUnavailable("apiserver restarting")
				}
				return c.Create(ctx, obj, opts...)
			},
		}).
		Build()
	recorder := record.NewFakeRecorder(10)
	r := NewManagedAppReconciler(store.FromClient(c), scheme, recorder, WithMetrics(false))
	req := ctrl.Request{NamespacedName: client.ObjectKeyFromObject(app)}

	_, err := r.Reconcile(context.Background(), req)

	require.Error(t, err)
	assert.True(t, apierrors.IsServiceUnavailable(err))
	assert.False(t, errors.Is(err, reconcile.TerminalError(nil)), "service failure must be retried")
	assert.True(t, hasEvent(drainEvents(recorder), EventReasonApplyFailed))

	// The Deployment written before the failure is kept.
	dep := &appsv1.Deployment{}
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: "ns", Name: "app-app"}, dep))
	require.NotNil(t, metav1.GetControllerOf(dep))
	assert.Equal(t, types.UID("app-uid"), metav1.GetControllerOf(dep).UID)

	failed := &appsyncv1alpha1.ManagedApp{}
	require.NoError(t, c.Get(context.Background(), req.NamespacedName, failed))
	cond := meta.FindStatusCondition(failed.Status.Conditions, appsyncv1alpha1.ConditionDependentsSynced)
	require.NotNil(t, cond)
	assert.Equal(t, metav1.ConditionFalse, cond.Status)
	assert.Equal(t, appsyncv1alpha1.ReasonApplyFailed, cond.Reason)
	assert.NotEqual(t, appsyncv1alpha1.ManagedAppPhaseFailed, failed.Status.Phase)

	failService = false
	_, err = r.Reconcile(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: "ns", Name: "app-svc"}, &corev1.Service{}))
	recovered := &appsyncv1alpha1.ManagedApp{}
	require.NoError(t, c.Get(context.Background(), req.NamespacedName, recovered))
	assert.True(t, meta.IsStatusConditionTrue(recovered.Status.Conditions, appsyncv1alpha1.ConditionDependentsSynced))
}

func TestManagedAppReconciler_Labels(t *testing.T) {
	t.Run("labels removed from the app are removed from dependents", func(t *testing.T) {
		env := newReconcilerEnv(t)
		env.createApp(t, "app", func(a *appsyncv1alpha1.ManagedApp) {
			a.Spec.Port = 80
			a.Spec.Labels = map[string]string{"team": "a"}
		})
		_, err := env.reconcile(t, "app")
		require.NoError(t, err)

		dep := env.getDeployment(t, "app-app")
		assert.Equal(t, "a", dep.Labels["team"])
		assert.Equal(t, "a", dep.Spec.Template.Labels["team"])

		// Labels from other actors survive.
		dep.Labels["added-by"] = "someone-else"
		require.NoError(t, env.memory.Update(context.Background(), dep))

		app := env.getApp(t, "app")
		app.Spec.Labels = nil
		require.NoError(t, env.memory.Update(context.Background(), app))

		_, err = env.reconcile(t, "app")
		require.NoError(t, err)

		dep = env.getDeployment(t, "app-app")
		assert.NotContains(t, dep.Labels, "team")
		assert.NotContains(t, dep.Spec.Template.Labels, "team")
		assert.Equal(t, "someone-else", dep.Labels["added-by"])
		assert.Equal(t, labels.ManagedByAppsync, dep.Labels[labels.KeyManagedBy])

		svc := &corev1.Service{}
		require.NoError(t, env.memory.Get(context.Background(), types.NamespacedName{Namespace: "ns", Name: "app-svc"}, svc))
		assert.NotContains(t, svc.Labels, "team")

		env.store.reset()
		_, err = env.reconcile(t, "app")
		require.NoError(t, err)
		assert.Empty(t, env.store.writes)
	})
}

func TestManagedAppReconciler_ConflictRecovery(t *testing.T) {
	env := newReconcilerEnv(t)
	other := env.createApp(t, "other")
	env.createApp(t, "app")

	foreign := &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "app-app", Namespace: "ns"}}
	require.NoError(t, ownership.SetControllerReference(other, foreign, env.r.Scheme))
	require.NoError(t, env.memory.Create(context.Background(), foreign))

	_, err := env.reconcile(t, "app")
	require.True(t, errors.Is(err, reconcile.TerminalError(nil)))
	assert.Equal(t, appsyncv1alpha1.ManagedAppPhaseFailed, env.getApp(t, "app").Status.Phase)

	// Removing the foreign object and editing the spec lets the app converge.
	require.NoError(t, env.memory.Delete(context.Background(), env.getDeployment(t, "app-app")))
	app := env.getApp(t, "app")
	app.Spec.Replicas = ptr.To[int32](2)
	require.NoError(t, env.memory.Update(context.Background(), app))

	_, err = env.reconcile(t, "app")
	require.NoError(t, err)

	recovered := env.getApp(t, "app")
	assert.Equal(t, appsyncv1alpha1.ManagedAppPhasePending, recovered.Status.Phase)
	assert.True(t, meta.IsStatusConditionTrue(recovered.Status.Conditions, appsyncv1alpha1.ConditionDependentsSynced))
	assert.Equal(t, "app", metav1.GetControllerOf(env.getDeployment(t, "app-app")).Name)
}
