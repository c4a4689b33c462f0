package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/config"
	"github.com/imamik/appsync/internal/operator/controller"
	"github.com/imamik/appsync/internal/store"
)

// callCounter is a reconciler whose behaviour is scripted per call.
type callCounter struct {
	mu    sync.Mutex
	calls map[types.NamespacedName]int
	fn    func(call int, req reconcile.Request) (reconcile.Result, error)
}

func newCallCounter(fn func(call int, req reconcile.Request) (reconcile.Result, error)) *callCounter {
	return &callCounter{calls: make(map[types.NamespacedName]int), fn: fn}
}

func (c *callCounter) Reconcile(_ context.Context, req reconcile.Request) (reconcile.Result, error) {
	c.mu.Lock()
	c.calls[req.NamespacedName]++
	call := c.calls[req.NamespacedName]
	c.mu.Unlock()
	return c.fn(call, req)
}

func (c *callCounter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[types.NamespacedName{Namespace: "ns", Name: name}]
}

func request(name string) reconcile.Request {
	return reconcile.Request{NamespacedName: types.NamespacedName{Namespace: "ns", Name: name}}
}

func fastBackoff() Option {
	return WithRateLimiter(NewRateLimiter(config.Backoff{
		BaseDelay: time.Millisecond,
		MaxDelay:  10 * time.Millisecond,
		QPS:       1000,
		Burst:     1000,
	}))
}

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
		if done != nil {
			Eventually(done, 5*time.Second).Should(Receive(BeNil()))
			done = nil
		}
	})

	start := func(e *Engine) {
		done = make(chan error, 1)
		go func() { done <- e.Start(ctx) }()
	}

	It("coalesces a key queued several times", func() {
		r := newCallCounter(func(int, reconcile.Request) (reconcile.Result, error) {
			return reconcile.Result{}, nil
		})
		e := New("test", r, fastBackoff())

		e.Enqueue(request("a"))
		e.Enqueue(request("a"))
		e.Enqueue(request("a"))
		e.Enqueue(request("b"))
		Expect(e.Len()).To(Equal(2))

		start(e)
		Eventually(func() int { return r.count("b") }).Should(Equal(1))
		Consistently(func() int { return r.count("a") }, 200*time.Millisecond).Should(Equal(1))
	})

	It("retries errors with backoff until they succeed", func() {
		r := newCallCounter(func(call int, _ reconcile.Request) (reconcile.Result, error) {
			if call < 3 {
				return reconcile.Result{}, apierrors.NewServiceUnavailable("try again")
			}
			return reconcile.Result{}, nil
		})
		e := New("test", r, fastBackoff())
		e.Enqueue(request("a"))
		start(e)

		Eventually(func() int { return r.count("a") }, 2*time.Second).Should(Equal(3))
		Consistently(func() int { return r.count("a") }, 200*time.Millisecond).Should(Equal(3))
	})

	It("does not requeue terminal errors", func() {
		r := newCallCounter(func(int, reconcile.Request) (reconcile.Result, error) {
			return reconcile.Result{}, reconcile.TerminalError(errors.New("owned by someone else"))
		})
		e := New("test", r, fastBackoff())
		e.Enqueue(request("a"))
		start(e)

		Eventually(func() int { return r.count("a") }).Should(Equal(1))
		Consistently(func() int { return r.count("a") }, 200*time.Millisecond).Should(Equal(1))
	})

	It("honours RequeueAfter", func() {
		r := newCallCounter(func(call int, _ reconcile.Request) (reconcile.Result, error) {
			if call == 1 {
				return reconcile.Result{RequeueAfter: 20 * time.Millisecond}, nil
			}
			return reconcile.Result{}, nil
		})
		e := New("test", r, fastBackoff())
		e.Enqueue(request("a"))
		start(e)

		Eventually(func() int { return r.count("a") }).Should(Equal(2))
	})

	It("recovers a panicking reconciler and retries", func() {
		r := newCallCounter(func(call int, _ reconcile.Request) (reconcile.Result, error) {
			if call == 1 {
				panic("boom")
			}
			return reconcile.Result{}, nil
		})
		e := New("test", r, fastBackoff())
		e.Enqueue(request("a"))
		start(e)

		Eventually(func() int { return r.count("a") }).Should(Equal(2))
	})

	It("hands each reconcile a request-scoped logger", func() {
		loggers := make(chan bool, 1)
		e := New("test", reconcile.Func(func(ctx context.Context, _ reconcile.Request) (reconcile.Result, error) {
			_, err := logr.FromContext(ctx)
			loggers <- err == nil
			return reconcile.Result{}, nil
		}), fastBackoff(), WithLogger(logr.Discard()))
		e.Enqueue(request("a"))
		start(e)

		Eventually(loggers).Should(Receive(BeTrue()))
	})

	It("runs the given number of workers in parallel", func() {
		var (
			mu      sync.Mutex
			running int
			peak    int
		)
		release := make(chan struct{})
		e := New("test", reconcile.Func(func(context.Context, reconcile.Request) (reconcile.Result, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			<-release
			mu.Lock()
			running--
			mu.Unlock()
			return reconcile.Result{}, nil
		}), fastBackoff(), WithWorkers(3))

		for _, name := range []string{"a", "b", "c", "d"} {
			e.Enqueue(request(name))
		}
		start(e)

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return peak
		}).Should(Equal(3))
		close(release)
	})

	It("refuses to start twice", func() {
		e := New("test", reconcile.Func(func(context.Context, reconcile.Request) (reconcile.Result, error) {
			return reconcile.Result{}, nil
		}))
		start(e)
		Eventually(func() bool {
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.started
		}).Should(BeTrue())
		Expect(e.Start(ctx)).To(MatchError(ContainSubstring("already started")))
	})
})

var _ = Describe("MapEvent", func() {
	app := func() *appsyncv1alpha1.ManagedApp {
		a := &appsyncv1alpha1.ManagedApp{ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "ns", Generation: 2}}
		a.SetGroupVersionKind(appsyncv1alpha1.GroupVersion.WithKind("ManagedApp"))
		return a
	}

	It("maps a ManagedApp to itself", func() {
		Expect(MapEvent(store.Event{Type: store.EventAdded, Object: app()})).To(ConsistOf(request("app")))
	})

	It("skips the reconciler's own status writes", func() {
		a := app()
		a.Status.ObservedGeneration = 2
		Expect(MapEvent(store.Event{Type: store.EventModified, Object: a})).To(BeEmpty())
		Expect(MapEvent(store.Event{Type: store.EventDeleted, Object: a})).To(ConsistOf(request("app")))
	})

	It("maps a controlled dependent to its owner", func() {
		dep := &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{
			Name:      "app-app",
			Namespace: "ns",
			OwnerReferences: []metav1.OwnerReference{
				{APIVersion: "v1", Kind: "ConfigMap", Name: "cfg", UID: "cm"},
				{APIVersion: appsyncv1alpha1.GroupVersion.String(), Kind: "ManagedApp", Name: "app", UID: "u", Controller: ptr.To(true)},
			},
		}}
		Expect(MapEvent(store.Event{Type: store.EventModified, Object: dep})).To(ConsistOf(request("app")))
	})

	It("ignores objects without a ManagedApp controller", func() {
		dep := &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{
			Name:      "other",
			Namespace: "ns",
			OwnerReferences: []metav1.OwnerReference{
				{APIVersion: "apps/v1", Kind: "ReplicaSet", Name: "rs", UID: "rs", Controller: ptr.To(true)},
			},
		}}
		Expect(MapEvent(store.Event{Type: store.EventModified, Object: dep})).To(BeEmpty())
		Expect(MapEvent(store.Event{Type: store.EventAdded, Object: &appsv1.Deployment{}})).To(BeEmpty())
	})
})

var _ = Describe("Engine with the ManagedApp reconciler", func() {
	It("converges dependents and leaves deletion to the store", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mem := store.NewMemory(appsyncv1alpha1.Scheme)
		r := controller.NewManagedAppReconciler(mem, appsyncv1alpha1.Scheme, record.NewFakeRecorder(100),
			controller.WithMetrics(false))
		e := New("managedapp", r, fastBackoff(), WithWorkers(2))

		go e.Watch(ctx, mem.Watch(ctx))
		done := make(chan error, 1)
		go func() { done <- e.Start(ctx) }()

		app := &appsyncv1alpha1.ManagedApp{
			ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "ns"},
			Spec:       appsyncv1alpha1.ManagedAppSpec{Replicas: ptr.To[int32](3), Port: 80},
		}
		Expect(mem.Create(ctx, app)).To(Succeed())

		depKey := types.NamespacedName{Namespace: "ns", Name: "app-app"}
		Eventually(func(g Gomega) {
			dep := &appsv1.Deployment{}
			g.Expect(mem.Get(ctx, depKey, dep)).To(Succeed())
			g.Expect(*dep.Spec.Replicas).To(Equal(int32(3)))
			g.Expect(metav1.GetControllerOf(dep).UID).To(Equal(app.UID))
		}, 5*time.Second).Should(Succeed())

		Eventually(func() appsyncv1alpha1.ManagedAppPhase {
			current := &appsyncv1alpha1.ManagedApp{}
			if err := mem.Get(ctx, types.NamespacedName{Namespace: "ns", Name: "app"}, current); err != nil {
				return ""
			}
			return current.Status.Phase
		}, 5*time.Second).Should(Equal(appsyncv1alpha1.ManagedAppPhasePending))

		Expect(mem.Delete(ctx, app)).To(Succeed())
		Expect(mem.Len()).To(BeZero())

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})
})
