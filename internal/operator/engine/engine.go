package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/util/workqueue"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/imamik/appsync/internal/config"
)

// Engine drives a reconciler from a rate-limited work queue.
type Engine struct {
	name       string
	reconciler reconcile.Reconciler
	workers    int
	logger     logr.Logger
	queue      workqueue.TypedRateLimitingInterface[reconcile.Request]

	mu      sync.Mutex
	started bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	workers     int
	rateLimiter workqueue.TypedRateLimiter[reconcile.Request]
	logger      logr.Logger
}

// WithWorkers sets how many requests are reconciled in parallel.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithRateLimiter sets the requeue policy for failed requests.
func WithRateLimiter(rl workqueue.TypedRateLimiter[reconcile.Request]) Option {
	return func(o *options) {
		o.rateLimiter = rl
	}
}

// WithLogger sets the base logger handed to reconciles.
func WithLogger(l logr.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates an Engine that feeds r. The name labels log lines and the
// queue's workqueue metrics.
func New(name string, r reconcile.Reconciler, opts ...Option) *Engine {
	o := &options{
		workers:     config.DefaultWorkers,
		rateLimiter: NewRateLimiter(config.Default().Backoff),
		logger:      log.Log,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}

	return &Engine{
		name:       name,
		reconciler: r,
		workers:    o.workers,
		logger:     o.logger.WithValues("controller", name),
		queue: workqueue.NewTypedRateLimitingQueueWithConfig(o.rateLimiter,
			workqueue.TypedRateLimitingQueueConfig[reconcile.Request]{Name: name}),
	}
}

// Enqueue schedules a reconcile of req.
func (e *Engine) Enqueue(req reconcile.Request) {
	e.queue.Add(req)
}

// Len returns the number of requests waiting to be processed.
func (e *Engine) Len() int {
	return e.queue.Len()
}

// Start runs the workers until ctx is done, then shuts the queue down and
// waits for in-flight reconciles to return. Start may be called once.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine was already started")
	}
	e.started = true
	e.mu.Unlock()

	e.logger.Info("Starting workers", "worker count", e.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			for e.processNextWorkItem(ctx) {
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		e.logger.Info("Shutting down workers")
		e.queue.ShutDown()
		return nil
	})

	return g.Wait()
}

// processNextWorkItem handles one request and reports whether the worker
// should keep going.
func (e *Engine) processNextWorkItem(ctx context.Context) bool {
	req, shutdown := e.queue.Get()
	if shutdown {
		return false
	}
	defer e.queue.Done(req)

	e.reconcileHandler(ctx, req)
	return true
}

func (e *Engine) reconcileHandler(ctx context.Context, req reconcile.Request) {
	logger := e.logger.WithValues(
		"namespace", req.Namespace,
		"name", req.Name,
		"reconcileID", uuid.NewString(),
	)
	ctx = log.IntoContext(ctx, logger)

	result, err := e.reconcile(ctx, req)
	switch {
	case err != nil && errors.Is(err, reconcile.TerminalError(nil)):
		e.queue.Forget(req)
		logger.Error(err, "Reconciler error, not requeueing")
	case err != nil:
		e.queue.AddRateLimited(req)
		logger.Error(err, "Reconciler error")
	case result.RequeueAfter > 0:
		e.queue.Forget(req)
		e.queue.AddAfter(req, result.RequeueAfter)
	default:
		e.queue.Forget(req)
	}
}

// reconcile calls the reconciler, turning a panic into an error.
func (e *Engine) reconcile(ctx context.Context, req reconcile.Request) (result reconcile.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v [recovered]", r)
		}
	}()

	start := time.Now()
	result, err = e.reconciler.Reconcile(ctx, req)
	log.FromContext(ctx).V(1).Info("Reconcile finished", "duration", time.Since(start))
	return result, err
}
