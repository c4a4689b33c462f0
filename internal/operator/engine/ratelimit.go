package engine

import (
	"golang.org/x/time/rate"
	"k8s.io/client-go/util/workqueue"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/imamik/appsync/internal/config"
)

// NewRateLimiter returns the requeue policy for failed reconciles.
//
// It combines two limiters (max of both delays is used):
//   - Per-item exponential backoff from BaseDelay up to MaxDelay.
//   - Overall token bucket of QPS with Burst.
func NewRateLimiter(b config.Backoff) workqueue.TypedRateLimiter[reconcile.Request] {
	return workqueue.NewTypedMaxOfRateLimiter(
		workqueue.NewTypedItemExponentialFailureRateLimiter[reconcile.Request](b.BaseDelay, b.MaxDelay),
		&workqueue.TypedBucketRateLimiter[reconcile.Request]{
			Limiter: rate.NewLimiter(rate.Limit(b.QPS), b.Burst),
		},
	)
}
