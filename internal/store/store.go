package store

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Store is the subset of an API server the reconciler needs.
//
// Update uses obj's resourceVersion as the concurrency token and fails with a
// Conflict error when it is stale. Delete cascades to objects whose owner
// references name the deleted object.
type Store interface {
	Get(ctx context.Context, key client.ObjectKey, obj client.Object) error
	Create(ctx context.Context, obj client.Object) error
	Update(ctx context.Context, obj client.Object) error
	UpdateStatus(ctx context.Context, obj client.Object) error
	Delete(ctx context.Context, obj client.Object) error
}

// clientStore backs a Store with a controller-runtime client.
type clientStore struct {
	client client.Client
}

// FromClient returns a Store that talks to the API server behind c.
func FromClient(c client.Client) Store {
	return &clientStore{client: c}
}

func (s *clientStore) Get(ctx context.Context, key client.ObjectKey, obj client.Object) error {
	return s.client.Get(ctx, key, obj)
}

func (s *clientStore) Create(ctx context.Context, obj client.Object) error {
	return s.client.Create(ctx, obj)
}

func (s *clientStore) Update(ctx context.Context, obj client.Object) error {
	return s.client.Update(ctx, obj)
}

func (s *clientStore) UpdateStatus(ctx context.Context, obj client.Object) error {
	return s.client.Status().Update(ctx, obj)
}

// Delete removes obj with background propagation so the API server's
// garbage collector removes dependents. When obj carries a UID it is used
// as a precondition, so a recreated object with the same name is left alone.
func (s *clientStore) Delete(ctx context.Context, obj client.Object) error {
	opts := []client.DeleteOption{client.PropagationPolicy(metav1.DeletePropagationBackground)}
	if uid := obj.GetUID(); uid != "" {
		opts = append(opts, client.Preconditions{UID: &uid})
	}
	return s.client.Delete(ctx, obj, opts...)
}
