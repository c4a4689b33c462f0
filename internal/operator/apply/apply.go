package apply

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/imamik/appsync/internal/store"
)

// OperationResult describes what CreateOrUpdate did.
type OperationResult string

const (
	// OperationResultNone means the stored object already matched.
	OperationResultNone OperationResult = "unchanged"
	// OperationResultCreated means the object did not exist and was created.
	OperationResultCreated OperationResult = "created"
	// OperationResultUpdated means the stored object was updated.
	OperationResultUpdated OperationResult = "updated"
)

// Created reports whether the object was created.
func (r OperationResult) Created() bool {
	return r == OperationResultCreated
}

// MutateFn edits obj in place toward its desired state.
type MutateFn func() error

var (
	// ErrIdentityChanged is returned when a mutate function changes the
	// name or namespace of the object it was given.
	ErrIdentityChanged = errors.New("mutate function changed object identity")

	// ErrStoreMetadataDiscarded is returned when a mutate function wipes
	// metadata only the store sets, which means it replaced the object
	// instead of editing it.
	ErrStoreMetadataDiscarded = errors.New("mutate function discarded store-owned metadata")
)

// CreateOrUpdate converges obj in the store. obj must carry name and
// namespace; mutate is a closure over obj.
//
// When the object does not exist, mutate runs on obj as given and the
// result is created. Otherwise obj is overwritten with the stored object,
// mutate runs on it, and an update is sent only when the mutation changed
// something. A conflicting update is retried once against a freshly fetched
// object; a second conflict is returned to the caller.
func CreateOrUpdate(ctx context.Context, st store.Store, obj client.Object, mutate MutateFn) (OperationResult, error) {
	key := client.ObjectKeyFromObject(obj)

	if err := st.Get(ctx, key, obj); err != nil {
		if !apierrors.IsNotFound(err) {
			return OperationResultNone, fmt.Errorf("failed to get %s: %w", key, err)
		}
		if err := guardedMutate(mutate, key, obj, nil); err != nil {
			return OperationResultNone, err
		}
		if err := st.Create(ctx, obj); err != nil {
			return OperationResultNone, fmt.Errorf("failed to create %s: %w", key, err)
		}
		return OperationResultCreated, nil
	}

	result, err := mutateAndUpdate(ctx, st, key, obj, mutate)
	if err == nil || !apierrors.IsConflict(err) {
		return result, err
	}

	if err := st.Get(ctx, key, obj); err != nil {
		return OperationResultNone, fmt.Errorf("failed to re-fetch %s after conflict: %w", key, err)
	}
	return mutateAndUpdate(ctx, st, key, obj, mutate)
}

// mutateAndUpdate runs mutate on the fetched obj and writes it back when it
// changed. Store errors are wrapped, so apierrors.IsConflict still matches.
func mutateAndUpdate(ctx context.Context, st store.Store, key client.ObjectKey, obj client.Object, mutate MutateFn) (OperationResult, error) {
	existing, ok := obj.DeepCopyObject().(client.Object)
	if !ok {
		return OperationResultNone, fmt.Errorf("object %T is not a client.Object", obj)
	}
	if err := guardedMutate(mutate, key, obj, existing); err != nil {
		return OperationResultNone, err
	}

	if equality.Semantic.DeepEqual(existing, obj) {
		return OperationResultNone, nil
	}

	if err := st.Update(ctx, obj); err != nil {
		return OperationResultNone, fmt.Errorf("failed to update %s: %w", key, err)
	}
	return OperationResultUpdated, nil
}

// guardedMutate runs mutate and checks it left identity and store-owned
// metadata in place. existing is nil on the create path.
func guardedMutate(mutate MutateFn, key client.ObjectKey, obj, existing client.Object) error {
	if err := mutate(); err != nil {
		return err
	}
	if client.ObjectKeyFromObject(obj) != key {
		return fmt.Errorf("%w: %s became %s", ErrIdentityChanged, key, client.ObjectKeyFromObject(obj))
	}
	if existing == nil {
		return nil
	}
	created, prev := obj.GetCreationTimestamp(), existing.GetCreationTimestamp()
	if obj.GetUID() != existing.GetUID() ||
		obj.GetResourceVersion() != existing.GetResourceVersion() ||
		!created.Equal(&prev) {
		return fmt.Errorf("%w: %s", ErrStoreMetadataDiscarded, key)
	}
	return nil
}
