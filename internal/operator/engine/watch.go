package engine

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/store"
)

var managedAppKind = appsyncv1alpha1.GroupVersion.WithKind("ManagedApp").GroupKind()

// Watch enqueues the requests events map to until ctx is done or events
// is closed.
func (e *Engine) Watch(ctx context.Context, events <-chan store.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, req := range MapEvent(ev) {
				e.Enqueue(req)
			}
		}
	}
}

// MapEvent returns the ManagedApps an event concerns.
//
// A ManagedApp event maps to the app itself, except a modification that
// leaves the spec generation already observed in status, which is the
// reconciler's own status write. Any other object maps to its controlling
// ManagedApp, if it has one.
func MapEvent(ev store.Event) []reconcile.Request {
	obj := ev.Object
	if obj == nil {
		return nil
	}

	if obj.GetObjectKind().GroupVersionKind().GroupKind() == managedAppKind {
		if app, ok := obj.(*appsyncv1alpha1.ManagedApp); ok && ev.Type == store.EventModified &&
			app.Status.ObservedGeneration == app.Generation {
			return nil
		}
		return []reconcile.Request{{NamespacedName: types.NamespacedName{
			Namespace: obj.GetNamespace(),
			Name:      obj.GetName(),
		}}}
	}

	ref := metav1.GetControllerOfNoCopy(obj)
	if ref == nil {
		return nil
	}
	gv, err := schema.ParseGroupVersion(ref.APIVersion)
	if err != nil || gv.WithKind(ref.Kind).GroupKind() != managedAppKind {
		return nil
	}
	return []reconcile.Request{{NamespacedName: types.NamespacedName{
		Namespace: obj.GetNamespace(),
		Name:      ref.Name,
	}}}
}
