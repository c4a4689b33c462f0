package controller

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/operator/apply"
	"github.com/imamik/appsync/internal/operator/desired"
	"github.com/imamik/appsync/internal/operator/ownership"
)

const operationPruned = "pruned"

// reconcileDeployment converges the workload dependent and returns it as
// last seen in the store.
func (r *ManagedAppReconciler) reconcileDeployment(ctx context.Context, app *appsyncv1alpha1.ManagedApp, shape desired.Deployment) (*appsv1.Deployment, error) {
	dep := shape.Object()
	result, err := apply.CreateOrUpdate(ctx, r.Store, dep, func() error {
		if err := ownership.SetControllerReference(app, dep, r.Scheme); err != nil {
			return err
		}
		shape.ApplyTo(dep)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply deployment %s: %w", shape.Key, err)
	}
	r.observeApply(ctx, app, kindDeployment, dep.GetName(), result)
	return dep, nil
}

// reconcileService converges the network endpoint dependent, or removes
// the one this app created earlier when no port is exposed any more.
func (r *ManagedAppReconciler) reconcileService(ctx context.Context, app *appsyncv1alpha1.ManagedApp, state desired.State) error {
	if state.Service == nil {
		return r.pruneService(ctx, app, state.ServiceKey)
	}

	shape := *state.Service
	svc := shape.Object()
	result, err := apply.CreateOrUpdate(ctx, r.Store, svc, func() error {
		if err := ownership.SetControllerReference(app, svc, r.Scheme); err != nil {
			return err
		}
		shape.ApplyTo(svc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply service %s: %w", shape.Key, err)
	}
	r.observeApply(ctx, app, kindService, svc.GetName(), result)
	return nil
}

func (r *ManagedAppReconciler) pruneService(ctx context.Context, app *appsyncv1alpha1.ManagedApp, key client.ObjectKey) error {
	logger := log.FromContext(ctx)

	svc := &corev1.Service{}
	if err := r.Store.Get(ctx, key, svc); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to get service %s: %w", key, err)
	}

	controlled, err := ownership.IsControlledBy(svc, app, r.Scheme)
	if err != nil {
		return err
	}
	if !controlled {
		logger.V(1).Info("leaving service not controlled by this app", "service", key.Name)
		return nil
	}

	if err := r.Store.Delete(ctx, svc); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete service %s: %w", key, err)
	}

	logger.Info("pruned service", "service", key.Name)
	r.Recorder.Eventf(app, corev1.EventTypeNormal, EventReasonDependentPruned, "Deleted Service %s", key.Name)
	r.recordDependentOperation(kindService, operationPruned)
	return nil
}

func (r *ManagedAppReconciler) observeApply(ctx context.Context, app *appsyncv1alpha1.ManagedApp, kind, name string, result apply.OperationResult) {
	r.recordDependentOperation(kind, string(result))

	switch result {
	case apply.OperationResultCreated:
		log.FromContext(ctx).Info("created dependent", "kind", kind, "name", name)
		r.Recorder.Eventf(app, corev1.EventTypeNormal, EventReasonDependentCreated, "Created %s %s", kind, name)
	case apply.OperationResultUpdated:
		log.FromContext(ctx).Info("updated dependent", "kind", kind, "name", name)
		r.Recorder.Eventf(app, corev1.EventTypeNormal, EventReasonDependentUpdated, "Updated %s %s", kind, name)
	}
}
