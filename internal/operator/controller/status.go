package controller

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/operator/desired"
)

// observation is the status a reconcile pass arrived at. Conditions are
// merged into the stored ones so transition times survive. An empty phase
// keeps the stored one.
type observation struct {
	phase          appsyncv1alpha1.ManagedAppPhase
	readyReplicas  *int32
	deploymentName *string
	serviceName    *string
	conditions     []metav1.Condition
}

// convergedStatus summarizes a pass that wrote every dependent.
func convergedStatus(state desired.State, dep *appsv1.Deployment) observation {
	ready := dep.Status.ReadyReplicas
	serviceName := ""
	if state.Service != nil {
		serviceName = state.Service.Key.Name
	}

	obs := observation{
		readyReplicas:  &ready,
		deploymentName: &state.Deployment.Key.Name,
		serviceName:    &serviceName,
		conditions: []metav1.Condition{{
			Type:    appsyncv1alpha1.ConditionDependentsSynced,
			Status:  metav1.ConditionTrue,
			Reason:  appsyncv1alpha1.ReasonReconciled,
			Message: "All dependents match the desired state",
		}},
	}

	switch {
	case ready >= state.Deployment.Replicas:
		obs.phase = appsyncv1alpha1.ManagedAppPhaseReady
		obs.conditions = append(obs.conditions, metav1.Condition{
			Type:    appsyncv1alpha1.ConditionReady,
			Status:  metav1.ConditionTrue,
			Reason:  appsyncv1alpha1.ReasonReconciled,
			Message: fmt.Sprintf("%d/%d replicas ready", ready, state.Deployment.Replicas),
		})
	default:
		obs.phase = appsyncv1alpha1.ManagedAppPhaseProgressing
		if dep.Status.ObservedGeneration == 0 {
			// The workload controller has not looked at the Deployment yet
			obs.phase = appsyncv1alpha1.ManagedAppPhasePending
		}
		obs.conditions = append(obs.conditions, metav1.Condition{
			Type:    appsyncv1alpha1.ConditionReady,
			Status:  metav1.ConditionFalse,
			Reason:  appsyncv1alpha1.ReasonReplicasPending,
			Message: fmt.Sprintf("%d/%d replicas ready", ready, state.Deployment.Replicas),
		})
	}
	return obs
}

// failedStatus marks the app as stuck on a failure that needs intervention.
func failedStatus(reason, message string) observation {
	return observation{
		phase: appsyncv1alpha1.ManagedAppPhaseFailed,
		conditions: []metav1.Condition{
			{
				Type:    appsyncv1alpha1.ConditionDependentsSynced,
				Status:  metav1.ConditionFalse,
				Reason:  reason,
				Message: message,
			},
			{
				Type:    appsyncv1alpha1.ConditionReady,
				Status:  metav1.ConditionFalse,
				Reason:  reason,
				Message: message,
			},
		},
	}
}

// applyFailedStatus records a retryable dependent failure. The phase is kept
// since the previous pass's dependents are still in place.
func applyFailedStatus(message string) observation {
	return observation{
		conditions: []metav1.Condition{{
			Type:    appsyncv1alpha1.ConditionDependentsSynced,
			Status:  metav1.ConditionFalse,
			Reason:  appsyncv1alpha1.ReasonApplyFailed,
			Message: message,
		}},
	}
}

func pausedStatus() observation {
	return observation{
		phase: appsyncv1alpha1.ManagedAppPhasePaused,
		conditions: []metav1.Condition{{
			Type:    appsyncv1alpha1.ConditionDependentsSynced,
			Status:  metav1.ConditionUnknown,
			Reason:  appsyncv1alpha1.ReasonPaused,
			Message: "Reconciliation is paused",
		}},
	}
}

// updateStatus merges obs into the app's status and writes it only when
// something changed. It reports whether a write happened.
func (r *ManagedAppReconciler) updateStatus(ctx context.Context, app *appsyncv1alpha1.ManagedApp, obs observation) (bool, error) {
	next := app.Status.DeepCopy()
	next.ObservedGeneration = app.Generation
	if obs.phase != "" {
		next.Phase = obs.phase
	}
	if obs.readyReplicas != nil {
		next.ReadyReplicas = *obs.readyReplicas
	}
	if obs.deploymentName != nil {
		next.DeploymentName = *obs.deploymentName
	}
	if obs.serviceName != nil {
		next.ServiceName = *obs.serviceName
	}
	for _, cond := range obs.conditions {
		cond.ObservedGeneration = app.Generation
		meta.SetStatusCondition(&next.Conditions, cond)
	}

	if equality.Semantic.DeepEqual(app.Status, *next) {
		return false, nil
	}

	app.Status = *next
	if err := r.Store.UpdateStatus(ctx, app); err != nil {
		return false, err
	}
	return true, nil
}
