// Package v1alpha1 contains API Schema definitions for the appsync.k8zner.io v1alpha1 API group
// +kubebuilder:object:generate=true
// +groupName=appsync.k8zner.io
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ManagedAppSpec defines the desired state of a ManagedApp.
// The controller only ever reads the spec.
type ManagedAppSpec struct {
	// Replicas is the desired number of application pods
	// +kubebuilder:validation:Minimum=0
	// +kubebuilder:default=1
	// +optional
	Replicas *int32 `json:"replicas,omitempty"`

	// Image is the container image of the application
	// +kubebuilder:default="nginx:stable"
	// +optional
	Image string `json:"image,omitempty"`

	// Port exposes the application through a Service when non-zero
	// +kubebuilder:validation:Minimum=0
	// +kubebuilder:validation:Maximum=65535
	// +optional
	Port int32 `json:"port,omitempty"`

	// Env is rendered into the application container, sorted by name
	// +optional
	Env map[string]string `json:"env,omitempty"`

	// Labels are stamped on every dependent object in addition to the standard labels
	// +optional
	Labels map[string]string `json:"labels,omitempty"`

	// ResyncPeriod requests a periodic re-check even when nothing changed
	// +optional
	ResyncPeriod *metav1.Duration `json:"resyncPeriod,omitempty"`

	// Paused stops the controller from converging dependents
	// +optional
	Paused bool `json:"paused,omitempty"`
}

// ManagedAppPhase represents the current phase of a ManagedApp.
type ManagedAppPhase string

const (
	ManagedAppPhasePending     ManagedAppPhase = "Pending"
	ManagedAppPhaseProgressing ManagedAppPhase = "Progressing"
	ManagedAppPhaseReady       ManagedAppPhase = "Ready"
	ManagedAppPhaseFailed      ManagedAppPhase = "Failed"
	ManagedAppPhasePaused      ManagedAppPhase = "Paused"
)

// ManagedAppStatus defines the observed state of a ManagedApp.
type ManagedAppStatus struct {
	// ObservedGeneration is the spec generation the status was computed from
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Phase is the summarized state of the application
	// +optional
	Phase ManagedAppPhase `json:"phase,omitempty"`

	// ReadyReplicas is copied from the dependent Deployment
	// +optional
	ReadyReplicas int32 `json:"readyReplicas,omitempty"`

	// DeploymentName is the name of the dependent Deployment
	// +optional
	DeploymentName string `json:"deploymentName,omitempty"`

	// ServiceName is the name of the dependent Service, empty when no port is exposed
	// +optional
	ServiceName string `json:"serviceName,omitempty"`

	// Conditions represent the latest observations of the application
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=mapp
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Ready",type=integer,JSONPath=`.status.readyReplicas`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// ManagedApp is the Schema for the managedapps API.
type ManagedApp struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ManagedAppSpec   `json:"spec,omitempty"`
	Status ManagedAppStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ManagedAppList contains a list of ManagedApp.
type ManagedAppList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ManagedApp `json:"items"`
}

// Condition types for ManagedApp
const (
	// ConditionReady indicates all dependents are converged and available
	ConditionReady = "Ready"
	// ConditionDependentsSynced indicates the last pass wrote every dependent
	ConditionDependentsSynced = "DependentsSynced"
)

// Condition reasons for ManagedApp
const (
	ReasonReconciled        = "Reconciled"
	ReasonReplicasPending   = "ReplicasPending"
	ReasonOwnershipConflict = "OwnershipConflict"
	ReasonApplyFailed       = "ApplyFailed"
	ReasonPaused            = "Paused"
)
