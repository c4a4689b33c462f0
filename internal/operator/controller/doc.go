// Package controller implements the reconciler for ManagedApp custom
// resources.
//
// Each pass fetches the ManagedApp, renders the desired Deployment and
// Service with the desired package, and converges them one at a time
// through apply.CreateOrUpdate. Dependents carry a controlling owner
// reference, so deleting a ManagedApp is left to the store's garbage
// collector; a ManagedApp that no longer exists is a successful no-op.
//
// Failures are classified for the queue: store errors are returned and
// requeued with backoff, while a dependent controlled by another owner is
// returned as a terminal error and surfaced on the ManagedApp's status.
package controller
