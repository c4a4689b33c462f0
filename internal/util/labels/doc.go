// Package labels provides consistent labeling for the dependent objects of a
// ManagedApp.
//
// Standard keys follow the app.kubernetes.io recommended labels. The
// selector set is a fixed subset so that user supplied labels can never
// change which pods a Deployment or Service selects.
package labels
