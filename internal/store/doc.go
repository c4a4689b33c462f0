// Package store defines the object store the controller reads from and
// writes to, and provides two implementations of it.
//
// [FromClient] adapts a controller-runtime client, i.e. a real API server.
// [Memory] is an in-process store that keeps the parts of the API server
// contract the controller depends on: resource versions as the optimistic
// concurrency token, a status subresource, metadata.generation bumps on spec
// changes, owner reference based cascading deletion and a watch feed.
//
// All implementations report failures with the apimachinery error taxonomy,
// so callers classify them with apierrors.IsNotFound, apierrors.IsConflict
// and apierrors.IsAlreadyExists regardless of the backend.
package store
