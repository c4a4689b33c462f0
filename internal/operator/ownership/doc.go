// Package ownership stamps dependent objects with a controlling owner
// reference so that deleting the owner cascades through the store's garbage
// collector instead of controller code.
//
// An object has at most one controlling owner reference. [SetControllerReference]
// refuses to replace a controlling reference that names a different owner
// and leaves the object untouched in that case.
package ownership
