// Package naming provides consistent naming functions for the dependent
// objects of a ManagedApp.
//
// Dependent names follow the pattern {app}-{role} and are derived only from
// the owner's name, so the same ManagedApp always maps to the same objects.
package naming
