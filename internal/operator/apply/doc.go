// Package apply implements the create-or-update primitive every dependent
// write goes through.
//
// [CreateOrUpdate] hands the mutate function either a fresh object stamped
// with identity only (create path) or the object currently in the store
// (update path). Mutate functions must edit fields, never replace the
// object: on the update path that object carries status, annotations and
// metadata owned by other parties. A guard compares the identity and store
// owned metadata before and after mutation and refuses to write when a
// mutate function has discarded them.
package apply
