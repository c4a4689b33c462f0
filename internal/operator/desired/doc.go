// Package desired computes the desired shape of the objects a ManagedApp
// owns.
//
// [Build] is a pure function of the owner's identity and spec. It performs
// no I/O and keeps no state between calls, and its output is deterministic:
// the same input always renders identical shapes, with maps flattened in
// sorted key order. Reconciliation recomputes the shape from freshly fetched
// state on every pass instead of remembering what it wrote before.
package desired
