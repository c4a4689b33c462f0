package ownership

import (
	"errors"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
)

// AlreadyOwnedError is returned when the dependent already has a
// controlling owner reference to a different object.
type AlreadyOwnedError struct {
	Object client.Object
	Owner  metav1.OwnerReference
}

func (e *AlreadyOwnedError) Error() string {
	return fmt.Sprintf("object %s/%s is already owned by another %s controller %s",
		e.Object.GetNamespace(), e.Object.GetName(), e.Owner.Kind, e.Owner.Name)
}

// IsAlreadyOwned reports whether err is or wraps an AlreadyOwnedError.
func IsAlreadyOwned(err error) bool {
	var owned *AlreadyOwnedError
	return errors.As(err, &owned)
}

// SetControllerReference records owner as the controlling owner of
// dependent. An existing reference to the same owner is updated in place;
// non-controlling references to other owners are kept.
//
// Only dependent is modified; persisting it is left to the caller.
func SetControllerReference(owner, dependent client.Object, scheme *runtime.Scheme) error {
	gvk, err := apiutil.GVKForObject(owner, scheme)
	if err != nil {
		return fmt.Errorf("failed to resolve owner kind: %w", err)
	}
	if err := validateOwner(owner, dependent); err != nil {
		return err
	}

	ref := metav1.OwnerReference{
		APIVersion:         gvk.GroupVersion().String(),
		Kind:               gvk.Kind,
		Name:               owner.GetName(),
		UID:                owner.GetUID(),
		Controller:         ptr.To(true),
		BlockOwnerDeletion: ptr.To(true),
	}

	if existing := ControllerOf(dependent); existing != nil && !referSameObject(*existing, ref) {
		return &AlreadyOwnedError{Object: dependent, Owner: *existing}
	}

	upsertOwnerRef(ref, dependent)
	return nil
}

// ControllerOf returns a copy of the controlling owner reference of obj, or nil.
func ControllerOf(obj metav1.Object) *metav1.OwnerReference {
	return metav1.GetControllerOfNoCopy(obj).DeepCopy()
}

// IsControlledBy reports whether obj's controlling owner reference names owner.
func IsControlledBy(obj, owner client.Object, scheme *runtime.Scheme) (bool, error) {
	ref := ControllerOf(obj)
	if ref == nil {
		return false, nil
	}
	gvk, err := apiutil.GVKForObject(owner, scheme)
	if err != nil {
		return false, fmt.Errorf("failed to resolve owner kind: %w", err)
	}
	return referSameObject(*ref, metav1.OwnerReference{
		APIVersion: gvk.GroupVersion().String(),
		Kind:       gvk.Kind,
		Name:       owner.GetName(),
		UID:        owner.GetUID(),
	}), nil
}

// upsertOwnerRef replaces the reference to the same object, or appends ref.
func upsertOwnerRef(ref metav1.OwnerReference, obj metav1.Object) {
	refs := obj.GetOwnerReferences()
	for i := range refs {
		if referSameObject(refs[i], ref) {
			refs[i] = ref
			obj.SetOwnerReferences(refs)
			return
		}
	}
	obj.SetOwnerReferences(append(refs, ref))
}

// referSameObject compares group, kind and name, and the UID when both sides
// carry one. The version is ignored so that a served version change does
// not look like a different owner.
func referSameObject(a, b metav1.OwnerReference) bool {
	aGV, err := schema.ParseGroupVersion(a.APIVersion)
	if err != nil {
		return false
	}
	bGV, err := schema.ParseGroupVersion(b.APIVersion)
	if err != nil {
		return false
	}
	if aGV.Group != bGV.Group || a.Kind != b.Kind || a.Name != b.Name {
		return false
	}
	return a.UID == "" || b.UID == "" || a.UID == b.UID
}

// validateOwner rejects owners that the garbage collector could never
// resolve: cluster-scoped dependents of namespaced owners and cross
// namespace references.
func validateOwner(owner, dependent metav1.Object) error {
	ownerNs := owner.GetNamespace()
	if ownerNs == "" {
		return nil
	}
	depNs := dependent.GetNamespace()
	if depNs == "" {
		return fmt.Errorf("cluster-scoped resource must not have a namespace-scoped owner, owner's namespace %s", ownerNs)
	}
	if ownerNs != depNs {
		return fmt.Errorf("cross-namespace owner references are disallowed, owner's namespace %s, obj's namespace %s", ownerNs, depNs)
	}
	return nil
}
