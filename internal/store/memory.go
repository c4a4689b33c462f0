package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"
)

// EventType describes a change observed on the memory store.
type EventType string

const (
	EventAdded    EventType = "Added"
	EventModified EventType = "Modified"
	EventDeleted  EventType = "Deleted"
)

// Event is delivered to watchers for every committed write.
type Event struct {
	Type   EventType
	Object client.Object
}

type objectKey struct {
	gvk       schema.GroupVersionKind
	namespace string
	name      string
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	scheme *runtime.Scheme

	mu       sync.Mutex
	objects  map[objectKey]client.Object
	version  uint64
	watchers map[int]*watcher
	nextID   int
	now      func() time.Time
}

// NewMemory creates an empty memory store. Every object written to it must
// have its kind registered in scheme.
func NewMemory(scheme *runtime.Scheme) *Memory {
	return &Memory{
		scheme:   scheme,
		objects:  make(map[objectKey]client.Object),
		watchers: make(map[int]*watcher),
		now:      time.Now,
	}
}

// Get copies the stored object identified by key into obj.
func (m *Memory) Get(_ context.Context, key client.ObjectKey, obj client.Object) error {
	gvk, err := apiutil.GVKForObject(obj, m.scheme)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.objects[objectKey{gvk: gvk, namespace: key.Namespace, name: key.Name}]
	if !ok {
		return apierrors.NewNotFound(groupResource(gvk), key.Name)
	}
	return copyInto(stored, obj)
}

// Create stores obj and stamps UID, resourceVersion, generation and
// creationTimestamp on both the stored copy and obj. An object whose owners
// are all gone is collected right after it is written.
func (m *Memory) Create(_ context.Context, obj client.Object) error {
	gvk, err := apiutil.GVKForObject(obj, m.scheme)
	if err != nil {
		return err
	}
	if obj.GetName() == "" {
		return apierrors.NewBadRequest("name is required")
	}
	if obj.GetResourceVersion() != "" {
		return apierrors.NewBadRequest("resourceVersion should not be set on objects to be created")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(gvk, obj)
	if _, exists := m.objects[key]; exists {
		return apierrors.NewAlreadyExists(groupResource(gvk), obj.GetName())
	}

	stored, ok := obj.DeepCopyObject().(client.Object)
	if !ok {
		return fmt.Errorf("object %T is not a client.Object", obj)
	}
	stored.GetObjectKind().SetGroupVersionKind(gvk)
	stored.SetUID(types.UID(uuid.NewString()))
	stored.SetResourceVersion(m.nextVersion())
	stored.SetGeneration(1)
	stored.SetCreationTimestamp(metav1.NewTime(m.now().Truncate(time.Second)))

	m.objects[key] = stored
	m.emit(EventAdded, stored)
	if len(stored.GetOwnerReferences()) > 0 {
		m.collectGarbage()
	}
	return copyInto(stored, obj)
}

// Update replaces everything but the status of the stored object. The
// write is rejected with a Conflict when obj's resourceVersion is set and
// stale. An update that changes nothing keeps the resourceVersion.
func (m *Memory) Update(_ context.Context, obj client.Object) error {
	return m.update(obj, false)
}

// UpdateStatus replaces only the status of the stored object.
func (m *Memory) UpdateStatus(_ context.Context, obj client.Object) error {
	return m.update(obj, true)
}

func (m *Memory) update(obj client.Object, statusOnly bool) error {
	gvk, err := apiutil.GVKForObject(obj, m.scheme)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(gvk, obj)
	stored, ok := m.objects[key]
	if !ok {
		return apierrors.NewNotFound(groupResource(gvk), obj.GetName())
	}
	if rv := obj.GetResourceVersion(); rv != "" && rv != stored.GetResourceVersion() {
		return apierrors.NewConflict(groupResource(gvk), obj.GetName(),
			fmt.Errorf("the object has been modified; please apply your changes to the latest version and try again"))
	}

	oldMap, err := runtime.DefaultUnstructuredConverter.ToUnstructured(stored)
	if err != nil {
		return err
	}
	newMap, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return err
	}

	var merged map[string]interface{}
	if statusOnly {
		merged = runtime.DeepCopyJSON(oldMap)
		setOrDelete(merged, "status", newMap)
	} else {
		merged = newMap
		setOrDelete(merged, "status", oldMap)
	}

	next, err := m.fromUnstructured(gvk, merged)
	if err != nil {
		return err
	}
	next.GetObjectKind().SetGroupVersionKind(gvk)
	next.SetUID(stored.GetUID())
	next.SetCreationTimestamp(stored.GetCreationTimestamp())
	next.SetGeneration(stored.GetGeneration())
	next.SetResourceVersion(stored.GetResourceVersion())

	if equality.Semantic.DeepEqual(stored, next) {
		return copyInto(stored, obj)
	}

	if !statusOnly && specChanged(oldMap, merged) {
		next.SetGeneration(stored.GetGeneration() + 1)
	}
	next.SetResourceVersion(m.nextVersion())

	m.objects[key] = next
	m.emit(EventModified, next)
	if len(next.GetOwnerReferences()) > 0 {
		m.collectGarbage()
	}
	return copyInto(next, obj)
}

// Delete removes the object identified by obj and then collects garbage:
// every object whose owners no longer exist is removed as well, and
// references to deleted owners are dropped from objects that still have a
// live owner. A UID on obj acts as a precondition.
func (m *Memory) Delete(_ context.Context, obj client.Object) error {
	gvk, err := apiutil.GVKForObject(obj, m.scheme)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(gvk, obj)
	stored, ok := m.objects[key]
	if !ok {
		return apierrors.NewNotFound(groupResource(gvk), obj.GetName())
	}
	if uid := obj.GetUID(); uid != "" && uid != stored.GetUID() {
		return apierrors.NewConflict(groupResource(gvk), obj.GetName(),
			fmt.Errorf("precondition failed: UID in precondition: %s, UID in object meta: %s", uid, stored.GetUID()))
	}

	delete(m.objects, key)
	m.emit(EventDeleted, stored)
	m.collectGarbage()
	return nil
}

// List returns copies of all stored objects of the given kind, sorted by
// namespace and name.
func (m *Memory) List(gvk schema.GroupVersionKind) []client.Object {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []client.Object
	for key, obj := range m.objects {
		if key.gvk != gvk {
			continue
		}
		out = append(out, obj.DeepCopyObject().(client.Object))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GetNamespace() != out[j].GetNamespace() {
			return out[i].GetNamespace() < out[j].GetNamespace()
		}
		return out[i].GetName() < out[j].GetName()
	})
	return out
}

// Len returns the number of stored objects of every kind.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Watch returns a channel receiving every event committed after the call.
// The channel is closed when ctx is done. Delivery never blocks writers.
func (m *Memory) Watch(ctx context.Context) <-chan Event {
	w := newWatcher()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = w
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
		w.close()
	}()

	go w.run()
	return w.out
}

// collectGarbage must be called with m.mu held.
func (m *Memory) collectGarbage() {
	for {
		live := make(map[types.UID]struct{}, len(m.objects))
		for _, obj := range m.objects {
			live[obj.GetUID()] = struct{}{}
		}

		changed := false
		for key, obj := range m.objects {
			refs := obj.GetOwnerReferences()
			if len(refs) == 0 {
				continue
			}

			kept := refs[:0:0]
			for _, ref := range refs {
				if _, ok := live[ref.UID]; ok {
					kept = append(kept, ref)
				}
			}
			switch {
			case len(kept) == 0:
				delete(m.objects, key)
				m.emit(EventDeleted, obj)
				changed = true
			case len(kept) != len(refs):
				next := obj.DeepCopyObject().(client.Object)
				next.SetOwnerReferences(kept)
				next.SetResourceVersion(m.nextVersion())
				m.objects[key] = next
				m.emit(EventModified, next)
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func (m *Memory) nextVersion() string {
	m.version++
	return strconv.FormatUint(m.version, 10)
}

func (m *Memory) fromUnstructured(gvk schema.GroupVersionKind, u map[string]interface{}) (client.Object, error) {
	obj, err := m.scheme.New(gvk)
	if err != nil {
		return nil, err
	}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u, obj); err != nil {
		return nil, err
	}
	cobj, ok := obj.(client.Object)
	if !ok {
		return nil, fmt.Errorf("object %T is not a client.Object", obj)
	}
	return cobj, nil
}

// emit must be called with m.mu held.
func (m *Memory) emit(t EventType, obj client.Object) {
	for _, w := range m.watchers {
		w.push(Event{Type: t, Object: obj.DeepCopyObject().(client.Object)})
	}
}

func keyFor(gvk schema.GroupVersionKind, obj client.Object) objectKey {
	return objectKey{gvk: gvk, namespace: obj.GetNamespace(), name: obj.GetName()}
}

func groupResource(gvk schema.GroupVersionKind) schema.GroupResource {
	plural, _ := meta.UnsafeGuessKindToResource(gvk)
	return plural.GroupResource()
}

// specChanged reports whether anything outside metadata and status differs.
func specChanged(oldMap, newMap map[string]interface{}) bool {
	strip := func(in map[string]interface{}) map[string]interface{} {
		out := make(map[string]interface{}, len(in))
		for k, v := range in {
			if k == "metadata" || k == "status" || k == "apiVersion" || k == "kind" {
				continue
			}
			out[k] = v
		}
		return out
	}
	return !equality.Semantic.DeepEqual(strip(oldMap), strip(newMap))
}

func setOrDelete(dst map[string]interface{}, field string, src map[string]interface{}) {
	if v, ok := src[field]; ok {
		dst[field] = runtime.DeepCopyJSONValue(v)
		return
	}
	delete(dst, field)
}

// copyInto overwrites dst with a deep copy of src. Both must be pointers to
// the same struct type.
func copyInto(src, dst client.Object) error {
	srcVal := reflect.ValueOf(src.DeepCopyObject())
	dstVal := reflect.ValueOf(dst)
	if srcVal.Type() != dstVal.Type() {
		return fmt.Errorf("cannot copy %T into %T", src, dst)
	}
	dstVal.Elem().Set(srcVal.Elem())
	return nil
}

// watcher buffers events so the store never blocks on a slow consumer.
type watcher struct {
	mu      sync.Mutex
	pending []Event
	closed  bool
	signal  chan struct{}
	out     chan Event
}

func newWatcher() *watcher {
	return &watcher{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
	}
}

func (w *watcher) push(ev Event) {
	w.mu.Lock()
	if !w.closed {
		w.pending = append(w.pending, ev)
	}
	w.mu.Unlock()
	w.notify()
}

func (w *watcher) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.notify()
}

func (w *watcher) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) run() {
	defer close(w.out)
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		if len(w.pending) == 0 {
			w.mu.Unlock()
			<-w.signal
			continue
		}
		ev := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()

		if !w.send(ev) {
			return
		}
	}
}

// send blocks until ev is delivered or the watcher is closed.
func (w *watcher) send(ev Event) bool {
	for {
		select {
		case w.out <- ev:
			return true
		case <-w.signal:
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return false
			}
		}
	}
}
