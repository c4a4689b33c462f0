package desired

import (
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"github.com/imamik/appsync/internal/util/labels"
	"github.com/imamik/appsync/internal/util/naming"
)

// The ApplyTo methods edit only the fields the shape manages. The object
// they receive may be the current stored object, so everything else on it
// (status, annotations, fields defaulted by the API server, containers and
// ports added by other actors) is left as it is.

// Object returns a Deployment stamped with identity only.
func (d Deployment) Object() *appsv1.Deployment {
	return &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Namespace: d.Key.Namespace, Name: d.Key.Name}}
}

// ApplyTo converges the managed fields of dep toward the shape.
func (d Deployment) ApplyTo(dep *appsv1.Deployment) {
	previous := managedLabelKeys(dep.Annotations)
	dep.Labels = mergeInto(pruneLabels(dep.Labels, previous, d.Labels), d.Labels)
	dep.Annotations = recordManagedLabels(dep.Annotations, d.Labels)
	dep.Spec.Replicas = ptr.To(d.Replicas)

	// The selector is immutable once created.
	if dep.Spec.Selector == nil {
		dep.Spec.Selector = &metav1.LabelSelector{MatchLabels: mergeInto(nil, d.Selector)}
	}

	// The template shares the Deployment's record; selector keys always stay.
	tmpl := &dep.Spec.Template
	tmpl.Labels = pruneLabels(tmpl.Labels, previous, d.Labels, d.Selector)
	tmpl.Labels = mergeInto(tmpl.Labels, d.Selector)
	tmpl.Labels = mergeInto(tmpl.Labels, d.Labels)

	c := findContainer(&tmpl.Spec, d.Container.Name)
	c.Image = d.Container.Image
	c.Env = envVars(d.Container.Env)
	if d.Container.Port > 0 {
		upsertContainerPort(c, corev1.ContainerPort{
			Name:          naming.PortName,
			ContainerPort: d.Container.Port,
			Protocol:      corev1.ProtocolTCP,
		})
	} else {
		removeContainerPort(c, naming.PortName)
	}
}

// Object returns a Service stamped with identity only.
func (s Service) Object() *corev1.Service {
	return &corev1.Service{ObjectMeta: metav1.ObjectMeta{Namespace: s.Key.Namespace, Name: s.Key.Name}}
}

// ApplyTo converges the managed fields of svc toward the shape.
func (s Service) ApplyTo(svc *corev1.Service) {
	previous := managedLabelKeys(svc.Annotations)
	svc.Labels = mergeInto(pruneLabels(svc.Labels, previous, s.Labels), s.Labels)
	svc.Annotations = recordManagedLabels(svc.Annotations, s.Labels)
	svc.Spec.Selector = mergeInto(nil, s.Selector)

	port := corev1.ServicePort{
		Name:       naming.PortName,
		Port:       s.Port,
		TargetPort: intstr.FromString(naming.PortName),
		Protocol:   corev1.ProtocolTCP,
	}
	for i := range svc.Spec.Ports {
		if svc.Spec.Ports[i].Name == port.Name {
			// NodePort is allocated by the API server.
			port.NodePort = svc.Spec.Ports[i].NodePort
			svc.Spec.Ports[i] = port
			return
		}
	}
	svc.Spec.Ports = append(svc.Spec.Ports, port)
}

func mergeInto(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// managedLabelKeys reads the label keys recorded by a previous pass.
func managedLabelKeys(annotations map[string]string) []string {
	v := annotations[labels.AnnotationManagedLabels]
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func recordManagedLabels(annotations, want map[string]string) map[string]string {
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if annotations == nil {
		annotations = make(map[string]string, 1)
	}
	annotations[labels.AnnotationManagedLabels] = strings.Join(keys, ",")
	return annotations
}

// pruneLabels deletes the previously managed keys that none of keep wants.
func pruneLabels(dst map[string]string, previous []string, keep ...map[string]string) map[string]string {
	for _, k := range previous {
		wanted := false
		for _, m := range keep {
			if _, ok := m[k]; ok {
				wanted = true
				break
			}
		}
		if !wanted {
			delete(dst, k)
		}
	}
	return dst
}

func findContainer(spec *corev1.PodSpec, name string) *corev1.Container {
	for i := range spec.Containers {
		if spec.Containers[i].Name == name {
			return &spec.Containers[i]
		}
	}
	spec.Containers = append(spec.Containers, corev1.Container{Name: name})
	return &spec.Containers[len(spec.Containers)-1]
}

func envVars(env []EnvVar) []corev1.EnvVar {
	if len(env) == 0 {
		return nil
	}
	out := make([]corev1.EnvVar, 0, len(env))
	for _, e := range env {
		out = append(out, corev1.EnvVar{Name: e.Name, Value: e.Value})
	}
	return out
}

func upsertContainerPort(c *corev1.Container, port corev1.ContainerPort) {
	for i := range c.Ports {
		if c.Ports[i].Name == port.Name {
			c.Ports[i] = port
			return
		}
	}
	c.Ports = append(c.Ports, port)
}

func removeContainerPort(c *corev1.Container, name string) {
	kept := c.Ports[:0]
	for _, p := range c.Ports {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	c.Ports = kept
}
