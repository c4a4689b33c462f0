package labels

// Standard label keys for dependent objects.
const (
	// KeyName identifies the application
	KeyName = "app.kubernetes.io/name"

	// KeyInstance identifies the ManagedApp instance
	KeyInstance = "app.kubernetes.io/instance"

	// KeyComponent identifies the role of the dependent (workload, endpoint)
	KeyComponent = "app.kubernetes.io/component"

	// KeyManagedBy identifies the management system
	KeyManagedBy = "app.kubernetes.io/managed-by"
)

// Component values
const (
	ComponentWorkload = "workload"
	ComponentEndpoint = "endpoint"
)

// ManagedByAppsync is the value of KeyManagedBy on every dependent.
const ManagedByAppsync = "appsync"

// AnnotationManagedLabels lists, comma separated and sorted, the label keys
// appsync last applied to a dependent. Keys dropped from the desired set are
// removed on the next pass; labels added by others are never listed.
const AnnotationManagedLabels = "appsync.k8zner.io/managed-labels"

// LabelBuilder provides a fluent interface for building dependent labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a new label builder with the app name pre-set.
func NewLabelBuilder(app string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyName:      app,
			KeyInstance:  app,
			KeyManagedBy: ManagedByAppsync,
		},
	}
}

// WithComponent adds a component label.
func (lb *LabelBuilder) WithComponent(component string) *LabelBuilder {
	lb.labels[KeyComponent] = component
	return lb
}

// Merge adds all labels from the provided map.
// Standard keys already set by the builder win over extra labels.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		if _, reserved := lb.labels[k]; reserved {
			continue
		}
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// Selector returns the labels used to select the pods of an app.
func Selector(app string) map[string]string {
	return map[string]string{
		KeyName:     app,
		KeyInstance: app,
	}
}
