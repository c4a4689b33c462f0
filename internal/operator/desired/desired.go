package desired

import (
	"sort"

	"k8s.io/apimachinery/pkg/types"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/util/labels"
	"github.com/imamik/appsync/internal/util/naming"
)

// Defaults applied to unset spec fields.
const (
	DefaultReplicas int32 = 1
	DefaultImage          = "nginx:stable"
)

// EnvVar is a rendered environment variable.
type EnvVar struct {
	Name  string
	Value string
}

// Deployment is the desired shape of the workload dependent.
type Deployment struct {
	Key       types.NamespacedName
	Labels    map[string]string
	Selector  map[string]string
	Replicas  int32
	Container Container
}

// Container is the desired shape of the application container.
type Container struct {
	Name  string
	Image string
	Env   []EnvVar
	// Port is zero when the app exposes nothing.
	Port int32
}

// Service is the desired shape of the network endpoint dependent.
type Service struct {
	Key      types.NamespacedName
	Labels   map[string]string
	Selector map[string]string
	Port     int32
}

// State is the desired shape of every dependent of one ManagedApp.
type State struct {
	Deployment Deployment
	// Service is nil when the app exposes no port.
	Service *Service
	// ServiceKey names the Service whether or not one is desired, so a
	// stale one can be found.
	ServiceKey types.NamespacedName
}

// Build renders the desired state for the ManagedApp identified by key.
func Build(key types.NamespacedName, spec appsyncv1alpha1.ManagedAppSpec) State {
	replicas := DefaultReplicas
	if spec.Replicas != nil {
		replicas = *spec.Replicas
	}
	image := spec.Image
	if image == "" {
		image = DefaultImage
	}

	state := State{
		Deployment: Deployment{
			Key:      types.NamespacedName{Namespace: key.Namespace, Name: naming.Deployment(key.Name)},
			Labels:   labels.NewLabelBuilder(key.Name).WithComponent(labels.ComponentWorkload).Merge(spec.Labels).Build(),
			Selector: labels.Selector(key.Name),
			Replicas: replicas,
			Container: Container{
				Name:  naming.ContainerName,
				Image: image,
				Env:   sortedEnv(spec.Env),
				Port:  spec.Port,
			},
		},
		ServiceKey: types.NamespacedName{Namespace: key.Namespace, Name: naming.Service(key.Name)},
	}

	if spec.Port > 0 {
		state.Service = &Service{
			Key:      state.ServiceKey,
			Labels:   labels.NewLabelBuilder(key.Name).WithComponent(labels.ComponentEndpoint).Merge(spec.Labels).Build(),
			Selector: labels.Selector(key.Name),
			Port:     spec.Port,
		}
	}

	return state
}

func sortedEnv(env map[string]string) []EnvVar {
	if len(env) == 0 {
		return nil
	}
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]EnvVar, 0, len(names))
	for _, name := range names {
		out = append(out, EnvVar{Name: name, Value: env[name]})
	}
	return out
}
