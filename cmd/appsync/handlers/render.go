package handlers

import (
	"fmt"
	"io"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
	"github.com/imamik/appsync/internal/operator/desired"
	"github.com/imamik/appsync/internal/operator/ownership"
)

// Render writes the dependents of every ManagedApp in the manifest as a
// YAML stream.
func Render(manifestPath string, out io.Writer) error {
	apps, err := loadManifests(manifestPath)
	if err != nil {
		return err
	}

	first := true
	for _, app := range apps {
		objs, err := renderDependents(app)
		if err != nil {
			return fmt.Errorf("failed to render %s/%s: %w", app.Namespace, app.Name, err)
		}
		for _, obj := range objs {
			data, err := yaml.Marshal(obj)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", obj.GetName(), err)
			}
			if !first {
				fmt.Fprintln(out, "---")
			}
			first = false
			if _, err := out.Write(data); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderDependents builds the objects the controller would create for app
// in an empty store.
func renderDependents(app *appsyncv1alpha1.ManagedApp) ([]client.Object, error) {
	state := desired.Build(client.ObjectKeyFromObject(app), app.Spec)

	dep := state.Deployment.Object()
	if err := ownership.SetControllerReference(app, dep, appsyncv1alpha1.Scheme); err != nil {
		return nil, err
	}
	state.Deployment.ApplyTo(dep)
	dep.SetGroupVersionKind(appsv1.SchemeGroupVersion.WithKind("Deployment"))
	objs := []client.Object{dep}

	if state.Service != nil {
		svc := state.Service.Object()
		if err := ownership.SetControllerReference(app, svc, appsyncv1alpha1.Scheme); err != nil {
			return nil, err
		}
		state.Service.ApplyTo(svc)
		svc.SetGroupVersionKind(corev1.SchemeGroupVersion.WithKind("Service"))
		objs = append(objs, svc)
	}
	return objs, nil
}
