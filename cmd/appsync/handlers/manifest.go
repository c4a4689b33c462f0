package handlers

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	appsyncv1alpha1 "github.com/imamik/appsync/api/v1alpha1"
)

// defaultNamespace is used for manifests that do not set one.
const defaultNamespace = "default"

// loadManifests reads every ManagedApp from a multi-document YAML file, or
// from stdin when path is "-".
func loadManifests(path string) ([]*appsyncv1alpha1.ManagedApp, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		// #nosec G304
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		defer f.Close()
		r = f
	}

	apps, err := decodeManifests(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return apps, nil
}

func decodeManifests(r io.Reader) ([]*appsyncv1alpha1.ManagedApp, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(r))
	kind := appsyncv1alpha1.GroupVersion.WithKind("ManagedApp")

	var apps []*appsyncv1alpha1.ManagedApp
	for i := 0; ; i++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}

		app := &appsyncv1alpha1.ManagedApp{}
		if err := yaml.UnmarshalStrict(doc, app); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if app.APIVersion == "" && app.Kind == "" {
			// Comment-only document
			if app.Name == "" {
				continue
			}
			app.SetGroupVersionKind(kind)
		}
		if app.GroupVersionKind() != kind {
			return nil, fmt.Errorf("document %d: expected %s, got %s", i, kind, app.GroupVersionKind())
		}
		if app.Name == "" {
			return nil, fmt.Errorf("document %d: metadata.name is required", i)
		}
		if app.Namespace == "" {
			app.Namespace = defaultNamespace
		}
		apps = append(apps, app)
	}

	if len(apps) == 0 {
		return nil, errors.New("no ManagedApp found")
	}
	return apps, nil
}
