package naming

import "fmt"

// Suffixes appended to the ManagedApp name for each dependent kind.
const (
	DeploymentSuffix = "app"
	ServiceSuffix    = "svc"
)

// ContainerName is the name of the application container in the pod template.
const ContainerName = "app"

// PortName names the exposed container and service port.
const PortName = "http"

func Deployment(app string) string {
	return fmt.Sprintf("%s-%s", app, DeploymentSuffix)
}

func Service(app string) string {
	return fmt.Sprintf("%s-%s", app, ServiceSuffix)
}
