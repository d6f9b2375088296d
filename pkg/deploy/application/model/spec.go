package model

import "fmt"

type ClusterTarget string

const (
	ClusterTargetLocal ClusterTarget = "local"
	ClusterTargetCloud ClusterTarget = "cloud"
)

type ServiceType string

const (
	ServiceTypeNodePort     ServiceType = "NodePort"
	ServiceTypeLoadBalancer ServiceType = "LoadBalancer"
)

func ParseClusterTarget(v string) (ClusterTarget, error) {
	switch ClusterTarget(v) {
	case ClusterTargetLocal, ClusterTargetCloud:
		return ClusterTarget(v), nil
	}
	return "", fmt.Errorf("unknown cluster target %q, expected local or cloud", v)
}

func ParseServiceType(v string) (ServiceType, error) {
	switch ServiceType(v) {
	case ServiceTypeNodePort, ServiceTypeLoadBalancer:
		return ServiceType(v), nil
	}
	return "", fmt.Errorf("unknown service type %q, expected NodePort or LoadBalancer", v)
}

type FunctionSpec struct {
	Name     string
	Artifact string
}

// DeploymentSpec is the validated descriptor for a single deployment.
// Immutable once loaded.
type DeploymentSpec struct {
	AppName       string
	ImageName     string
	ImageTag      string
	RegistryURI   string
	ClusterTarget ClusterTarget
	ClusterName   string
	Replicas      int
	ContainerPort int
	ServiceType   ServiceType
	BuildContext  string
	Dockerfile    string
	Function      *FunctionSpec
}

// ImageRef is the fully qualified reference the image is pushed and deployed as.
func (s DeploymentSpec) ImageRef() string {
	return fmt.Sprintf("%v/%v:%v", s.RegistryURI, s.ImageName, s.ImageTag)
}

// LocalImageRef is the reference the image is built as before tagging for push.
func (s DeploymentSpec) LocalImageRef() string {
	return fmt.Sprintf("%v:%v", s.ImageName, s.ImageTag)
}
