package specfile

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
)

type Function struct {
	Name     string `yaml:"name"`
	Artifact string `yaml:"artifact"`
}

type Descriptor struct {
	App           string    `yaml:"app,omitempty"`
	Image         string    `yaml:"image"`
	Tag           string    `yaml:"tag,omitempty"`
	Registry      string    `yaml:"registry"`
	Target        string    `yaml:"target"`
	Cluster       string    `yaml:"cluster,omitempty"`
	Replicas      int       `yaml:"replicas"`
	ContainerPort int       `yaml:"containerPort"`
	ServiceType   string    `yaml:"serviceType"`
	BuildContext  string    `yaml:"buildContext,omitempty"`
	Dockerfile    string    `yaml:"dockerfile,omitempty"`
	Function      *Function `yaml:"function,omitempty"`
}

func NewLoader() *Loader {
	return &Loader{}
}

type Loader struct{}

func (l *Loader) Load(path string) (model.DeploymentSpec, error) {
	descriptorBody, err := os.ReadFile(path)
	if err != nil {
		return model.DeploymentSpec{}, model.NewStageError(
			model.FailureValidation,
			errors.Wrapf(err, "failed to read descriptor %v", path),
		)
	}
	var descriptor Descriptor
	err = yaml.Unmarshal(descriptorBody, &descriptor)
	if err != nil {
		return model.DeploymentSpec{}, model.NewStageError(
			model.FailureValidation,
			errors.Wrapf(err, "failed to unmarshal descriptor %v", path),
		)
	}
	return mapDescriptorToSpec(descriptor)
}

func mapDescriptorToSpec(descriptor Descriptor) (model.DeploymentSpec, error) {
	if descriptor.Image == "" {
		return model.DeploymentSpec{}, missingField("image")
	}
	if descriptor.Registry == "" {
		return model.DeploymentSpec{}, missingField("registry")
	}
	if descriptor.Target == "" {
		return model.DeploymentSpec{}, missingField("target")
	}
	target, err := model.ParseClusterTarget(descriptor.Target)
	if err != nil {
		return model.DeploymentSpec{}, invalidField("target", err)
	}
	if descriptor.Replicas <= 0 {
		return model.DeploymentSpec{}, model.NewStageErrorf(
			model.FailureValidation, "field \"replicas\" must be a positive integer, got %v", descriptor.Replicas,
		)
	}
	if descriptor.ContainerPort <= 0 || descriptor.ContainerPort > 65535 {
		return model.DeploymentSpec{}, model.NewStageErrorf(
			model.FailureValidation, "field \"containerPort\" must be a valid port, got %v", descriptor.ContainerPort,
		)
	}
	if descriptor.ServiceType == "" {
		return model.DeploymentSpec{}, missingField("serviceType")
	}
	serviceType, err := model.ParseServiceType(descriptor.ServiceType)
	if err != nil {
		return model.DeploymentSpec{}, invalidField("serviceType", err)
	}
	if target == model.ClusterTargetCloud && descriptor.Cluster == "" {
		return model.DeploymentSpec{}, model.NewStageErrorf(
			model.FailureValidation, "field \"cluster\" is required for the cloud target",
		)
	}
	if descriptor.Function != nil {
		if descriptor.Function.Name == "" {
			return model.DeploymentSpec{}, missingField("function.name")
		}
		if descriptor.Function.Artifact == "" {
			return model.DeploymentSpec{}, missingField("function.artifact")
		}
	}

	spec := model.DeploymentSpec{
		AppName:       withDefault(descriptor.App, descriptor.Image),
		ImageName:     descriptor.Image,
		ImageTag:      withDefault(descriptor.Tag, "latest"),
		RegistryURI:   descriptor.Registry,
		ClusterTarget: target,
		ClusterName:   descriptor.Cluster,
		Replicas:      descriptor.Replicas,
		ContainerPort: descriptor.ContainerPort,
		ServiceType:   serviceType,
		BuildContext:  withDefault(descriptor.BuildContext, "."),
		Dockerfile:    withDefault(descriptor.Dockerfile, "Dockerfile"),
	}
	if descriptor.Function != nil {
		spec.Function = &model.FunctionSpec{
			Name:     descriptor.Function.Name,
			Artifact: descriptor.Function.Artifact,
		}
	}
	return spec, nil
}

func missingField(field string) error {
	return model.NewStageErrorf(model.FailureValidation, "field %q is required", field)
}

func invalidField(field string, err error) error {
	return model.NewStageError(
		model.FailureValidation,
		errors.Wrapf(err, "field %q is invalid", field),
	)
}

func withDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
