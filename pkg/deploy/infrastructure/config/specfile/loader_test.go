package specfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
)

const fullDescriptorYaml = `
app: notebook
image: jupyter-notebook
tag: v1
registry: registry.example.com/team
target: cloud
cluster: demo-cluster
replicas: 3
containerPort: 8888
serviceType: LoadBalancer
buildContext: ./app
dockerfile: docker/Dockerfile
function:
  name: resize-handler
  artifact: ./lambda
`

const minimalDescriptorYaml = `
image: jupyter-notebook
registry: localhost:5000
target: local
replicas: 1
containerPort: 8888
serviceType: NodePort
`

func writeDescriptor(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal("Failed to write descriptor:", err)
	}
	return path
}

func TestLoadFullDescriptor(t *testing.T) {
	spec, err := NewLoader().Load(writeDescriptor(t, fullDescriptorYaml))
	if err != nil {
		t.Fatal("Failed to load descriptor:", err)
	}

	expected := model.DeploymentSpec{
		AppName:       "notebook",
		ImageName:     "jupyter-notebook",
		ImageTag:      "v1",
		RegistryURI:   "registry.example.com/team",
		ClusterTarget: model.ClusterTargetCloud,
		ClusterName:   "demo-cluster",
		Replicas:      3,
		ContainerPort: 8888,
		ServiceType:   model.ServiceTypeLoadBalancer,
		BuildContext:  "./app",
		Dockerfile:    "docker/Dockerfile",
		Function: &model.FunctionSpec{
			Name:     "resize-handler",
			Artifact: "./lambda",
		},
	}
	if diff := cmp.Diff(expected, spec); diff != "" {
		t.Fatalf("Unexpected spec (-want +got):\n%s", diff)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	spec, err := NewLoader().Load(writeDescriptor(t, minimalDescriptorYaml))
	if err != nil {
		t.Fatal("Failed to load descriptor:", err)
	}
	if spec.AppName != "jupyter-notebook" {
		t.Fatalf("Expected app name to default to image name, got %q", spec.AppName)
	}
	if spec.ImageTag != "latest" {
		t.Fatalf("Expected tag to default to latest, got %q", spec.ImageTag)
	}
	if spec.BuildContext != "." || spec.Dockerfile != "Dockerfile" {
		t.Fatalf("Unexpected build defaults: %q %q", spec.BuildContext, spec.Dockerfile)
	}
	if spec.Function != nil {
		t.Fatal("Expected no function block")
	}
}

func TestLoadMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		remove string
		field  string
	}{
		{"image", "image: jupyter-notebook", "image"},
		{"registry", "registry: localhost:5000", "registry"},
		{"target", "target: local", "target"},
		{"replicas", "replicas: 1", "replicas"},
		{"containerPort", "containerPort: 8888", "containerPort"},
		{"serviceType", "serviceType: NodePort", "serviceType"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body := strings.Replace(minimalDescriptorYaml, c.remove, "", 1)
			_, err := NewLoader().Load(writeDescriptor(t, body))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if model.KindOf(err) != model.FailureValidation {
				t.Fatalf("Expected %v, got %v", model.FailureValidation, model.KindOf(err))
			}
			if !strings.Contains(err.Error(), c.field) {
				t.Fatalf("Error %q does not name field %q", err.Error(), c.field)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
		fragment string
	}{
		{"badTarget", "target: local", "target: edge", "target"},
		{"badServiceType", "serviceType: NodePort", "serviceType: ClusterIP", "serviceType"},
		{"zeroReplicas", "replicas: 1", "replicas: 0", "replicas"},
		{"badPort", "containerPort: 8888", "containerPort: 70000", "containerPort"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body := strings.Replace(minimalDescriptorYaml, c.old, c.new, 1)
			_, err := NewLoader().Load(writeDescriptor(t, body))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if model.KindOf(err) != model.FailureValidation {
				t.Fatalf("Expected %v, got %v", model.FailureValidation, model.KindOf(err))
			}
			if !strings.Contains(err.Error(), c.fragment) {
				t.Fatalf("Error %q does not name field %q", err.Error(), c.fragment)
			}
		})
	}
}

func TestLoadRequiresClusterNameForCloud(t *testing.T) {
	body := strings.Replace(minimalDescriptorYaml, "target: local", "target: cloud", 1)
	_, err := NewLoader().Load(writeDescriptor(t, body))
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "cluster") {
		t.Fatalf("Error %q does not name the cluster field", err.Error())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if model.KindOf(err) != model.FailureValidation {
		t.Fatalf("Expected %v, got %v", model.FailureValidation, model.KindOf(err))
	}
}
