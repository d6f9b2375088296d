package cluster

import (
	stdcontext "context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/command"
)

const manifestTemplate = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: {{.AppName}}
  labels:
    app: {{.AppName}}
spec:
  replicas: {{.Replicas}}
  selector:
    matchLabels:
      app: {{.AppName}}
  template:
    metadata:
      labels:
        app: {{.AppName}}
    spec:
      containers:
        - name: {{.AppName}}
          image: {{.Image}}
          ports:
            - containerPort: {{.ContainerPort}}
---
apiVersion: v1
kind: Service
metadata:
  name: {{.AppName}}
spec:
  type: {{.ServiceType}}
  selector:
    app: {{.AppName}}
  ports:
    - port: {{.ContainerPort}}
      targetPort: {{.ContainerPort}}
`

type Config struct {
	KubectlBinary    string
	MinikubeBinary   string
	EksctlBinary     string
	PollInterval     time.Duration
	RolloutTimeout   time.Duration
	TransientRetries uint64
}

func NewClusterDriver(
	logger applogger.Logger,
	runner command.Runner,
	config Config,
) service.ClusterDriver {
	return &driver{
		logger: logger,
		runner: runner,
		config: config,
		locks:  make(map[string]*sync.Mutex),
	}
}

type driver struct {
	logger applogger.Logger
	runner command.Runner
	config Config

	locksGuard sync.Mutex
	locks      map[string]*sync.Mutex
}

type manifestVariables struct {
	AppName       string
	Image         string
	Replicas      int
	ContainerPort int
	ServiceType   model.ServiceType
}

func (d *driver) EnsureCluster(ctx stdcontext.Context, spec model.DeploymentSpec) error {
	switch spec.ClusterTarget {
	case model.ClusterTargetLocal:
		return d.ensureLocalCluster(ctx)
	case model.ClusterTargetCloud:
		return d.ensureCloudCluster(ctx, spec.ClusterName)
	default:
		return model.NewStageErrorf(model.FailureValidation, "unknown cluster target %q", spec.ClusterTarget)
	}
}

func (d *driver) ensureLocalCluster(ctx stdcontext.Context) error {
	_, err := d.runner.Execute(ctx, command.Command{
		Executable: d.config.MinikubeBinary,
		Args:       []string{"status"},
	})
	if err == nil {
		return nil
	}
	d.logger.Info("local cluster is not running, starting it...")
	result, err := d.runner.Execute(ctx, command.Command{
		Executable: d.config.MinikubeBinary,
		Args:       []string{"start"},
	})
	if err != nil {
		return stageError(model.FailureRollout, errors.Wrap(err, "failed to start local cluster"), result)
	}
	return nil
}

func (d *driver) ensureCloudCluster(ctx stdcontext.Context, clusterName string) error {
	_, err := d.runner.Execute(ctx, command.Command{
		Executable: d.config.EksctlBinary,
		Args:       []string{"get", "cluster", "--name", clusterName},
	})
	if err == nil {
		return nil
	}
	d.logger.Info(fmt.Sprintf("cluster \"%v\" not found, creating it (this can take a while)...", clusterName))
	result, err := d.runner.Execute(ctx, command.Command{
		Executable: d.config.EksctlBinary,
		Args:       []string{"create", "cluster", "--name", clusterName},
	})
	if err != nil {
		return stageError(model.FailureRollout, errors.Wrapf(err, "failed to create cluster %v", clusterName), result)
	}
	return nil
}

// Apply renders the deployment and service manifests and submits them to the
// control plane. Applies for the same app are serialized so concurrent runs
// can not race updates to one resource.
func (d *driver) Apply(ctx stdcontext.Context, spec model.DeploymentSpec, digest string) error {
	lock := d.lockFor(spec.AppName)
	lock.Lock()
	defer lock.Unlock()

	if spec.ClusterTarget == model.ClusterTargetLocal {
		// local clusters do not share the host image cache
		result, err := d.runner.Execute(ctx, command.Command{
			Executable: d.config.MinikubeBinary,
			Args:       []string{"image", "load", spec.ImageRef()},
		})
		if err != nil {
			return stageError(model.FailureRollout, errors.Wrapf(err, "failed to load image %v into local cluster", spec.ImageRef()), result)
		}
	}

	manifestFile, err := d.renderManifest(spec)
	if err != nil {
		return err
	}
	defer os.Remove(manifestFile)

	operation := func() error {
		result, applyErr := d.runner.Execute(ctx, command.Command{
			Executable: d.config.KubectlBinary,
			Args:       []string{"apply", "-f", manifestFile},
		})
		if applyErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		stageErr := stageError(model.FailureRollout, errors.Wrapf(applyErr, "control plane rejected apply for %v", spec.AppName), result)
		if !transient(result) {
			return backoff.Permanent(stageErr)
		}
		d.logger.Info(fmt.Sprintf("transient apply failure for \"%v\", retrying...", spec.AppName))
		return stageErr
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.config.TransientRetries),
		ctx,
	)
	return backoff.Retry(operation, policy)
}

// WaitRollout polls the deployment status until every replica reports ready
// or the timeout elapses.
func (d *driver) WaitRollout(ctx stdcontext.Context, spec model.DeploymentSpec, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.config.RolloutTimeout
	}
	deadline := time.Now().Add(timeout)
	var pollFailures uint64

	for {
		ready, err := d.readyReplicas(ctx, spec)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && pollFailures < d.config.TransientRetries:
			pollFailures++
			d.logger.Info(fmt.Sprintf("failed to read rollout status of \"%v\", retrying...", spec.AppName))
		case err != nil:
			return err
		case ready >= spec.Replicas:
			return nil
		default:
			d.logger.Info(fmt.Sprintf("rollout of \"%v\": %v/%v replicas ready", spec.AppName, ready, spec.Replicas))
		}

		if time.Now().After(deadline) {
			return model.NewStageErrorf(
				model.FailureRolloutTimeout,
				"rollout of %v did not become ready within %v", spec.AppName, timeout,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.config.PollInterval):
		}
	}
}

// Teardown removes the deployment and service, ignoring resources that were
// never created. Used by best-effort cleanup after a failed run.
func (d *driver) Teardown(ctx stdcontext.Context, spec model.DeploymentSpec) error {
	lock := d.lockFor(spec.AppName)
	lock.Lock()
	defer lock.Unlock()

	result, err := d.runner.Execute(ctx, command.Command{
		Executable: d.config.KubectlBinary,
		Args: []string{
			"delete",
			"deployment/" + spec.AppName,
			"service/" + spec.AppName,
			"--ignore-not-found",
		},
	})
	if err != nil {
		return stageError(model.FailureRollout, errors.Wrapf(err, "failed to tear down resources of %v", spec.AppName), result)
	}
	return nil
}

func (d *driver) readyReplicas(ctx stdcontext.Context, spec model.DeploymentSpec) (int, error) {
	result, err := d.runner.Execute(ctx, command.Command{
		Executable: d.config.KubectlBinary,
		Args:       []string{"get", "deployment", spec.AppName, "-o", "jsonpath={.status.readyReplicas}"},
	})
	if err != nil {
		return 0, stageError(model.FailureRollout, errors.Wrapf(err, "failed to read rollout status of %v", spec.AppName), result)
	}
	status := strings.TrimSpace(result.Stdout)
	if status == "" {
		return 0, nil
	}
	ready, err := strconv.Atoi(status)
	if err != nil {
		return 0, model.NewStageErrorf(model.FailureRollout, "unexpected rollout status %q for %v", status, spec.AppName)
	}
	return ready, nil
}

func (d *driver) renderManifest(spec model.DeploymentSpec) (string, error) {
	manifestFile, err := os.CreateTemp("", spec.AppName+"-*.yaml")
	if err != nil {
		return "", model.NewStageError(model.FailureRollout, errors.Wrap(err, "failed to create temporary manifest file"))
	}
	defer manifestFile.Close()

	manifest := template.Must(template.New("manifest").Parse(manifestTemplate))
	err = manifest.Execute(manifestFile, manifestVariables{
		AppName:       spec.AppName,
		Image:         spec.ImageRef(),
		Replicas:      spec.Replicas,
		ContainerPort: spec.ContainerPort,
		ServiceType:   spec.ServiceType,
	})
	if err != nil {
		os.Remove(manifestFile.Name())
		return "", model.NewStageError(model.FailureRollout, errors.Wrap(err, "failed to render manifest"))
	}
	return manifestFile.Name(), nil
}

func (d *driver) lockFor(appName string) *sync.Mutex {
	d.locksGuard.Lock()
	defer d.locksGuard.Unlock()
	lock, ok := d.locks[appName]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[appName] = lock
	}
	return lock
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"i/o timeout",
	"no such host",
	"TLS handshake timeout",
	"unexpected EOF",
}

func transient(result command.Result) bool {
	for _, marker := range transientMarkers {
		if strings.Contains(result.Stderr, marker) {
			return true
		}
	}
	return false
}

func stageError(kind model.FailureKind, err error, result command.Result) error {
	return &model.StageError{
		Kind:     kind,
		Stderr:   strings.TrimSpace(result.Stderr),
		ExitCode: result.ExitCode,
		Err:      err,
	}
}
