package dependency

import (
	"context"
	"errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/cluster"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/command"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/config/runtimeconfig"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/config/specfile"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/function"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/image"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/registry"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/runlog"
)

var dependencyContainer = struct{}{}

type Container interface {
	Pipeline() service.Pipeline
}

func NewDependencyContainer(
	logger applogger.Logger,
	config runtimeconfig.Config,
	silentMode bool,
) Container {
	runner := command.NewCommandRunner(logger, silentMode)
	specLoader := specfile.NewLoader()
	imageBuilder := image.NewImageBuilder(logger, runner, config.DockerBinary)
	registryVerifier := registry.NewClient(logger, config.RegistryScheme, config.TransientRetries)
	clusterDriver := cluster.NewClusterDriver(logger, runner, cluster.Config{
		KubectlBinary:    config.KubectlBinary,
		MinikubeBinary:   config.MinikubeBinary,
		EksctlBinary:     config.EksctlBinary,
		PollInterval:     config.PollInterval,
		RolloutTimeout:   config.RolloutTimeout,
		TransientRetries: config.TransientRetries,
	})
	functionDeployer := function.NewDeployer(logger, config.FunctionEndpoint)
	runLoggerFactory := runlog.NewFactory(config.LogDir)
	pipelineService := service.NewPipelineService(
		logger,
		specLoader,
		imageBuilder,
		registryVerifier,
		clusterDriver,
		functionDeployer,
		runLoggerFactory,
		config.VerifyPush,
	)

	return &container{
		pipeline: pipelineService,
	}
}

type container struct {
	pipeline service.Pipeline
}

func (c *container) Pipeline() service.Pipeline {
	return c.pipeline
}

func ContainerFromContext(ctx context.Context) (Container, error) {
	v := ctx.Value(dependencyContainer)
	if c, ok := v.(Container); ok {
		return c, nil
	}
	return nil, errors.New("dependency container not found")
}

func ContainerToContext(ctx context.Context, c Container) context.Context {
	return context.WithValue(ctx, dependencyContainer, c)
}
