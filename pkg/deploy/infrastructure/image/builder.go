package image

import (
	stdcontext "context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/command"
)

func NewImageBuilder(
	logger applogger.Logger,
	runner command.Runner,
	dockerBinary string,
) service.ImageBuilder {
	return &imageBuilder{
		logger:       logger,
		runner:       runner,
		dockerBinary: dockerBinary,
	}
}

type imageBuilder struct {
	logger       applogger.Logger
	runner       command.Runner
	dockerBinary string
}

func (builder imageBuilder) Build(ctx stdcontext.Context, spec model.DeploymentSpec) (string, error) {
	builder.logger.Info(fmt.Sprintf("start build image \"%v\"...", spec.LocalImageRef()))
	start := time.Now()
	defer func() {
		builder.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	}()

	result, err := builder.runner.Execute(ctx, command.Command{
		WorkDir:    spec.BuildContext,
		Executable: builder.dockerBinary,
		Args:       []string{"build", "-f", spec.Dockerfile, "-t", spec.LocalImageRef(), "."},
	})
	if err != nil {
		return "", stageError(model.FailureBuild, errors.Wrapf(err, "failed to build image %v", spec.LocalImageRef()), result)
	}
	return builder.resolveDigest(ctx, spec)
}

func (builder imageBuilder) Push(ctx stdcontext.Context, spec model.DeploymentSpec) error {
	builder.logger.Info(fmt.Sprintf("push image \"%v\"...", spec.ImageRef()))
	start := time.Now()
	defer func() {
		builder.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	}()

	result, err := builder.runner.Execute(ctx, command.Command{
		Executable: builder.dockerBinary,
		Args:       []string{"tag", spec.LocalImageRef(), spec.ImageRef()},
	})
	if err != nil {
		return stageError(model.FailurePush, errors.Wrapf(err, "failed to tag image %v", spec.ImageRef()), result)
	}
	result, err = builder.runner.Execute(ctx, command.Command{
		Executable: builder.dockerBinary,
		Args:       []string{"push", spec.ImageRef()},
	})
	if err != nil {
		return stageError(model.FailurePush, errors.Wrapf(err, "failed to push image %v", spec.ImageRef()), result)
	}
	return nil
}

// resolveDigest asks the build tool for the content-addressed image id, so an
// unchanged build context resolves to the same digest.
func (builder imageBuilder) resolveDigest(ctx stdcontext.Context, spec model.DeploymentSpec) (string, error) {
	result, err := builder.runner.Execute(ctx, command.Command{
		Executable: builder.dockerBinary,
		Args:       []string{"image", "inspect", "--format", "{{.Id}}", spec.LocalImageRef()},
	})
	if err != nil {
		return "", stageError(model.FailureBuild, errors.Wrapf(err, "failed to resolve digest of %v", spec.LocalImageRef()), result)
	}
	digest := strings.TrimSpace(result.Stdout)
	if digest == "" {
		return "", model.NewStageErrorf(model.FailureBuild, "build tool returned empty digest for %v", spec.LocalImageRef())
	}
	return digest, nil
}

func stageError(kind model.FailureKind, err error, result command.Result) error {
	return &model.StageError{
		Kind:     kind,
		Stderr:   strings.TrimSpace(result.Stderr),
		ExitCode: result.ExitCode,
		Err:      err,
	}
}
