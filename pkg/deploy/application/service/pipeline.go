package service

import (
	stdcontext "context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
)

const logExcerptLimit = 2048

type SpecLoader interface {
	Load(path string) (model.DeploymentSpec, error)
}

type ImageBuilder interface {
	Build(ctx stdcontext.Context, spec model.DeploymentSpec) (string, error)
	Push(ctx stdcontext.Context, spec model.DeploymentSpec) error
}

type RegistryVerifier interface {
	VerifyPushed(ctx stdcontext.Context, spec model.DeploymentSpec, digest string) error
}

type ClusterDriver interface {
	EnsureCluster(ctx stdcontext.Context, spec model.DeploymentSpec) error
	Apply(ctx stdcontext.Context, spec model.DeploymentSpec, digest string) error
	WaitRollout(ctx stdcontext.Context, spec model.DeploymentSpec, timeout time.Duration) error
	Teardown(ctx stdcontext.Context, spec model.DeploymentSpec) error
}

type FunctionDeployer interface {
	Deploy(ctx stdcontext.Context, function model.FunctionSpec) error
}

type RunLogger interface {
	StageFinished(result model.StageResult)
	RunFinished(run *model.PipelineRun)
	Close()
}

type RunLoggerFactory interface {
	ForRun(id uuid.UUID) (RunLogger, error)
}

type RunOptions struct {
	SpecPath string
	// Target overrides the descriptor's cluster target when set.
	Target model.ClusterTarget
	// RolloutTimeout overrides the configured rollout timeout when positive.
	RolloutTimeout time.Duration
	// FunctionName and FunctionArtifact override the descriptor's function
	// block when both are set.
	FunctionName     string
	FunctionArtifact string
}

type Pipeline interface {
	Run(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error)
	BuildAndPush(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error)
	Apply(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error)
	DeployFunction(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error)
}

func NewPipelineService(
	logger applogger.Logger,
	specLoader SpecLoader,
	imageBuilder ImageBuilder,
	registryVerifier RegistryVerifier,
	clusterDriver ClusterDriver,
	functionDeployer FunctionDeployer,
	runLoggerFactory RunLoggerFactory,
	verifyPush bool,
) Pipeline {
	return &pipeline{
		logger:           logger,
		specLoader:       specLoader,
		imageBuilder:     imageBuilder,
		registryVerifier: registryVerifier,
		clusterDriver:    clusterDriver,
		functionDeployer: functionDeployer,
		runLoggerFactory: runLoggerFactory,
		verifyPush:       verifyPush,
	}
}

type pipeline struct {
	logger           applogger.Logger
	specLoader       SpecLoader
	imageBuilder     ImageBuilder
	registryVerifier RegistryVerifier
	clusterDriver    ClusterDriver
	functionDeployer FunctionDeployer
	runLoggerFactory RunLoggerFactory
	verifyPush       bool
}

type stage struct {
	name string
	// kind classifies failures that carry no stage error of their own
	kind    model.FailureKind
	execute func(ctx stdcontext.Context) (string, error)
}

func (service *pipeline) Run(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error) {
	run, runLog, err := service.validate(options)
	if err != nil {
		return run, err
	}
	defer runLog.Close()

	var digest string
	stages := []stage{
		service.buildStage(run.Spec, &digest),
		service.pushStage(run.Spec),
	}
	if service.verifyPush {
		stages = append(stages, service.verifyPushStage(run.Spec, &digest))
	}
	stages = append(stages,
		service.clusterApplyStage(run.Spec, &digest),
		service.rolloutVerifyStage(run.Spec, options),
	)
	if function, ok := functionOf(run.Spec, options); ok {
		stages = append(stages, service.functionDeployStage(function))
	}
	return service.execute(ctx, run, runLog, stages, true)
}

func (service *pipeline) BuildAndPush(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error) {
	run, runLog, err := service.validate(options)
	if err != nil {
		return run, err
	}
	defer runLog.Close()

	var digest string
	stages := []stage{
		service.buildStage(run.Spec, &digest),
		service.pushStage(run.Spec),
	}
	if service.verifyPush {
		stages = append(stages, service.verifyPushStage(run.Spec, &digest))
	}
	return service.execute(ctx, run, runLog, stages, false)
}

func (service *pipeline) Apply(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error) {
	run, runLog, err := service.validate(options)
	if err != nil {
		return run, err
	}
	defer runLog.Close()

	stages := []stage{
		service.clusterApplyStage(run.Spec, nil),
		service.rolloutVerifyStage(run.Spec, options),
	}
	return service.execute(ctx, run, runLog, stages, true)
}

func (service *pipeline) DeployFunction(ctx stdcontext.Context, options RunOptions) (*model.PipelineRun, error) {
	run, runLog, err := service.validate(options)
	if err != nil {
		return run, err
	}
	defer runLog.Close()

	function, ok := functionOf(run.Spec, options)
	if !ok {
		stageErr := model.NewStageErrorf(model.FailureValidation, "descriptor has no function block and no function flags were given")
		service.failStage(run, runLog, model.StageValidate, time.Now(), "", stageErr)
		runLog.RunFinished(run)
		return run, stageErr
	}
	return service.execute(ctx, run, runLog, []stage{service.functionDeployStage(function)}, false)
}

// validate loads and validates the descriptor as the first pipeline stage.
// The returned run is terminal on error.
func (service *pipeline) validate(options RunOptions) (*model.PipelineRun, RunLogger, error) {
	start := time.Now()
	spec, err := service.specLoader.Load(options.SpecPath)
	if err == nil && options.Target != "" {
		spec.ClusterTarget = options.Target
	}

	run := model.NewPipelineRun(spec)
	runLog := service.runLogFor(run.ID)
	run.Start()

	if err != nil {
		service.failStage(run, runLog, model.StageValidate, start, "", err)
		runLog.RunFinished(run)
		runLog.Close()
		return run, runLog, err
	}
	result := model.StageResult{
		StageName:  model.StageValidate,
		DurationMs: time.Since(start).Milliseconds(),
		LogExcerpt: fmt.Sprintf("descriptor %v valid, app %v", options.SpecPath, spec.AppName),
	}
	run.AppendStage(result)
	runLog.StageFinished(result)
	service.logger.Info(fmt.Sprintf("run %v: descriptor %v valid", run.ID, options.SpecPath))
	return run, runLog, nil
}

func (service *pipeline) execute(
	ctx stdcontext.Context,
	run *model.PipelineRun,
	runLog RunLogger,
	stages []stage,
	cleanupOnFailure bool,
) (*model.PipelineRun, error) {
	for _, s := range stages {
		service.logger.Info(fmt.Sprintf("run %v: stage %v...", run.ID, s.name))
		start := time.Now()
		excerpt, err := s.execute(ctx)
		if err != nil {
			err = classify(ctx, s.kind, err)
			service.failStage(run, runLog, s.name, start, excerpt, err)
			if cleanupOnFailure {
				service.cleanup(run, runLog)
			}
			runLog.RunFinished(run)
			return run, err
		}
		result := model.StageResult{
			StageName:  s.name,
			DurationMs: time.Since(start).Milliseconds(),
			LogExcerpt: truncate(excerpt),
		}
		run.AppendStage(result)
		runLog.StageFinished(result)
		service.logger.Info(fmt.Sprintf("run %v: stage %v done in %v", run.ID, s.name, time.Since(start).String()))
	}
	run.Succeed()
	runLog.RunFinished(run)
	service.logger.Info(fmt.Sprintf("run %v: succeeded", run.ID))
	return run, nil
}

func (service *pipeline) buildStage(spec model.DeploymentSpec, digest *string) stage {
	return stage{
		name: model.StageBuild,
		kind: model.FailureBuild,
		execute: func(ctx stdcontext.Context) (string, error) {
			resolved, err := service.imageBuilder.Build(ctx, spec)
			if err != nil {
				return "", err
			}
			*digest = resolved
			return "image digest " + resolved, nil
		},
	}
}

func (service *pipeline) pushStage(spec model.DeploymentSpec) stage {
	return stage{
		name: model.StagePush,
		kind: model.FailurePush,
		execute: func(ctx stdcontext.Context) (string, error) {
			if err := service.imageBuilder.Push(ctx, spec); err != nil {
				return "", err
			}
			return "pushed " + spec.ImageRef(), nil
		},
	}
}

func (service *pipeline) verifyPushStage(spec model.DeploymentSpec, digest *string) stage {
	return stage{
		name: model.StageVerifyPush,
		kind: model.FailurePush,
		execute: func(ctx stdcontext.Context) (string, error) {
			return "", service.registryVerifier.VerifyPushed(ctx, spec, *digest)
		},
	}
}

func (service *pipeline) clusterApplyStage(spec model.DeploymentSpec, digest *string) stage {
	return stage{
		name: model.StageClusterApply,
		kind: model.FailureRollout,
		execute: func(ctx stdcontext.Context) (string, error) {
			if err := service.clusterDriver.EnsureCluster(ctx, spec); err != nil {
				return "", err
			}
			resolved := ""
			if digest != nil {
				resolved = *digest
			}
			return "", service.clusterDriver.Apply(ctx, spec, resolved)
		},
	}
}

func (service *pipeline) rolloutVerifyStage(spec model.DeploymentSpec, options RunOptions) stage {
	return stage{
		name: model.StageRolloutVerify,
		kind: model.FailureRollout,
		execute: func(ctx stdcontext.Context) (string, error) {
			err := service.clusterDriver.WaitRollout(ctx, spec, options.RolloutTimeout)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%v/%v replicas ready", spec.Replicas, spec.Replicas), nil
		},
	}
}

func (service *pipeline) functionDeployStage(function model.FunctionSpec) stage {
	return stage{
		name: model.StageFunctionDeploy,
		kind: model.FailureDeployAPI,
		execute: func(ctx stdcontext.Context) (string, error) {
			return "", service.functionDeployer.Deploy(ctx, function)
		},
	}
}

func (service *pipeline) failStage(
	run *model.PipelineRun,
	runLog RunLogger,
	name string,
	start time.Time,
	excerpt string,
	err error,
) {
	exitCode := -1
	if stageErr := asStageError(err); stageErr != nil {
		exitCode = stageErr.ExitCode
		if excerpt == "" {
			excerpt = stageErr.Stderr
		}
	}
	result := model.StageResult{
		StageName:  name,
		ExitCode:   exitCode,
		DurationMs: time.Since(start).Milliseconds(),
		LogExcerpt: truncate(excerpt),
	}
	run.AppendStage(result)
	runLog.StageFinished(result)
	run.Fail(name, model.KindOf(err))
	service.logger.Error(err, fmt.Sprintf("run %v: stage %v failed", run.ID, name))
}

// cleanup tears down partially created cluster resources without touching the
// terminal run status. It runs detached from the pipeline context so it still
// happens after a cancel.
func (service *pipeline) cleanup(run *model.PipelineRun, runLog RunLogger) {
	ctx, cancelFunc := stdcontext.WithTimeout(stdcontext.Background(), time.Minute)
	defer cancelFunc()

	start := time.Now()
	excerpt := "cluster resources removed"
	exitCode := 0
	if err := service.clusterDriver.Teardown(ctx, run.Spec); err != nil {
		service.logger.Error(err, fmt.Sprintf("run %v: cleanup failed", run.ID))
		excerpt = truncate(err.Error())
		exitCode = -1
	}
	result := model.StageResult{
		StageName:  model.StageCleanup,
		ExitCode:   exitCode,
		DurationMs: time.Since(start).Milliseconds(),
		LogExcerpt: excerpt,
	}
	run.AppendStage(result)
	runLog.StageFinished(result)
}

func (service *pipeline) runLogFor(id uuid.UUID) RunLogger {
	runLog, err := service.runLoggerFactory.ForRun(id)
	if err != nil {
		service.logger.Error(err, "failed to open run log, continuing without it")
		return nopRunLogger{}
	}
	return runLog
}

func classify(ctx stdcontext.Context, kind model.FailureKind, err error) error {
	if ctx.Err() != nil || errors.Is(err, stdcontext.Canceled) {
		cancelErr := model.NewStageError(model.FailureCancelled, err)
		if stageErr := asStageError(err); stageErr != nil {
			cancelErr.Stderr = stageErr.Stderr
			cancelErr.ExitCode = stageErr.ExitCode
		}
		return cancelErr
	}
	if model.KindOf(err) != "" {
		return err
	}
	return model.NewStageError(kind, err)
}

func asStageError(err error) *model.StageError {
	var stageErr *model.StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return nil
}

func functionOf(spec model.DeploymentSpec, options RunOptions) (model.FunctionSpec, bool) {
	if options.FunctionName != "" && options.FunctionArtifact != "" {
		return model.FunctionSpec{Name: options.FunctionName, Artifact: options.FunctionArtifact}, true
	}
	if spec.Function != nil {
		return *spec.Function, true
	}
	return model.FunctionSpec{}, false
}

func truncate(excerpt string) string {
	if len(excerpt) <= logExcerptLimit {
		return excerpt
	}
	return excerpt[len(excerpt)-logExcerptLimit:]
}

type nopRunLogger struct{}

func (nopRunLogger) StageFinished(model.StageResult) {}

func (nopRunLogger) RunFinished(*model.PipelineRun) {}

func (nopRunLogger) Close() {}
