package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

const (
	StageValidate       = "validate"
	StageBuild          = "build"
	StagePush           = "push"
	StageVerifyPush     = "verifyPush"
	StageClusterApply   = "clusterApply"
	StageRolloutVerify  = "rolloutVerify"
	StageFunctionDeploy = "functionDeploy"
	StageCleanup        = "cleanup"
)

// StageResult records one executed stage. Results are append-only within a run.
type StageResult struct {
	StageName  string
	ExitCode   int
	DurationMs int64
	LogExcerpt string
}

// PipelineRun is the state of a single orchestrator invocation. Status moves
// pending -> running -> succeeded|failed and never leaves a terminal state.
type PipelineRun struct {
	ID           uuid.UUID
	Spec         DeploymentSpec
	Status       RunStatus
	StageResults []StageResult
	FailedStage  string
	Reason       FailureKind
	StartedAt    time.Time
	FinishedAt   time.Time
}

func NewPipelineRun(spec DeploymentSpec) *PipelineRun {
	return &PipelineRun{
		ID:     uuid.New(),
		Spec:   spec,
		Status: RunStatusPending,
	}
}

func (r *PipelineRun) Start() {
	if r.Status != RunStatusPending {
		return
	}
	r.Status = RunStatusRunning
	r.StartedAt = time.Now()
}

func (r *PipelineRun) AppendStage(result StageResult) {
	r.StageResults = append(r.StageResults, result)
}

func (r *PipelineRun) Succeed() {
	if r.Terminal() {
		return
	}
	r.Status = RunStatusSucceeded
	r.FinishedAt = time.Now()
}

func (r *PipelineRun) Fail(stage string, reason FailureKind) {
	if r.Terminal() {
		return
	}
	r.Status = RunStatusFailed
	r.FailedStage = stage
	r.Reason = reason
	r.FinishedAt = time.Now()
}

func (r *PipelineRun) Terminal() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}
