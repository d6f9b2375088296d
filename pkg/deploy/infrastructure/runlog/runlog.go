package runlog

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
)

const maxLogFileMegabytes = 16

// Factory opens one structured JSON log file per pipeline run under dir.
type Factory struct {
	dir string
}

func NewFactory(dir string) *Factory {
	return &Factory{dir: dir}
}

func (f *Factory) ForRun(id uuid.UUID) (service.RunLogger, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create run log directory %v", f.dir)
	}
	sink := &lumberjack.Logger{
		Filename:   filepath.Join(f.dir, "run-"+id.String()+".log"),
		MaxSize:    maxLogFileMegabytes,
		MaxBackups: 1,
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(sink),
		zap.InfoLevel,
	)
	logger := zap.New(core).With(zap.String("run_id", id.String()))
	return &runLogger{logger: logger, sink: sink}, nil
}

type runLogger struct {
	logger *zap.Logger
	sink   *lumberjack.Logger
}

func (l *runLogger) StageFinished(result model.StageResult) {
	l.logger.Info("stage finished",
		zap.String("stage", result.StageName),
		zap.Int("exit_code", result.ExitCode),
		zap.Int64("duration_ms", result.DurationMs),
		zap.String("log_excerpt", result.LogExcerpt),
	)
}

func (l *runLogger) RunFinished(run *model.PipelineRun) {
	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("stages", len(run.StageResults)),
	}
	if run.FailedStage != "" {
		fields = append(fields,
			zap.String("failed_stage", run.FailedStage),
			zap.String("reason", string(run.Reason)),
		)
	}
	l.logger.Info("run finished", fields...)
}

func (l *runLogger) Close() {
	_ = l.logger.Sync()
	_ = l.sink.Close()
}
