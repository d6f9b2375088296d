package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"
	"github.com/urfave/cli/v2"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/config/runtimeconfig"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/dependency"
)

func main() {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	ctx = listenOSKillSignalsContext(ctx)
	mainLogger := logger.NewTextLogger()

	runtimeConfig, err := runtimeconfig.Load(os.Getenv("DEPLOY_CONFIG"))
	if err != nil {
		mainLogger.FatalError(err, "failed load runtime config")
	}
	container := dependency.NewDependencyContainer(mainLogger, runtimeConfig, os.Getenv("SILENT") != "")
	ctx = dependency.ContainerToContext(ctx, container)

	app := &cli.App{
		Name:  "deploy",
		Usage: "build, push and roll out a containerized application from a deployment descriptor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "spec",
				Usage:    "path to the deployment descriptor",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "target",
				Usage: "override the descriptor cluster target (local or cloud)",
			},
			&cli.Int64Flag{
				Name:  "timeout",
				Usage: "rollout timeout in seconds",
			},
		},
		Commands: cli.Commands{
			&cli.Command{
				Name:  "run",
				Usage: "execute the full pipeline: build, push, apply, verify rollout, deploy function",
				Action: func(c *cli.Context) error {
					options, err := optionsFromCLI(c)
					if err != nil {
						return err
					}
					return run(c.Context, options)
				},
			},
			&cli.Command{
				Name:  "build",
				Usage: "build and push the image only",
				Action: func(c *cli.Context) error {
					options, err := optionsFromCLI(c)
					if err != nil {
						return err
					}
					return buildAndPush(c.Context, options)
				},
			},
			&cli.Command{
				Name:  "apply",
				Usage: "apply manifests and verify the rollout, assuming the image was pushed before",
				Action: func(c *cli.Context) error {
					options, err := optionsFromCLI(c)
					if err != nil {
						return err
					}
					return apply(c.Context, options)
				},
			},
			&cli.Command{
				Name:  "function",
				Usage: "package and deploy the serverless function only",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "function name, overrides the descriptor",
					},
					&cli.StringFlag{
						Name:  "artifact",
						Usage: "path to the function artifact, overrides the descriptor",
					},
				},
				Action: func(c *cli.Context) error {
					options, err := optionsFromCLI(c)
					if err != nil {
						return err
					}
					options.FunctionName = c.String("name")
					options.FunctionArtifact = c.String("artifact")
					return deployFunction(c.Context, options)
				},
			},
		},
	}
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		mainLogger.Error(err, "failed execute command "+strings.Join(os.Args, " "))
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch model.KindOf(err) {
	case model.FailureBuild:
		return 2
	case model.FailurePush:
		return 3
	case model.FailureRollout, model.FailureRolloutTimeout:
		return 4
	case model.FailurePackaging, model.FailureDeployAPI:
		return 5
	case model.FailureCancelled:
		return 130
	default:
		return 1
	}
}

func listenOSKillSignalsContext(ctx context.Context) context.Context {
	var cancelFunc context.CancelFunc
	ctx, cancelFunc = context.WithCancel(ctx)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ch:
			cancelFunc()
		case <-ctx.Done():
			return
		}
	}()
	return ctx
}
