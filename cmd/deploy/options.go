package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
)

func optionsFromCLI(c *cli.Context) (service.RunOptions, error) {
	options := service.RunOptions{
		SpecPath:       c.String("spec"),
		RolloutTimeout: time.Duration(c.Int64("timeout")) * time.Second,
	}
	if target := c.String("target"); target != "" {
		parsed, err := model.ParseClusterTarget(target)
		if err != nil {
			return service.RunOptions{}, model.NewStageError(model.FailureValidation, err)
		}
		options.Target = parsed
	}
	return options, nil
}
