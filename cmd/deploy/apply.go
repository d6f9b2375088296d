package main

import (
	stdcontext "context"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/dependency"
)

func apply(ctx stdcontext.Context, options service.RunOptions) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	_, err = dependencyContainer.Pipeline().Apply(ctx, options)
	return err
}
