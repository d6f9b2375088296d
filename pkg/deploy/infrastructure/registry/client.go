package registry

import (
	stdcontext "context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
)

const requestTimeout = 10 * time.Second

// NewClient talks to the Docker Registry HTTP API v2 to confirm a pushed
// manifest is actually visible on the registry side.
func NewClient(
	logger applogger.Logger,
	scheme string,
	transientRetries uint64,
) service.RegistryVerifier {
	return &client{
		logger:           logger,
		scheme:           scheme,
		transientRetries: transientRetries,
		http:             resty.New().SetTimeout(requestTimeout),
	}
}

type client struct {
	logger           applogger.Logger
	scheme           string
	transientRetries uint64
	http             *resty.Client
}

func (c client) VerifyPushed(ctx stdcontext.Context, spec model.DeploymentSpec, digest string) error {
	url := c.manifestURL(spec)
	c.logger.Debug("HEAD " + url)

	operation := func() error {
		response, err := c.http.R().
			SetContext(ctx).
			SetHeader("Accept", "application/vnd.docker.distribution.manifest.v2+json").
			Head(url)
		if err != nil {
			// network-class failure, worth one more try
			return errors.Wrapf(err, "registry request failed")
		}
		switch {
		case response.StatusCode() == http.StatusOK:
			return nil
		case response.StatusCode() == http.StatusNotFound:
			return backoff.Permanent(model.NewStageErrorf(
				model.FailurePush, "pushed image %v not found in registry (digest %v)", spec.ImageRef(), digest,
			))
		case response.StatusCode() >= http.StatusInternalServerError:
			return fmt.Errorf("registry returned %v", response.Status())
		default:
			return backoff.Permanent(model.NewStageErrorf(
				model.FailurePush, "registry rejected manifest check for %v: %v", spec.ImageRef(), response.Status(),
			))
		}
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.transientRetries),
		ctx,
	)
	err := backoff.Retry(operation, policy)
	if err != nil && model.KindOf(err) == "" {
		return model.NewStageError(model.FailurePush, err)
	}
	return err
}

func (c client) manifestURL(spec model.DeploymentSpec) string {
	host := spec.RegistryURI
	name := spec.ImageName
	if slash := strings.Index(host, "/"); slash >= 0 {
		name = host[slash+1:] + "/" + name
		host = host[:slash]
	}
	return fmt.Sprintf("%v://%v/v2/%v/manifests/%v", c.scheme, host, name, spec.ImageTag)
}
