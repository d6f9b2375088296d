package function

import (
	"archive/zip"
	"bytes"
	stdcontext "context"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/service"
)

const requestTimeout = 60 * time.Second

// NewDeployer updates serverless function code through the update-function-code
// HTTP API at endpoint. The call is synchronous, no polling happens here.
func NewDeployer(logger applogger.Logger, endpoint string) service.FunctionDeployer {
	return &deployer{
		logger:   logger,
		endpoint: endpoint,
		http:     resty.New().SetTimeout(requestTimeout),
	}
}

type deployer struct {
	logger   applogger.Logger
	endpoint string
	http     *resty.Client
}

type updateCodeRequest struct {
	ZipFile string `json:"ZipFile"`
}

func (d deployer) Deploy(ctx stdcontext.Context, function model.FunctionSpec) error {
	if d.endpoint == "" {
		return model.NewStageErrorf(
			model.FailureDeployAPI,
			"function endpoint is not configured, set DEPLOY_FUNCTION_ENDPOINT",
		)
	}
	d.logger.Info(fmt.Sprintf("package function artifact \"%v\"...", function.Artifact))
	archive, err := packageArtifact(function.Artifact)
	if err != nil {
		return model.NewStageError(model.FailurePackaging, err)
	}

	url := fmt.Sprintf("%v/2015-03-31/functions/%v/code", d.endpoint, function.Name)
	d.logger.Info(fmt.Sprintf("update code of function \"%v\" (%v bytes packaged)...", function.Name, len(archive)))
	response, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(updateCodeRequest{ZipFile: base64.StdEncoding.EncodeToString(archive)}).
		Put(url)
	if err != nil {
		return model.NewStageError(
			model.FailureDeployAPI,
			errors.Wrapf(err, "update-function-code request for %v failed", function.Name),
		)
	}
	if response.IsError() {
		return &model.StageError{
			Kind:   model.FailureDeployAPI,
			Stderr: string(response.Body()),
			Err:    fmt.Errorf("update-function-code for %v returned %v", function.Name, response.Status()),
		}
	}
	return nil
}

// packageArtifact zips a single file or a whole directory tree, with paths
// relative to the artifact root.
func packageArtifact(artifactPath string) ([]byte, error) {
	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat artifact %v", artifactPath)
	}

	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)

	if info.IsDir() {
		err = filepath.WalkDir(artifactPath, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			relativePath, relErr := filepath.Rel(artifactPath, path)
			if relErr != nil {
				return relErr
			}
			return addFile(writer, path, filepath.ToSlash(relativePath))
		})
	} else {
		err = addFile(writer, artifactPath, filepath.Base(artifactPath))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to package artifact %v", artifactPath)
	}
	if err = writer.Close(); err != nil {
		return nil, errors.Wrapf(err, "failed to finalize artifact archive for %v", artifactPath)
	}
	return buffer.Bytes(), nil
}

func addFile(writer *zip.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	entry, err := writer.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, file)
	return err
}
