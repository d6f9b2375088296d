package runtimeconfig

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the orchestrator runtime defaults. Every value can be
// overridden by a DEPLOY_-prefixed environment variable or by the optional
// config file given to Load.
type Config struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RolloutTimeout   time.Duration `mapstructure:"rollout_timeout"`
	TransientRetries uint64        `mapstructure:"transient_retries"`
	VerifyPush       bool          `mapstructure:"verify_push"`
	RegistryScheme   string        `mapstructure:"registry_scheme"`
	FunctionEndpoint string        `mapstructure:"function_endpoint"`
	LogDir           string        `mapstructure:"log_dir"`
	DockerBinary     string        `mapstructure:"docker_binary"`
	KubectlBinary    string        `mapstructure:"kubectl_binary"`
	MinikubeBinary   string        `mapstructure:"minikube_binary"`
	EksctlBinary     string        `mapstructure:"eksctl_binary"`
}

func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("rollout_timeout", 300*time.Second)
	v.SetDefault("transient_retries", 1)
	v.SetDefault("verify_push", true)
	v.SetDefault("registry_scheme", "https")
	v.SetDefault("function_endpoint", "")
	v.SetDefault("log_dir", ".deploy/logs")
	v.SetDefault("docker_binary", "docker")
	v.SetDefault("kubectl_binary", "kubectl")
	v.SetDefault("minikube_binary", "minikube")
	v.SetDefault("eksctl_binary", "eksctl")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file %v", configPath)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal runtime config")
	}
	return config, nil
}
