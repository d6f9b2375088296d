package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	if err != nil {
		t.Fatal("Failed to load defaults:", err)
	}
	if config.PollInterval != 2*time.Second {
		t.Fatalf("Unexpected poll interval %v", config.PollInterval)
	}
	if config.RolloutTimeout != 300*time.Second {
		t.Fatalf("Unexpected rollout timeout %v", config.RolloutTimeout)
	}
	if config.TransientRetries != 1 {
		t.Fatalf("Unexpected retry budget %v", config.TransientRetries)
	}
	if !config.VerifyPush {
		t.Fatal("Expected push verification to default to on")
	}
	if config.KubectlBinary != "kubectl" || config.DockerBinary != "docker" {
		t.Fatalf("Unexpected tool binaries %q %q", config.KubectlBinary, config.DockerBinary)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DEPLOY_ROLLOUT_TIMEOUT", "10s")
	t.Setenv("DEPLOY_KUBECTL_BINARY", "/opt/bin/kubectl")

	config, err := Load("")
	if err != nil {
		t.Fatal("Failed to load config:", err)
	}
	if config.RolloutTimeout != 10*time.Second {
		t.Fatalf("Expected env override to apply, got %v", config.RolloutTimeout)
	}
	if config.KubectlBinary != "/opt/bin/kubectl" {
		t.Fatalf("Expected env override to apply, got %v", config.KubectlBinary)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	body := "poll_interval: 500ms\nverify_push: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal("Failed to write config file:", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatal("Failed to load config file:", err)
	}
	if config.PollInterval != 500*time.Millisecond {
		t.Fatalf("Expected file override to apply, got %v", config.PollInterval)
	}
	if config.VerifyPush {
		t.Fatal("Expected file override to disable push verification")
	}
}
