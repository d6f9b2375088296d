package cluster

import (
	stdcontext "context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"

	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/application/model"
	"github.com/gopalatejaswi/Docker-aws-cloud-infra-pipeline/pkg/deploy/infrastructure/command"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []command.Command
	respond func(cmd command.Command) (command.Result, error)
}

func (r *fakeRunner) Execute(ctx stdcontext.Context, cmd command.Command) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()
	if ctx.Err() != nil {
		return command.Result{ExitCode: -1}, ctx.Err()
	}
	return r.respond(cmd)
}

func (r *fakeRunner) callsTo(executable, firstArg string) []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []command.Command
	for _, call := range r.calls {
		if call.Executable == executable && len(call.Args) > 0 && call.Args[0] == firstArg {
			matched = append(matched, call)
		}
	}
	return matched
}

func testConfig() Config {
	return Config{
		KubectlBinary:    "kubectl",
		MinikubeBinary:   "minikube",
		EksctlBinary:     "eksctl",
		PollInterval:     5 * time.Millisecond,
		RolloutTimeout:   time.Second,
		TransientRetries: 1,
	}
}

func localSpec() model.DeploymentSpec {
	return model.DeploymentSpec{
		AppName:       "jupyter-notebook",
		ImageName:     "jupyter-notebook",
		ImageTag:      "latest",
		RegistryURI:   "localhost:5000",
		ClusterTarget: model.ClusterTargetLocal,
		Replicas:      1,
		ContainerPort: 8888,
		ServiceType:   model.ServiceTypeNodePort,
	}
}

func okResponder(command.Command) (command.Result, error) {
	return command.Result{}, nil
}

func TestWaitRolloutSucceedsAfterPolls(t *testing.T) {
	var polls int32
	runner := &fakeRunner{respond: func(cmd command.Command) (command.Result, error) {
		statuses := []string{"", "0", "1"}
		poll := atomic.AddInt32(&polls, 1)
		return command.Result{Stdout: statuses[poll-1]}, nil
	}}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	err := driver.WaitRollout(stdcontext.Background(), localSpec(), 0)
	if err != nil {
		t.Fatal("Expected rollout to become ready, got:", err)
	}
	if polls != 3 {
		t.Fatalf("Expected 3 polls, got %v", polls)
	}
}

func TestWaitRolloutTimeout(t *testing.T) {
	runner := &fakeRunner{respond: func(command.Command) (command.Result, error) {
		return command.Result{Stdout: "0"}, nil
	}}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	err := driver.WaitRollout(stdcontext.Background(), localSpec(), 30*time.Millisecond)
	if err == nil {
		t.Fatal("Expected rollout timeout")
	}
	if model.KindOf(err) != model.FailureRolloutTimeout {
		t.Fatalf("Expected %v, got %v", model.FailureRolloutTimeout, model.KindOf(err))
	}
}

func TestWaitRolloutCancelledWithinOneInterval(t *testing.T) {
	runner := &fakeRunner{respond: func(command.Command) (command.Result, error) {
		return command.Result{Stdout: "0"}, nil
	}}
	config := testConfig()
	config.PollInterval = 50 * time.Millisecond
	driver := NewClusterDriver(logger.NewTextLogger(), runner, config)

	ctx, cancelFunc := stdcontext.WithCancel(stdcontext.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancelFunc()
	}()

	start := time.Now()
	err := driver.WaitRollout(ctx, localSpec(), time.Minute)
	if !errors.Is(err, stdcontext.Canceled) {
		t.Fatal("Expected context cancellation, got:", err)
	}
	if elapsed := time.Since(start); elapsed > 2*config.PollInterval {
		t.Fatalf("Cancellation took %v, longer than one polling interval", elapsed)
	}
}

func TestApplyRetriesTransientFailureOnce(t *testing.T) {
	var applies int32
	runner := &fakeRunner{respond: func(cmd command.Command) (command.Result, error) {
		if cmd.Executable == "kubectl" && cmd.Args[0] == "apply" {
			if atomic.AddInt32(&applies, 1) == 1 {
				return command.Result{Stderr: "connection refused", ExitCode: 1}, errors.New("exit status 1")
			}
		}
		return command.Result{}, nil
	}}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	err := driver.Apply(stdcontext.Background(), localSpec(), "sha:abc")
	if err != nil {
		t.Fatal("Expected apply to succeed after retry, got:", err)
	}
	if applies != 2 {
		t.Fatalf("Expected 2 apply attempts, got %v", applies)
	}
	if len(runner.callsTo("minikube", "image")) != 1 {
		t.Fatal("Expected the image to be loaded into the local cluster")
	}
}

func TestApplyDoesNotRetryRejection(t *testing.T) {
	var applies int32
	runner := &fakeRunner{respond: func(cmd command.Command) (command.Result, error) {
		if cmd.Executable == "kubectl" && cmd.Args[0] == "apply" {
			atomic.AddInt32(&applies, 1)
			return command.Result{Stderr: "Error from server (Invalid)", ExitCode: 1}, errors.New("exit status 1")
		}
		return command.Result{}, nil
	}}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	err := driver.Apply(stdcontext.Background(), localSpec(), "sha:abc")
	if err == nil {
		t.Fatal("Expected apply rejection")
	}
	if model.KindOf(err) != model.FailureRollout {
		t.Fatalf("Expected %v, got %v", model.FailureRollout, model.KindOf(err))
	}
	if applies != 1 {
		t.Fatalf("Expected a single apply attempt, got %v", applies)
	}
}

func TestApplySerializesPerApp(t *testing.T) {
	var inFlight, maxInFlight int32
	runner := &fakeRunner{respond: func(cmd command.Command) (command.Result, error) {
		current := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if current <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return command.Result{}, nil
	}}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := driver.Apply(stdcontext.Background(), localSpec(), "sha:abc"); err != nil {
				t.Error("Apply failed:", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight > 1 {
		t.Fatalf("Expected serialized applies for one app, saw %v concurrent commands", maxInFlight)
	}
}

func TestEnsureClusterStartsLocalClusterWhenDown(t *testing.T) {
	runner := &fakeRunner{respond: func(cmd command.Command) (command.Result, error) {
		if cmd.Executable == "minikube" && cmd.Args[0] == "status" {
			return command.Result{ExitCode: 1}, errors.New("exit status 1")
		}
		return command.Result{}, nil
	}}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	if err := driver.EnsureCluster(stdcontext.Background(), localSpec()); err != nil {
		t.Fatal("Expected cluster to be started, got:", err)
	}
	if len(runner.callsTo("minikube", "start")) != 1 {
		t.Fatal("Expected minikube start to be invoked")
	}
}

func TestEnsureClusterCreatesCloudClusterWhenAbsent(t *testing.T) {
	spec := localSpec()
	spec.ClusterTarget = model.ClusterTargetCloud
	spec.ClusterName = "demo-cluster"

	runner := &fakeRunner{respond: func(cmd command.Command) (command.Result, error) {
		if cmd.Executable == "eksctl" && cmd.Args[0] == "get" {
			return command.Result{ExitCode: 1}, errors.New("exit status 1")
		}
		return command.Result{}, nil
	}}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	if err := driver.EnsureCluster(stdcontext.Background(), spec); err != nil {
		t.Fatal("Expected cluster to be created, got:", err)
	}
	creates := runner.callsTo("eksctl", "create")
	if len(creates) != 1 || !strings.Contains(strings.Join(creates[0].Args, " "), "demo-cluster") {
		t.Fatalf("Expected eksctl create cluster for demo-cluster, got %v", creates)
	}
}

func TestTeardownIgnoresMissingResources(t *testing.T) {
	runner := &fakeRunner{respond: okResponder}
	driver := NewClusterDriver(logger.NewTextLogger(), runner, testConfig())

	if err := driver.Teardown(stdcontext.Background(), localSpec()); err != nil {
		t.Fatal("Expected teardown to succeed, got:", err)
	}
	deletes := runner.callsTo("kubectl", "delete")
	if len(deletes) != 1 || !strings.Contains(strings.Join(deletes[0].Args, " "), "--ignore-not-found") {
		t.Fatalf("Expected kubectl delete --ignore-not-found, got %v", deletes)
	}
}
