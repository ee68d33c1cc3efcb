// Package bootstrap hands a freshly-applied cluster over to the
// continuous-delivery controller. It runs a one-shot bootstrap task and
// polls for its terminal status; the task's exit code decides success.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/config"
)

// ECSAPI is the subset of the ECS client the bootstrapper uses.
type ECSAPI interface {
	RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
	DescribeTasks(ctx context.Context, params *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
}

// Bootstrapper runs the CD bootstrap task for a deployment unit.
type Bootstrapper struct {
	client         ECSAPI
	cluster        string
	taskDefinition string
	container      string
	pollInterval   time.Duration
	deadline       time.Duration
	log            *zap.Logger
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithPollInterval overrides the task status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bootstrapper) {
		b.pollInterval = d
	}
}

// WithDeadline overrides the maximum wall-clock wait for the task.
func WithDeadline(d time.Duration) Option {
	return func(b *Bootstrapper) {
		b.deadline = d
	}
}

// New creates a bootstrapper targeting the orchestration ECS cluster.
func New(client ECSAPI, cluster, taskDefinition, container string, log *zap.Logger, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		client:         client,
		cluster:        cluster,
		taskDefinition: taskDefinition,
		container:      container,
		pollInterval:   15 * time.Second,
		deadline:       30 * time.Minute,
		log:            log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run starts the bootstrap task for the unit and waits for it to stop.
func (b *Bootstrapper) Run(ctx context.Context, unit config.DeploymentUnit) error {
	out, err := b.client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(b.cluster),
		TaskDefinition: aws.String(b.taskDefinition),
		Count:          aws.Int32(1),
		Overrides: &types.TaskOverride{
			ContainerOverrides: []types.ContainerOverride{{
				Name: aws.String(b.container),
				Environment: []types.KeyValuePair{
					{Name: aws.String("ENVIRONMENT"), Value: aws.String(string(unit.Kind))},
					{Name: aws.String("CLUSTER_ALIAS"), Value: aws.String(unit.Alias)},
					{Name: aws.String("AWS_REGION"), Value: aws.String(unit.Region)},
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start bootstrap task for %s: %w", unit.Alias, err)
	}
	if len(out.Tasks) == 0 {
		return fmt.Errorf("bootstrap task for %s was not placed: %v", unit.Alias, failureReasons(out.Failures))
	}

	taskARN := aws.ToString(out.Tasks[0].TaskArn)
	b.log.Info("bootstrap task started", zap.String("alias", unit.Alias), zap.String("task", taskARN))

	return b.wait(ctx, unit.Alias, taskARN)
}

// wait polls the task until it stops or the deadline passes.
func (b *Bootstrapper) wait(ctx context.Context, alias, taskARN string) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.deadline)
	defer cancel()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("bootstrap task for %s did not finish within %s: %w", alias, b.deadline, waitCtx.Err())
		case <-ticker.C:
		}

		out, err := b.client.DescribeTasks(waitCtx, &ecs.DescribeTasksInput{
			Cluster: aws.String(b.cluster),
			Tasks:   []string{taskARN},
		})
		if err != nil {
			return fmt.Errorf("failed to poll bootstrap task for %s: %w", alias, err)
		}
		if len(out.Tasks) == 0 {
			return fmt.Errorf("bootstrap task for %s disappeared: %v", alias, failureReasons(out.Failures))
		}

		task := out.Tasks[0]
		if aws.ToString(task.LastStatus) != "STOPPED" {
			continue
		}

		code := containerExitCode(task, b.container)
		if code != 0 {
			return fmt.Errorf("bootstrap task for %s exited with code %d: %s",
				alias, code, aws.ToString(task.StoppedReason))
		}
		b.log.Info("bootstrap complete", zap.String("alias", alias))
		return nil
	}
}

func containerExitCode(task types.Task, container string) int32 {
	for _, c := range task.Containers {
		if aws.ToString(c.Name) == container {
			return aws.ToInt32(c.ExitCode)
		}
	}
	// Missing container status counts as failure, not success.
	return -1
}

func failureReasons(failures []types.Failure) []string {
	reasons := make([]string, 0, len(failures))
	for _, f := range failures {
		reasons = append(reasons, aws.ToString(f.Reason))
	}
	return reasons
}
