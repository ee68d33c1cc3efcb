package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/config"
)

type stubECS struct {
	runErr    error
	statuses  []string // LastStatus returned per DescribeTasks call
	exitCode  int32
	describes int
	lastEnv   map[string]string
}

func (s *stubECS) RunTask(_ context.Context, in *ecs.RunTaskInput, _ ...func(*ecs.Options)) (*ecs.RunTaskOutput, error) {
	if s.runErr != nil {
		return nil, s.runErr
	}
	s.lastEnv = map[string]string{}
	for _, kv := range in.Overrides.ContainerOverrides[0].Environment {
		s.lastEnv[aws.ToString(kv.Name)] = aws.ToString(kv.Value)
	}
	return &ecs.RunTaskOutput{Tasks: []types.Task{
		{TaskArn: aws.String("arn:aws:ecs:eu-central-1:111111111111:task/boot/abc")},
	}}, nil
}

func (s *stubECS) DescribeTasks(context.Context, *ecs.DescribeTasksInput, ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error) {
	status := "STOPPED"
	if s.describes < len(s.statuses) {
		status = s.statuses[s.describes]
	}
	s.describes++
	return &ecs.DescribeTasksOutput{Tasks: []types.Task{{
		TaskArn:       aws.String("arn:aws:ecs:eu-central-1:111111111111:task/boot/abc"),
		LastStatus:    aws.String(status),
		StoppedReason: aws.String("Essential container exited"),
		Containers: []types.Container{{
			Name:     aws.String("bootstrap"),
			ExitCode: aws.Int32(s.exitCode),
		}},
	}}}, nil
}

func testBootstrapper(stub *stubECS) *Bootstrapper {
	return New(stub, "orchestration", "flotilla-bootstrap", "bootstrap", zap.NewNop(),
		WithPollInterval(time.Millisecond),
		WithDeadline(time.Second),
	)
}

func unit() config.DeploymentUnit {
	return config.DeploymentUnit{
		Kind:      config.KindManagement,
		Alias:     "mc01-eu-1",
		AccountID: "222222222222",
		Region:    "eu-central-1",
	}
}

func TestRunWaitsForStoppedTask(t *testing.T) {
	stub := &stubECS{statuses: []string{"PROVISIONING", "RUNNING", "STOPPED"}}
	err := testBootstrapper(stub).Run(context.Background(), unit())
	require.NoError(t, err)
	assert.Equal(t, 3, stub.describes)
	assert.Equal(t, "mc01-eu-1", stub.lastEnv["CLUSTER_ALIAS"])
	assert.Equal(t, "management", stub.lastEnv["ENVIRONMENT"])
	assert.Equal(t, "eu-central-1", stub.lastEnv["AWS_REGION"])
}

func TestRunFailsOnNonZeroExit(t *testing.T) {
	stub := &stubECS{exitCode: 2}
	err := testBootstrapper(stub).Run(context.Background(), unit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 2")
}

func TestRunDeadline(t *testing.T) {
	stub := &stubECS{statuses: []string{"RUNNING"}}
	// Always RUNNING after the first poll would still stop; force RUNNING forever.
	stub.statuses = make([]string, 10000)
	for i := range stub.statuses {
		stub.statuses[i] = "RUNNING"
	}

	b := New(stub, "orchestration", "flotilla-bootstrap", "bootstrap", zap.NewNop(),
		WithPollInterval(time.Millisecond),
		WithDeadline(20*time.Millisecond),
	)
	err := b.Run(context.Background(), unit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish within")
}
