// Package handlers implements the business logic for CLI commands.
//
// Handler functions are called by the command definitions in the
// commands package. They are framework-agnostic and testable without the
// CLI layer: all remote wiring goes through factory variables that tests
// replace.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/bootstrap"
	"github.com/tobkre/flotilla/internal/config"
	"github.com/tobkre/flotilla/internal/lifecycle"
	"github.com/tobkre/flotilla/internal/logging"
	awsp "github.com/tobkre/flotilla/internal/platform/aws"
	"github.com/tobkre/flotilla/internal/reconcile"
	"github.com/tobkre/flotilla/internal/statestore"
	"github.com/tobkre/flotilla/internal/terraform"
)

// Options carries the flag values shared by the lifecycle commands.
type Options struct {
	// Dir is the directory holding deployment-unit descriptors.
	Dir string
	// RootsDir is the directory holding the engine configuration roots.
	RootsDir string
	// Region is the AWS region the run operates in.
	Region string
	// Parallel bounds the number of dependency groups processed at once.
	Parallel int
	// Verbose enables debug logging.
	Verbose bool
}

// ExitError carries a non-zero process exit code out of a handler so
// main can translate run classification into automation-visible codes.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("run finished with %s (exit %d)", e.Reason, e.Code)
}

// exitFor converts an aggregated run result into the handler's return
// value.
func exitFor(res *lifecycle.RunResult) error {
	if res.ExitCode() == 0 {
		return nil
	}
	return &ExitError{Code: res.ExitCode(), Reason: res.ExitReason().String()}
}

// machineRunner is the slice of lifecycle.Machine the handlers drive.
type machineRunner interface {
	Run(ctx context.Context, units []config.DeploymentUnit, mode lifecycle.Mode, res *lifecycle.RunResult)
}

// unitSource resolves descriptors into deployment units.
// Implemented by config.Resolver.
type unitSource interface {
	ResolveAll(ctx context.Context, raws []config.RawDescriptor) ([]config.DeploymentUnit, []error)
	Resolve(ctx context.Context, raw config.RawDescriptor) (config.DeploymentUnit, error)
}

// orphanReconciler is the slice of reconcile.Reconciler the handlers
// drive.
type orphanReconciler interface {
	Reconcile(ctx context.Context, region string) *lifecycle.RunResult
}

// ECS coordinates for the CD bootstrap task. Overridable through the
// environment so one binary serves several orchestration deployments.
const (
	defaultBootstrapCluster   = "flotilla-orchestration"
	defaultBootstrapTask      = "flotilla-bootstrap"
	defaultBootstrapContainer = "bootstrap"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Factory function variables - can be replaced in tests for dependency
// injection.
var (
	// buildLogger constructs the run logger.
	buildLogger = logging.Build

	// loadDescriptorDir reads every descriptor in a directory.
	loadDescriptorDir = config.LoadDescriptorDir

	// newUnitSource wires a resolver against the regional parameter
	// store.
	newUnitSource = func(ctx context.Context, region string) (unitSource, error) {
		cfg, err := awsp.LoadConfig(ctx, region)
		if err != nil {
			return nil, err
		}
		return config.NewResolver(awsp.NewParameterStore(ssm.NewFromConfig(cfg))), nil
	}

	// newGroupMachine wires one lifecycle machine per dependency group.
	// Each group gets its own broker: the broker's scope stack is
	// group-local state.
	newGroupMachine = func(ctx context.Context, opts Options, log *zap.Logger) (machineRunner, error) {
		cfg, err := awsp.LoadConfig(ctx, opts.Region)
		if err != nil {
			return nil, err
		}
		broker, err := awsp.NewBroker(ctx, sts.NewFromConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to establish central identity: %w", err)
		}

		bucket := statestore.StateBucket(broker.OwnAccount())
		engine := terraform.NewEngine(opts.RootsDir, bucket, opts.Region, log)
		markers := statestore.NewMarkerStore(s3.NewFromConfig(cfg), bucket)
		boot := bootstrap.New(
			ecs.NewFromConfig(cfg),
			envOr("FLOTILLA_BOOTSTRAP_CLUSTER", defaultBootstrapCluster),
			envOr("FLOTILLA_BOOTSTRAP_TASK", defaultBootstrapTask),
			envOr("FLOTILLA_BOOTSTRAP_CONTAINER", defaultBootstrapContainer),
			log,
		)

		machine := lifecycle.NewMachine(broker, engine, boot, markers, log)
		machine.ReloadUnit = reloadUnit(opts)
		return machine, nil
	}

	// newReconciler wires the janitors for one region.
	newReconciler = func(ctx context.Context, region string, log *zap.Logger) (orphanReconciler, error) {
		cfg, err := awsp.LoadConfig(ctx, region)
		if err != nil {
			return nil, err
		}
		return reconcile.New(
			awsp.NewSecretsJanitor(secretsmanager.NewFromConfig(cfg)),
			awsp.NewNetworkJanitor(ec2.NewFromConfig(cfg)),
			log,
		), nil
	}
)

// reloadUnit re-reads a unit's descriptor from disk so the destroy gate
// reflects configuration changes made between phases.
func reloadUnit(opts Options) func(ctx context.Context, unit config.DeploymentUnit) (config.DeploymentUnit, error) {
	return func(ctx context.Context, unit config.DeploymentUnit) (config.DeploymentUnit, error) {
		raws, err := loadDescriptorDir(opts.Dir)
		if err != nil {
			return config.DeploymentUnit{}, err
		}
		for _, raw := range raws {
			if raw.Alias == unit.Alias && raw.Kind == unit.Kind {
				source, err := newUnitSource(ctx, opts.Region)
				if err != nil {
					return config.DeploymentUnit{}, err
				}
				return source.Resolve(ctx, raw)
			}
		}
		// Descriptor removed mid-run: the recorded intent stands.
		return unit, nil
	}
}

// loadUnits loads and resolves every descriptor under opts.Dir.
// Resolution failures are recorded per descriptor; surviving units are
// returned in provisioning order.
func loadUnits(ctx context.Context, opts Options, res *lifecycle.RunResult) ([]config.DeploymentUnit, error) {
	raws, err := loadDescriptorDir(opts.Dir)
	if err != nil {
		res.Record("load descriptors", err)
		res.Escalate(lifecycle.ExitValidationFailure)
		return nil, err
	}

	source, err := newUnitSource(ctx, opts.Region)
	if err != nil {
		res.Record("initialize resolver", err)
		res.Escalate(lifecycle.ExitValidationFailure)
		return nil, err
	}

	units, errs := source.ResolveAll(ctx, raws)
	for _, rerr := range errs {
		res.Record("resolve descriptor", rerr)
		res.Escalate(lifecycle.ExitValidationFailure)
	}
	return units, nil
}
