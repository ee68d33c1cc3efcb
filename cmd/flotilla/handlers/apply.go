package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tobkre/flotilla/internal/config"
	"github.com/tobkre/flotilla/internal/lifecycle"
)

// Apply runs a full provisioning pass: every descriptor is resolved,
// units are split into regional dependency groups, and each group is
// driven through its lifecycle by a dedicated machine. Groups run in
// parallel up to opts.Parallel; the aggregated result decides the exit
// code.
func Apply(ctx context.Context, opts Options) error {
	return runLifecycle(ctx, opts, lifecycle.ModeApply)
}

// Destroy runs a teardown pass over the same dependency groups,
// honoring the destroy gate and the management-before-regional
// ordering.
func Destroy(ctx context.Context, opts Options) error {
	return runLifecycle(ctx, opts, lifecycle.ModeDestroy)
}

func runLifecycle(ctx context.Context, opts Options, mode lifecycle.Mode) error {
	log := buildLogger(opts.Verbose)
	defer func() { _ = log.Sync() }()

	res := lifecycle.NewRunResult()
	units, err := loadUnits(ctx, opts, res)
	if err != nil {
		fmt.Println(res.Report())
		return exitFor(res)
	}
	if len(units) == 0 && res.FailureCount() == 0 {
		log.Warn("no deployment units found", zap.String("dir", opts.Dir))
		fmt.Println(res.Report())
		return exitFor(res)
	}

	groups := lifecycle.GroupByRegional(units)
	log.Info("starting lifecycle run",
		zap.Int("units", len(units)),
		zap.Int("groups", len(groups)),
		zap.Int("parallel", opts.Parallel),
	)

	// A failure inside one group never cancels the others, so the
	// errgroup is used purely for bounded concurrency.
	g := new(errgroup.Group)
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}
	for _, group := range groups {
		group := group
		g.Go(func() error {
			runGroup(ctx, opts, group, mode, res, log)
			return nil
		})
	}
	_ = g.Wait()

	reconcileRegions(ctx, opts, units, res, log)

	fmt.Println(res.Report())
	return exitFor(res)
}

// reconcileRegions sweeps every region the run touched for orphaned
// resources. It runs unconditionally, on a context detached from the
// signal handler: an interrupted run still gets its cleanup pass.
func reconcileRegions(ctx context.Context, opts Options, units []config.DeploymentUnit, res *lifecycle.RunResult, log *zap.Logger) {
	cleanupCtx := context.WithoutCancel(ctx)
	regions := lo.Uniq(lo.Map(units, func(u config.DeploymentUnit, _ int) string { return u.Region }))

	for _, region := range regions {
		rec, err := newReconciler(cleanupCtx, region, log)
		if err != nil {
			res.Record(fmt.Sprintf("initialize reconciler for %s", region), err)
			continue
		}
		for _, f := range rec.Reconcile(cleanupCtx, region).Failures() {
			res.Record(f.Name, errors.New(f.ErrorDetail))
		}
	}
}

func runGroup(ctx context.Context, opts Options, group []config.DeploymentUnit, mode lifecycle.Mode, res *lifecycle.RunResult, log *zap.Logger) {
	groupLog := log.With(zap.String("group", group[0].Alias))
	machine, err := newGroupMachine(ctx, opts, groupLog)
	if err != nil {
		res.Record(fmt.Sprintf("initialize group %s", group[0].Alias), err)
		res.Escalate(lifecycle.ExitProvisionFailure)
		return
	}
	machine.Run(ctx, group, mode, res)
}
