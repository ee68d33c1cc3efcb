// Package reconcile reclaims cloud resources whose lifecycle has
// desynchronized from the orchestrator: secrets stuck in their
// soft-delete grace period, unattached elastic IPs, and NAT gateways an
// interrupted destroy left behind.
//
// Reconciliation is best-effort and idempotent, not transactional. Every
// action is retried and recorded; one irreclaimable resource never
// blocks the rest, and a resource that is already gone counts as
// success. Only resources carrying the orchestrator's management tag are
// ever touched.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tobkre/flotilla/internal/lifecycle"
	awsp "github.com/tobkre/flotilla/internal/platform/aws"
	"github.com/tobkre/flotilla/internal/util/retry"
)

// SecretsReclaimer reclaims soft-deleted secrets.
// Implemented by platform/aws.SecretsJanitor.
type SecretsReclaimer interface {
	ListPendingDeletion(ctx context.Context) ([]string, error)
	Reclaim(ctx context.Context, arn string) error
}

// NetworkReclaimer reclaims leaked network resources.
// Implemented by platform/aws.NetworkJanitor.
type NetworkReclaimer interface {
	ListOrphanAddresses(ctx context.Context) ([]awsp.Address, error)
	ReleaseAddress(ctx context.Context, allocationID string) error
	ListAbandonedGateways(ctx context.Context) ([]awsp.Gateway, error)
	DeleteGateway(ctx context.Context, id string) error
	WaitGatewayDeleted(ctx context.Context, id string, deadline time.Duration) error
}

const gatewaySettleDeadline = 5 * time.Minute

// Reconciler scans for and reclaims orphaned resources in one region.
type Reconciler struct {
	Secrets SecretsReclaimer
	Network NetworkReclaimer
	Log     *zap.Logger

	attempts uint
	delay    time.Duration
	settle   time.Duration
}

// New creates a reconciler.
func New(secrets SecretsReclaimer, network NetworkReclaimer, log *zap.Logger) *Reconciler {
	return &Reconciler{
		Secrets:  secrets,
		Network:  network,
		Log:      log,
		attempts: 3,
		delay:    2 * time.Second,
		settle:   gatewaySettleDeadline,
	}
}

// Reconcile runs all resource-class passes and reports per-step
// outcomes. The passes share no state except the result sink, so they
// run concurrently.
func (r *Reconciler) Reconcile(ctx context.Context, region string) *lifecycle.RunResult {
	res := lifecycle.NewRunResult()
	r.Log.Info("starting orphan reconciliation", zap.String("region", region))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.reconcileSecrets(gctx, res)
		return nil
	})
	g.Go(func() error {
		r.reconcileAddresses(gctx, res)
		return nil
	})
	g.Go(func() error {
		r.reconcileGateways(gctx, res)
		return nil
	})
	_ = g.Wait() // passes never return errors; everything lands in res

	r.Log.Info("orphan reconciliation finished",
		zap.String("region", region),
		zap.Int("failures", res.FailureCount()),
	)
	return res
}

// reconcileSecrets restores and force-deletes managed secrets stuck in
// their soft-delete grace period.
func (r *Reconciler) reconcileSecrets(ctx context.Context, res *lifecycle.RunResult) {
	arns, err := r.Secrets.ListPendingDeletion(ctx)
	if err != nil {
		res.Record("scan pending-deletion secrets", err)
		return
	}
	res.Record("scan pending-deletion secrets", nil)

	for _, arn := range arns {
		arn := arn
		r.Log.Info("reclaiming pending-deletion secret", zap.String("arn", arn))
		err := retry.Do(ctx, func() error {
			return r.Secrets.Reclaim(ctx, arn)
		}, retry.Attempts(r.attempts), retry.Delay(r.delay))
		res.Record(fmt.Sprintf("reclaim secret %s", arn), err)
	}
}

// reconcileAddresses releases managed elastic IPs with no association.
func (r *Reconciler) reconcileAddresses(ctx context.Context, res *lifecycle.RunResult) {
	orphans, err := r.Network.ListOrphanAddresses(ctx)
	if err != nil {
		res.Record("scan unattached addresses", err)
		return
	}
	res.Record("scan unattached addresses", nil)

	for _, addr := range orphans {
		addr := addr
		r.Log.Info("releasing unattached address",
			zap.String("allocation", addr.AllocationID),
			zap.String("ip", addr.PublicIP),
		)
		err := retry.Do(ctx, func() error {
			return r.Network.ReleaseAddress(ctx, addr.AllocationID)
		}, retry.Attempts(r.attempts), retry.Delay(r.delay))
		res.Record(fmt.Sprintf("release address %s", addr.AllocationID), err)
	}
}

// reconcileGateways deletes abandoned NAT gateways, waits for them to
// settle, then releases the allocations they held. The parent must be
// gone before the child can be released.
func (r *Reconciler) reconcileGateways(ctx context.Context, res *lifecycle.RunResult) {
	gateways, err := r.Network.ListAbandonedGateways(ctx)
	if err != nil {
		res.Record("scan abandoned NAT gateways", err)
		return
	}
	res.Record("scan abandoned NAT gateways", nil)

	for _, gw := range gateways {
		gw := gw
		r.Log.Info("deleting abandoned NAT gateway",
			zap.String("gateway", gw.ID),
			zap.String("state", gw.State),
		)

		err := retry.Do(ctx, func() error {
			return r.Network.DeleteGateway(ctx, gw.ID)
		}, retry.Attempts(r.attempts), retry.Delay(r.delay))
		res.Record(fmt.Sprintf("delete NAT gateway %s", gw.ID), err)
		if err != nil {
			// The allocations are still pinned; leave them for the
			// next reconciliation.
			continue
		}

		if err := r.Network.WaitGatewayDeleted(ctx, gw.ID, r.settle); err != nil {
			res.Record(fmt.Sprintf("wait for NAT gateway %s", gw.ID), err)
			continue
		}

		for _, alloc := range gw.AllocationIDs {
			alloc := alloc
			err := retry.Do(ctx, func() error {
				return r.Network.ReleaseAddress(ctx, alloc)
			}, retry.Attempts(r.attempts), retry.Delay(r.delay))
			res.Record(fmt.Sprintf("release address %s", alloc), err)
		}
	}
}
