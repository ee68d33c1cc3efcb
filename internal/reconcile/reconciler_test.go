package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/lifecycle"
	awsp "github.com/tobkre/flotilla/internal/platform/aws"
)

// fakeCloud simulates the per-region cloud state the janitors act on.
// Actions mutate it, so a second reconciliation sees the cleaned state.
type fakeCloud struct {
	pendingSecrets []string
	orphanIPs      []awsp.Address
	gateways       []awsp.Gateway

	reclaimCalls int
	releaseCalls int
	deleteCalls  int

	reclaimErr error
	deleteErr  error
}

func (f *fakeCloud) ListPendingDeletion(context.Context) ([]string, error) {
	return append([]string(nil), f.pendingSecrets...), nil
}

func (f *fakeCloud) Reclaim(_ context.Context, arn string) error {
	f.reclaimCalls++
	if f.reclaimErr != nil {
		return f.reclaimErr
	}
	for i, s := range f.pendingSecrets {
		if s == arn {
			f.pendingSecrets = append(f.pendingSecrets[:i], f.pendingSecrets[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeCloud) ListOrphanAddresses(context.Context) ([]awsp.Address, error) {
	return append([]awsp.Address(nil), f.orphanIPs...), nil
}

func (f *fakeCloud) ReleaseAddress(_ context.Context, allocationID string) error {
	f.releaseCalls++
	for i, a := range f.orphanIPs {
		if a.AllocationID == allocationID {
			f.orphanIPs = append(f.orphanIPs[:i], f.orphanIPs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeCloud) ListAbandonedGateways(context.Context) ([]awsp.Gateway, error) {
	return append([]awsp.Gateway(nil), f.gateways...), nil
}

func (f *fakeCloud) DeleteGateway(_ context.Context, id string) error {
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, g := range f.gateways {
		if g.ID == id {
			f.gateways = append(f.gateways[:i], f.gateways[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeCloud) WaitGatewayDeleted(context.Context, string, time.Duration) error {
	return nil
}

func newTestReconciler(cloud *fakeCloud) *Reconciler {
	r := New(cloud, cloud, zap.NewNop())
	r.delay = time.Millisecond
	r.settle = 10 * time.Millisecond
	return r
}

func TestReconcileReclaimsAllClasses(t *testing.T) {
	cloud := &fakeCloud{
		pendingSecrets: []string{"arn:secret:1"},
		orphanIPs:      []awsp.Address{{AllocationID: "eipalloc-1", PublicIP: "203.0.113.10"}},
		gateways: []awsp.Gateway{
			{ID: "nat-1", State: "failed", AllocationIDs: []string{"eipalloc-gw"}},
		},
	}

	res := newTestReconciler(cloud).Reconcile(context.Background(), "eu-central-1")

	assert.Equal(t, lifecycle.ExitSuccess, res.ExitReason())
	assert.Zero(t, res.FailureCount())
	assert.Equal(t, 1, cloud.reclaimCalls)
	assert.Equal(t, 1, cloud.deleteCalls)
	// eipalloc-1 directly, eipalloc-gw after the gateway settled.
	assert.Equal(t, 2, cloud.releaseCalls)
	assert.Empty(t, cloud.pendingSecrets)
	assert.Empty(t, cloud.gateways)
}

func TestReconcileIsIdempotent(t *testing.T) {
	cloud := &fakeCloud{
		pendingSecrets: []string{"arn:secret:1"},
		orphanIPs:      []awsp.Address{{AllocationID: "eipalloc-1"}},
		gateways:       []awsp.Gateway{{ID: "nat-1", State: "failed"}},
	}
	r := newTestReconciler(cloud)

	first := r.Reconcile(context.Background(), "eu-central-1")
	require.Equal(t, lifecycle.ExitSuccess, first.ExitReason())

	actionsAfterFirst := cloud.reclaimCalls + cloud.releaseCalls + cloud.deleteCalls

	second := r.Reconcile(context.Background(), "eu-central-1")
	assert.Equal(t, lifecycle.ExitSuccess, second.ExitReason())
	assert.Equal(t, actionsAfterFirst, cloud.reclaimCalls+cloud.releaseCalls+cloud.deleteCalls,
		"second pass on clean state must perform zero actions")
}

func TestReconcileRecordsFailuresWithoutAborting(t *testing.T) {
	cloud := &fakeCloud{
		pendingSecrets: []string{"arn:secret:1"},
		orphanIPs:      []awsp.Address{{AllocationID: "eipalloc-1"}},
		reclaimErr:     errors.New("kms key unavailable"),
	}
	r := newTestReconciler(cloud)

	res := r.Reconcile(context.Background(), "eu-central-1")

	assert.Equal(t, lifecycle.ExitCleanupFailure, res.ExitReason())
	assert.Equal(t, 1, res.FailureCount())
	// The address pass still ran despite the secret failure.
	assert.Equal(t, 1, cloud.releaseCalls)
	// The failed reclaim was retried before being recorded.
	assert.Equal(t, 3, cloud.reclaimCalls)
	assert.Contains(t, res.Report(), "kms key unavailable")
}

func TestReconcileFailedGatewayDeleteKeepsAllocationPinned(t *testing.T) {
	cloud := &fakeCloud{
		gateways:  []awsp.Gateway{{ID: "nat-1", State: "failed", AllocationIDs: []string{"eipalloc-gw"}}},
		deleteErr: errors.New("dependency violation"),
	}
	r := newTestReconciler(cloud)

	res := r.Reconcile(context.Background(), "eu-central-1")

	assert.Equal(t, lifecycle.ExitCleanupFailure, res.ExitReason())
	assert.Zero(t, cloud.releaseCalls, "allocation must not be released while the gateway exists")
}
