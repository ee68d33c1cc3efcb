package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/config"
	"github.com/tobkre/flotilla/internal/lifecycle"
)

// saveAndRestoreFactories snapshots the injectable factory variables and
// restores them when the test finishes.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()

	origLogger := buildLogger
	origLoad := loadDescriptorDir
	origSource := newUnitSource
	origMachine := newGroupMachine
	origReconciler := newReconciler

	t.Cleanup(func() {
		buildLogger = origLogger
		loadDescriptorDir = origLoad
		newUnitSource = origSource
		newGroupMachine = origMachine
		newReconciler = origReconciler
	})

	buildLogger = func(bool) *zap.Logger { return zap.NewNop() }
}

type stubSource struct {
	units []config.DeploymentUnit
	errs  []error
}

func (s *stubSource) ResolveAll(_ context.Context, _ []config.RawDescriptor) ([]config.DeploymentUnit, []error) {
	return s.units, s.errs
}

func (s *stubSource) Resolve(_ context.Context, raw config.RawDescriptor) (config.DeploymentUnit, error) {
	for _, u := range s.units {
		if u.Alias == raw.Alias {
			return u, nil
		}
	}
	return config.DeploymentUnit{}, errors.New("unknown descriptor")
}

type stubMachine struct {
	mu     sync.Mutex
	groups [][]config.DeploymentUnit
	mode   lifecycle.Mode
	fail   bool
}

func (s *stubMachine) Run(_ context.Context, units []config.DeploymentUnit, mode lifecycle.Mode, res *lifecycle.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, units)
	s.mode = mode
	if s.fail {
		res.Record("apply "+units[0].Alias, errors.New("quota exceeded"))
		res.Escalate(lifecycle.ExitProvisionFailure)
		return
	}
	for _, u := range units {
		res.Record("apply "+u.Alias, nil)
	}
}

func testUnits() []config.DeploymentUnit {
	return []config.DeploymentUnit{
		{Kind: config.KindRegional, Alias: "eu-1", AccountID: "111111111111", Region: "eu-central-1"},
		{Kind: config.KindManagement, Alias: "mc01-eu-1", AccountID: "222222222222", Region: "eu-central-1", RegionalAccountID: "111111111111"},
		{Kind: config.KindRegional, Alias: "us-1", AccountID: "333333333333", Region: "us-east-1"},
	}
}

func installStubs(t *testing.T, source *stubSource, machine *stubMachine) *stubReconciler {
	t.Helper()
	saveAndRestoreFactories(t)

	rec := &stubReconciler{}
	loadDescriptorDir = func(string) ([]config.RawDescriptor, error) {
		return make([]config.RawDescriptor, len(source.units)), nil
	}
	newUnitSource = func(context.Context, string) (unitSource, error) {
		return source, nil
	}
	newGroupMachine = func(context.Context, Options, *zap.Logger) (machineRunner, error) {
		return machine, nil
	}
	newReconciler = func(context.Context, string, *zap.Logger) (orphanReconciler, error) {
		return rec, nil
	}
	return rec
}

func TestApplyRunsEachGroup(t *testing.T) {
	machine := &stubMachine{}
	rec := installStubs(t, &stubSource{units: testUnits()}, machine)

	err := Apply(context.Background(), Options{Dir: "deployments", Region: "eu-central-1", Parallel: 2})
	require.NoError(t, err)

	// Two regional groups: eu-1 (+ its management unit) and us-1.
	assert.Len(t, machine.groups, 2)
	assert.Equal(t, lifecycle.ModeApply, machine.mode)
	// One cleanup sweep per region touched by the run.
	assert.Equal(t, 2, rec.calls)
}

func TestApplyCleanupFailureIsCleanupExit(t *testing.T) {
	machine := &stubMachine{}
	rec := installStubs(t, &stubSource{units: testUnits()}, machine)
	rec.fail = true

	err := Apply(context.Background(), Options{Parallel: 1})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.Code, "a clean lifecycle with failed cleanup exits with the cleanup code")
}

func TestApplyPropagatesProvisionFailure(t *testing.T) {
	machine := &stubMachine{fail: true}
	installStubs(t, &stubSource{units: testUnits()}, machine)

	err := Apply(context.Background(), Options{Parallel: 1})
	require.Error(t, err)

	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
}

func TestDestroyRunsInDestroyMode(t *testing.T) {
	machine := &stubMachine{}
	installStubs(t, &stubSource{units: testUnits()}, machine)

	err := Destroy(context.Background(), Options{Parallel: 1})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ModeDestroy, machine.mode)
}

func TestApplyNoDescriptorsSucceeds(t *testing.T) {
	machine := &stubMachine{}
	installStubs(t, &stubSource{}, machine)

	err := Apply(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, machine.groups)
}

func TestApplyUnreadableDirectoryIsValidationFailure(t *testing.T) {
	saveAndRestoreFactories(t)
	loadDescriptorDir = func(string) ([]config.RawDescriptor, error) {
		return nil, errors.New("no such directory")
	}

	err := Apply(context.Background(), Options{Dir: "missing"})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 2, exit.Code)
}

func TestValidateReportsBadDescriptors(t *testing.T) {
	machine := &stubMachine{}
	source := &stubSource{
		units: testUnits()[:1],
		errs:  []error{errors.New("descriptor mc77: account_id: not a 12-digit account identifier")},
	}
	installStubs(t, source, machine)

	err := Validate(context.Background(), Options{})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 2, exit.Code)
	assert.Empty(t, machine.groups, "validate must not drive any machine")
}

func TestValidateCleanDescriptors(t *testing.T) {
	installStubs(t, &stubSource{units: testUnits()}, &stubMachine{})

	err := Validate(context.Background(), Options{})
	require.NoError(t, err)
}

type stubReconciler struct {
	fail  bool
	calls int
}

func (s *stubReconciler) Reconcile(_ context.Context, _ string) *lifecycle.RunResult {
	s.calls++
	res := lifecycle.NewRunResult()
	if s.fail {
		res.Record("release address eipalloc-1", errors.New("AuthFailure"))
	}
	return res
}

func TestReconcileSuccess(t *testing.T) {
	saveAndRestoreFactories(t)
	rec := &stubReconciler{}
	newReconciler = func(context.Context, string, *zap.Logger) (orphanReconciler, error) {
		return rec, nil
	}

	err := Reconcile(context.Background(), Options{Region: "eu-central-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
}

func TestReconcileFailureIsCleanupExit(t *testing.T) {
	saveAndRestoreFactories(t)
	newReconciler = func(context.Context, string, *zap.Logger) (orphanReconciler, error) {
		return &stubReconciler{fail: true}, nil
	}

	err := Reconcile(context.Background(), Options{Region: "eu-central-1"})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.Code)
}

func TestReloadUnitFindsCurrentDescriptor(t *testing.T) {
	saveAndRestoreFactories(t)

	loadDescriptorDir = func(string) ([]config.RawDescriptor, error) {
		return []config.RawDescriptor{
			{Kind: config.KindManagement, Alias: "mc01-eu-1"},
		}, nil
	}
	newUnitSource = func(context.Context, string) (unitSource, error) {
		return &stubSource{units: []config.DeploymentUnit{
			{Kind: config.KindManagement, Alias: "mc01-eu-1", AccountID: "222222222222", DeleteRequested: false},
		}}, nil
	}

	reload := reloadUnit(Options{Dir: "deployments"})
	unit, err := reload(context.Background(), config.DeploymentUnit{
		Kind: config.KindManagement, Alias: "mc01-eu-1", DeleteRequested: true,
	})
	require.NoError(t, err)
	assert.False(t, unit.DeleteRequested, "reload must reflect the current descriptor")
}

func TestReloadUnitRemovedDescriptorKeepsIntent(t *testing.T) {
	saveAndRestoreFactories(t)

	loadDescriptorDir = func(string) ([]config.RawDescriptor, error) {
		return nil, nil
	}

	reload := reloadUnit(Options{Dir: "deployments"})
	unit, err := reload(context.Background(), config.DeploymentUnit{
		Kind: config.KindManagement, Alias: "mc01-eu-1", DeleteRequested: true,
	})
	require.NoError(t, err)
	assert.True(t, unit.DeleteRequested)
}
