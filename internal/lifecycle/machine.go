package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/config"
	awsp "github.com/tobkre/flotilla/internal/platform/aws"
	"github.com/tobkre/flotilla/internal/util/retry"
)

// InfraEngine drives the infrastructure-as-code tool for one unit.
// Implemented by terraform.Engine.
type InfraEngine interface {
	// HasConfig reports whether an engine configuration exists for the
	// unit's infrastructure root.
	HasConfig(unit config.DeploymentUnit) bool
	Apply(ctx context.Context, unit config.DeploymentUnit, creds awsp.CredentialContext) error
	Destroy(ctx context.Context, unit config.DeploymentUnit, creds awsp.CredentialContext) error
	// DestroyPipeline tears down the unit's delivery pipeline. It runs
	// last: the pipeline is the thing doing the tearing down.
	DestroyPipeline(ctx context.Context, unit config.DeploymentUnit, creds awsp.CredentialContext) error
}

// Bootstrapper hands an applied cluster to the CD controller.
type Bootstrapper interface {
	Run(ctx context.Context, unit config.DeploymentUnit) error
}

// MarkerStore records which units have been applied.
type MarkerStore interface {
	Put(ctx context.Context, unit config.DeploymentUnit) error
	Exists(ctx context.Context, unit config.DeploymentUnit) (bool, error)
	Delete(ctx context.Context, unit config.DeploymentUnit) error
}

// CredentialSource scopes operations to account identities.
// Implemented by platform/aws.Broker.
type CredentialSource interface {
	OwnAccount() string
	Assume(ctx context.Context, accountID, sessionLabel string) (awsp.CredentialContext, error)
	WithScope(cctx awsp.CredentialContext, fn func() error) error
}

// Machine sequences lifecycle transitions for a set of deployment
// units. A machine processes its units sequentially; callers that want
// parallel regional groups run one machine per group.
type Machine struct {
	Broker    CredentialSource
	Engine    InfraEngine
	Bootstrap Bootstrapper
	Markers   MarkerStore
	Log       *zap.Logger

	// ReloadUnit re-reads a unit's descriptor so the destroy gate can
	// be re-evaluated between phases. Nil keeps the in-memory unit.
	ReloadUnit func(ctx context.Context, unit config.DeploymentUnit) (config.DeploymentUnit, error)

	mu     sync.Mutex
	states map[string]UnitState
}

// NewMachine creates a lifecycle machine.
func NewMachine(broker CredentialSource, engine InfraEngine, bootstrap Bootstrapper, markers MarkerStore, log *zap.Logger) *Machine {
	return &Machine{
		Broker:    broker,
		Engine:    engine,
		Bootstrap: bootstrap,
		Markers:   markers,
		Log:       log,
		states:    make(map[string]UnitState),
	}
}

// State returns the tracked state of a unit, defaulting to Validated.
func (m *Machine) State(alias string) UnitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[alias]; ok {
		return s
	}
	return StateValidated
}

func (m *Machine) setState(alias string, s UnitState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[alias] = s
}

// transition moves a unit to the next state, failing fatally on an
// illegal move.
func (m *Machine) transition(alias string, next UnitState) error {
	current := m.State(alias)
	if !current.CanTransition(next) {
		return retry.Fatal(fmt.Errorf("unit %s: illegal transition %s -> %s", alias, current, next))
	}
	m.setState(alias, next)
	m.Log.Debug("unit transition",
		zap.String("alias", alias),
		zap.String("from", string(current)),
		zap.String("to", string(next)),
	)
	return nil
}

// Mode selects the direction of a lifecycle run.
type Mode int

const (
	// ModeApply provisions units whose destroy gate is closed.
	ModeApply Mode = iota
	// ModeDestroy tears down units whose destroy gate is open.
	ModeDestroy
)

// Run processes every unit in dependency order and aggregates outcomes.
// A fatal failure in one unit never aborts units in other dependency
// groups; within a group, management units are skipped once their
// regional unit has failed.
func (m *Machine) Run(ctx context.Context, units []config.DeploymentUnit, mode Mode, res *RunResult) {
	switch mode {
	case ModeApply:
		for _, unit := range config.ProvisionOrder(units) {
			if ShouldDestroy(unit) {
				m.Log.Info("skipping unit marked for deletion", zap.String("alias", unit.Alias))
				continue
			}
			if err := m.regionalPreconditionFailed(unit, units); err != nil {
				res.Record(fmt.Sprintf("provision %s", unit.Alias), err)
				res.Escalate(ExitProvisionFailure)
				m.setState(unit.Alias, StateFailed)
				continue
			}
			if err := m.ProvisionUnit(ctx, unit, res); err != nil {
				m.Log.Error("unit provisioning failed", zap.String("alias", unit.Alias), zap.Error(err))
			}
		}
	case ModeDestroy:
		for _, unit := range config.DestroyOrder(units) {
			if err := m.DestroyUnit(ctx, unit, units, res); err != nil {
				m.Log.Error("unit destruction failed", zap.String("alias", unit.Alias), zap.Error(err))
			}
		}
	}
}

// regionalPreconditionFailed reports an error when a management unit's
// regional counterpart is part of this run but failed to provision.
func (m *Machine) regionalPreconditionFailed(unit config.DeploymentUnit, peers []config.DeploymentUnit) error {
	if unit.Kind != config.KindManagement {
		return nil
	}
	for _, peer := range peers {
		if peer.Kind == config.KindRegional && peer.AccountID == unit.RegionalAccountID {
			if m.State(peer.Alias) == StateFailed {
				return fmt.Errorf("regional unit %s failed, cannot provision dependent %s", peer.Alias, unit.Alias)
			}
		}
	}
	return nil
}

// ProvisionUnit takes one unit from Validated to BootstrapComplete:
// apply infrastructure under the target account, record the applied
// marker under the central account, then bootstrap the CD controller.
func (m *Machine) ProvisionUnit(ctx context.Context, unit config.DeploymentUnit, res *RunResult) error {
	m.Log.Info("provisioning unit",
		zap.String("alias", unit.Alias),
		zap.String("kind", string(unit.Kind)),
		zap.String("account", unit.AccountID),
	)

	targetCreds, err := m.Broker.Assume(ctx, unit.AccountID, "apply-"+unit.Alias)
	if err != nil {
		return m.failUnit(unit, res, fmt.Sprintf("assume target account for %s", unit.Alias), err, ExitProvisionFailure)
	}

	err = m.Broker.WithScope(targetCreds, func() error {
		return m.Engine.Apply(ctx, unit, targetCreds)
	})
	if err != nil {
		return m.failUnit(unit, res, fmt.Sprintf("apply %s", unit.Alias), err, ExitProvisionFailure)
	}
	res.Record(fmt.Sprintf("apply %s", unit.Alias), nil)
	if err := m.transition(unit.Alias, StateApplied); err != nil {
		return err
	}

	if err := m.withCentralScope(ctx, "marker-"+unit.Alias, func() error {
		return m.Markers.Put(ctx, unit)
	}); err != nil {
		// The apply itself succeeded; a missing marker only degrades
		// the never-provisioned check on a later destroy.
		res.Record(fmt.Sprintf("record applied marker for %s", unit.Alias), err)
	}

	if err := m.Bootstrap.Run(ctx, unit); err != nil {
		return m.failUnit(unit, res, fmt.Sprintf("bootstrap %s", unit.Alias), err, ExitProvisionFailure)
	}
	res.Record(fmt.Sprintf("bootstrap %s", unit.Alias), nil)

	return m.transition(unit.Alias, StateBootstrapComplete)
}

// DestroyUnit takes one unit through the teardown path. The destroy
// gate is evaluated here and again, from a freshly reloaded descriptor,
// before the pipeline goes: configuration may have changed between
// phases.
func (m *Machine) DestroyUnit(ctx context.Context, unit config.DeploymentUnit, peers []config.DeploymentUnit, res *RunResult) error {
	if !ShouldDestroy(unit) {
		m.Log.Info("destroy gate closed, leaving unit untouched", zap.String("alias", unit.Alias))
		return nil
	}

	if err := m.transition(unit.Alias, StateDestroyRequested); err != nil {
		res.Record(fmt.Sprintf("destroy %s", unit.Alias), err)
		res.Escalate(ExitProvisionFailure)
		return err
	}

	if unit.IsRegional() {
		if err := m.checkDependentsDestroyed(ctx, unit, peers); err != nil {
			return m.failUnit(unit, res, fmt.Sprintf("destroy precondition for %s", unit.Alias), err, ExitProvisionFailure)
		}
	}

	// Tell "never provisioned" apart from a missing configuration: a
	// unit without an engine config is skipped only when no applied
	// marker exists for it.
	if !m.Engine.HasConfig(unit) {
		applied, err := m.markerExists(ctx, unit)
		if err != nil {
			return m.failUnit(unit, res, fmt.Sprintf("check applied marker for %s", unit.Alias), err, ExitProvisionFailure)
		}
		if applied {
			err := fmt.Errorf("unit %s was previously applied but has no engine configuration", unit.Alias)
			return m.failUnit(unit, res, fmt.Sprintf("destroy %s", unit.Alias), retry.Fatal(err), ExitProvisionFailure)
		}
		m.Log.Warn("unit was never provisioned, skipping destroy", zap.String("alias", unit.Alias))
		res.Record(fmt.Sprintf("destroy %s (never provisioned, skipped)", unit.Alias), nil)
		m.setState(unit.Alias, StatePipelineDestroyed)
		return nil
	}

	targetCreds, err := m.Broker.Assume(ctx, unit.AccountID, "destroy-"+unit.Alias)
	if err != nil {
		return m.failUnit(unit, res, fmt.Sprintf("assume target account for %s", unit.Alias), err, ExitProvisionFailure)
	}

	err = m.Broker.WithScope(targetCreds, func() error {
		return m.Engine.Destroy(ctx, unit, targetCreds)
	})
	if err != nil {
		return m.failUnit(unit, res, fmt.Sprintf("destroy infrastructure %s", unit.Alias), err, ExitProvisionFailure)
	}
	res.Record(fmt.Sprintf("destroy infrastructure %s", unit.Alias), nil)
	if err := m.transition(unit.Alias, StateInfrastructureDestroyed); err != nil {
		return err
	}

	// Gate re-evaluation between phases, from fresh configuration.
	current := unit
	if m.ReloadUnit != nil {
		current, err = m.ReloadUnit(ctx, unit)
		if err != nil {
			return m.failUnit(unit, res, fmt.Sprintf("reload descriptor for %s", unit.Alias), err, ExitProvisionFailure)
		}
	}
	if !ShouldDestroy(current) {
		m.Log.Warn("destroy gate closed between phases, keeping pipeline", zap.String("alias", unit.Alias))
		res.Record(fmt.Sprintf("destroy pipeline %s (gate closed, skipped)", unit.Alias), nil)
		return nil
	}

	err = m.Broker.WithScope(targetCreds, func() error {
		return m.Engine.DestroyPipeline(ctx, unit, targetCreds)
	})
	if err != nil {
		// The infrastructure is gone; a lingering pipeline is a
		// cleanup concern, not a reason to abort siblings.
		res.Record(fmt.Sprintf("destroy pipeline %s", unit.Alias), err)
		return nil
	}
	res.Record(fmt.Sprintf("destroy pipeline %s", unit.Alias), nil)

	if err := m.withCentralScope(ctx, "marker-"+unit.Alias, func() error {
		return m.Markers.Delete(ctx, unit)
	}); err != nil {
		res.Record(fmt.Sprintf("remove applied marker for %s", unit.Alias), err)
	}

	return m.transition(unit.Alias, StatePipelineDestroyed)
}

// checkDependentsDestroyed enforces the ordering invariant: a regional
// unit is only destroyable once every dependent management unit is in a
// terminal destroyed state or was never provisioned at all.
//
// Only management units declared in the current run are visible here:
// the applied marker carries no account linkage, so a unit whose
// descriptor was already removed cannot be attributed to a regional
// unit anymore. Descriptors must outlive their infrastructure — remove
// a management descriptor only after its destroy has completed.
func (m *Machine) checkDependentsDestroyed(ctx context.Context, regional config.DeploymentUnit, peers []config.DeploymentUnit) error {
	for _, dep := range config.ManagementUnitsOf(regional, peers) {
		if m.State(dep.Alias).Destroyed() {
			continue
		}
		applied, err := m.markerExists(ctx, dep)
		if err != nil {
			return err
		}
		if applied {
			return retry.Fatal(fmt.Errorf(
				"regional unit %s cannot be destroyed: dependent management unit %s still exists (state %s)",
				regional.Alias, dep.Alias, m.State(dep.Alias)))
		}
	}
	return nil
}

func (m *Machine) markerExists(ctx context.Context, unit config.DeploymentUnit) (bool, error) {
	var applied bool
	err := m.withCentralScope(ctx, "marker-"+unit.Alias, func() error {
		var err error
		applied, err = m.Markers.Exists(ctx, unit)
		return err
	})
	return applied, err
}

// withCentralScope runs fn under the central (orchestration) account.
func (m *Machine) withCentralScope(ctx context.Context, label string, fn func() error) error {
	creds, err := m.Broker.Assume(ctx, m.Broker.OwnAccount(), label)
	if err != nil {
		return err
	}
	return m.Broker.WithScope(creds, fn)
}

// failUnit records a fatal unit failure, escalates the run
// classification and marks the unit failed.
func (m *Machine) failUnit(unit config.DeploymentUnit, res *RunResult, step string, err error, reason ExitReason) error {
	res.Record(step, err)
	res.Escalate(reason)
	m.setState(unit.Alias, StateFailed)
	return err
}

// GroupByRegional splits units into independent dependency groups, one
// per regional account, so callers can run the groups in parallel.
// Management units whose regional counterpart is not part of the run
// form their own group per regional account.
func GroupByRegional(units []config.DeploymentUnit) [][]config.DeploymentUnit {
	groups := make(map[string][]config.DeploymentUnit)
	var order []string

	keyOf := func(u config.DeploymentUnit) string {
		if u.IsRegional() {
			return u.AccountID
		}
		return u.RegionalAccountID
	}

	for _, u := range units {
		k := keyOf(u)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], u)
	}

	out := make([][]config.DeploymentUnit, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}
