package config

import (
	"context"
	"fmt"
	"strings"
)

// ParamSentinel prefixes an account-ID field that must be looked up in
// the regional parameter store instead of being used literally.
const ParamSentinel = "ssm:"

// ParameterClient looks up values in a region-scoped parameter store.
// Implemented by platform/aws.ParameterStore.
type ParameterClient interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Resolver turns raw descriptors into concrete deployment units.
type Resolver struct {
	Params ParameterClient
}

// NewResolver creates a resolver backed by the given parameter store.
func NewResolver(params ParameterClient) *Resolver {
	return &Resolver{Params: params}
}

// Resolve resolves parameter indirection in a single descriptor and
// validates the result.
func (r *Resolver) Resolve(ctx context.Context, raw RawDescriptor) (DeploymentUnit, error) {
	accountID, err := r.resolveAccountRef(ctx, raw.AccountID)
	if err != nil {
		return DeploymentUnit{}, fmt.Errorf("descriptor %s: account_id: %w", raw.Alias, err)
	}

	regionalAccountID := raw.RegionalAccountID
	if raw.Kind == KindManagement {
		regionalAccountID, err = r.resolveAccountRef(ctx, raw.RegionalAccountID)
		if err != nil {
			return DeploymentUnit{}, fmt.Errorf("descriptor %s: regional_account_id: %w", raw.Alias, err)
		}
	}

	unit := DeploymentUnit{
		Kind:              raw.Kind,
		Alias:             raw.Alias,
		AccountID:         accountID,
		Region:            raw.Region,
		RegionalAccountID: regionalAccountID,
		DeleteRequested:   bool(raw.DeleteRequested),
		ConfigRevision:    raw.ConfigRevision,
		Overrides:         raw.Overrides,
	}

	if err := unit.Validate(); err != nil {
		return DeploymentUnit{}, fmt.Errorf("descriptor %s: %w", raw.Alias, err)
	}
	return unit, nil
}

// ResolveAll resolves each descriptor independently. A resolution failure
// is fatal for that unit only; siblings are still resolved. Returned
// units are in provisioning order.
func (r *Resolver) ResolveAll(ctx context.Context, raws []RawDescriptor) ([]DeploymentUnit, []error) {
	units := make([]DeploymentUnit, 0, len(raws))
	var errs []error
	for _, raw := range raws {
		unit, err := r.Resolve(ctx, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		units = append(units, unit)
	}
	return ProvisionOrder(units), errs
}

// resolveAccountRef resolves a literal or sentinel-prefixed account
// reference into a concrete account ID.
func (r *Resolver) resolveAccountRef(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, ParamSentinel) {
		return ref, nil
	}

	name := strings.TrimPrefix(ref, ParamSentinel)
	if name == "" {
		return "", fmt.Errorf("malformed parameter reference %q", ref)
	}
	if r.Params == nil {
		return "", fmt.Errorf("parameter reference %q: no parameter store configured", ref)
	}

	value, err := r.Params.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve parameter %q: %w", name, err)
	}
	if !accountIDPattern.MatchString(value) {
		return "", fmt.Errorf("parameter %q resolved to %q, not a 12-digit account identifier", name, value)
	}
	return value, nil
}
