package config

import "github.com/samber/lo"

// ProvisionOrder returns units with every regional unit before every
// management unit, stable within each kind. Management clusters need
// their regional control plane to exist first.
func ProvisionOrder(units []DeploymentUnit) []DeploymentUnit {
	regional, management := lo.FilterReject(units, func(u DeploymentUnit, _ int) bool {
		return u.IsRegional()
	})
	return append(regional, management...)
}

// DestroyOrder is the inverse of ProvisionOrder: management units must be
// torn down before the regional unit they depend on.
func DestroyOrder(units []DeploymentUnit) []DeploymentUnit {
	management, regional := lo.FilterReject(units, func(u DeploymentUnit, _ int) bool {
		return u.Kind == KindManagement
	})
	return append(management, regional...)
}

// ManagementUnitsOf returns the management units depending on the given
// regional unit.
func ManagementUnitsOf(regional DeploymentUnit, units []DeploymentUnit) []DeploymentUnit {
	return lo.Filter(units, func(u DeploymentUnit, _ int) bool {
		return u.DependsOn(regional)
	})
}
