package config

import "gopkg.in/yaml.v3"

// Kind identifies the role of a deployment unit.
type Kind string

const (
	// KindRegional is the per-region control-plane cluster that
	// management clusters depend on.
	KindRegional Kind = "regional"
	// KindManagement is a dependent cluster tied to exactly one
	// regional cluster.
	KindManagement Kind = "management"
)

// FlexBool is a fail-closed boolean. Anything that does not decode as an
// explicit YAML true (absent, null, malformed) becomes false. A corrupted
// declaration must never read as an instruction to delete infrastructure.
type FlexBool bool

// UnmarshalYAML implements yaml.Unmarshaler. Only a node the resolver
// tagged as a boolean with the canonical spelling counts: YAML 1.1
// truthy spellings like "yes", "on" or "Y" also resolve to !!bool, and
// must not open the gate.
func (b *FlexBool) UnmarshalYAML(value *yaml.Node) error {
	*b = false
	if value.Tag != "!!bool" {
		return nil
	}
	switch value.Value {
	case "true", "True", "TRUE":
		*b = true
	}
	return nil
}

// RawDescriptor is the on-disk shape of a deployment descriptor before
// parameter indirection is resolved.
type RawDescriptor struct {
	Kind              Kind              `yaml:"kind"`
	Alias             string            `yaml:"alias"`
	AccountID         string            `yaml:"account_id"`
	Region            string            `yaml:"region"`
	RegionalAccountID string            `yaml:"regional_account_id,omitempty"`
	DeleteRequested   FlexBool          `yaml:"delete_requested,omitempty"`
	ConfigRevision    string            `yaml:"config_revision,omitempty"`
	Overrides         map[string]string `yaml:"overrides,omitempty"`
}

// DeploymentUnit is a fully-resolved deployment target. All account IDs
// are concrete 12-digit identifiers.
type DeploymentUnit struct {
	Kind              Kind
	Alias             string
	AccountID         string
	Region            string
	RegionalAccountID string
	DeleteRequested   bool
	ConfigRevision    string
	Overrides         map[string]string
}

// IsRegional reports whether the unit is a regional control-plane cluster.
func (u DeploymentUnit) IsRegional() bool {
	return u.Kind == KindRegional
}

// DependsOn reports whether u (a management unit) depends on the given
// regional unit.
func (u DeploymentUnit) DependsOn(regional DeploymentUnit) bool {
	return u.Kind == KindManagement &&
		regional.Kind == KindRegional &&
		u.RegionalAccountID == regional.AccountID
}

// StateKey returns the deployment-unit-scoped remote state key.
func (u DeploymentUnit) StateKey() string {
	return string(u.Kind) + "/" + u.Alias + ".tfstate"
}
