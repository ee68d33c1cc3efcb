package config

import (
	"fmt"
	"regexp"
)

var (
	// accountIDPattern matches a concrete AWS account identifier.
	accountIDPattern = regexp.MustCompile(`^\d{12}$`)

	// aliasPattern keeps aliases safe for filesystem paths, state keys
	// and resource names.
	aliasPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

// Validate checks the resolved unit's invariants. It is called by the
// resolver after indirection has been applied, so every account ID must
// already be concrete.
func (u DeploymentUnit) Validate() error {
	switch u.Kind {
	case KindRegional, KindManagement:
	default:
		return fmt.Errorf("unknown kind %q (must be %q or %q)", u.Kind, KindRegional, KindManagement)
	}

	if u.Alias == "" {
		return fmt.Errorf("alias is required")
	}
	if !aliasPattern.MatchString(u.Alias) {
		return fmt.Errorf("invalid alias %q: must match %s", u.Alias, aliasPattern)
	}
	if !accountIDPattern.MatchString(u.AccountID) {
		return fmt.Errorf("invalid account_id %q: must be a 12-digit account identifier", u.AccountID)
	}
	if u.Region == "" {
		return fmt.Errorf("region is required")
	}

	if u.Kind == KindManagement {
		if u.RegionalAccountID == "" {
			return fmt.Errorf("management unit %s: regional_account_id is required", u.Alias)
		}
		if !accountIDPattern.MatchString(u.RegionalAccountID) {
			return fmt.Errorf("management unit %s: invalid regional_account_id %q", u.Alias, u.RegionalAccountID)
		}
	}

	return nil
}
