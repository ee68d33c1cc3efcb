package aws

// Resource tags identifying what the orchestrator manages. Reclamation
// only ever touches resources carrying TagManaged; everything else is
// out of bounds.
const (
	TagManaged      = "flotilla.io/managed"
	TagManagedValue = "true"

	// TagPendingCleanup marks a resource an interrupted destroy run
	// failed to release.
	TagPendingCleanup      = "flotilla.io/pending-cleanup"
	TagPendingCleanupValue = "true"
)
