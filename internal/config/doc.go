// Package config defines deployment descriptors and turns them into
// fully-resolved deployment units.
//
// Descriptors are declarative YAML documents committed by operators, one
// per cluster. Account IDs may be literal or indirect references into the
// regional parameter store; resolution happens once, at load time, so the
// rest of the orchestrator only ever sees concrete account IDs.
package config
