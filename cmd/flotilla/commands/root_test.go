package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "flotilla", cmd.Use)
	assert.Equal(t, "Orchestrate cluster lifecycles across AWS accounts", cmd.Short)
}

func TestRoot_HasSubcommands(t *testing.T) {
	cmd := Root()

	expectedSubcommands := []string{
		"validate",
		"apply",
		"destroy",
		"reconcile",
	}

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}

	for _, expected := range expectedSubcommands {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}
}

func TestRoot_VersionFlag(t *testing.T) {
	SetVersionInfo("1.2.3", "abc1234", "2026-08-29")

	cmd := Root()
	assert.Equal(t, "1.2.3 (commit abc1234, built 2026-08-29)", cmd.Version)
}
