package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	cmd := Apply()

	require.NotNil(t, cmd)
	assert.Equal(t, "apply", cmd.Use)
	assert.NotNil(t, cmd.RunE, "Apply command should have RunE function")
}

func TestApply_Flags(t *testing.T) {
	cmd := Apply()

	dir := cmd.Flags().Lookup("dir")
	require.NotNil(t, dir)
	assert.Equal(t, "d", dir.Shorthand)
	assert.Equal(t, "deployments", dir.DefValue)

	roots := cmd.Flags().Lookup("roots")
	require.NotNil(t, roots)
	assert.Equal(t, "terraform", roots.DefValue)

	region := cmd.Flags().Lookup("region")
	require.NotNil(t, region)
	assert.Equal(t, "r", region.Shorthand)

	parallel := cmd.Flags().Lookup("parallel")
	require.NotNil(t, parallel)
	assert.Equal(t, "4", parallel.DefValue)

	verbose := cmd.Flags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "false", verbose.DefValue)
}

func TestDestroy_Flags(t *testing.T) {
	cmd := Destroy()

	require.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("dir"))
	assert.NotNil(t, cmd.Flags().Lookup("parallel"))
}

func TestReconcile_Flags(t *testing.T) {
	cmd := Reconcile()

	require.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("region"))
	assert.Nil(t, cmd.Flags().Lookup("dir"), "reconcile needs no descriptor directory")
}

func TestValidate_Flags(t *testing.T) {
	cmd := Validate()

	require.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("dir"))
}
