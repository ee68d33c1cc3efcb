package terraform

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/config"
	awsp "github.com/tobkre/flotilla/internal/platform/aws"
)

// Engine maps deployment units onto engine root directories and remote
// state coordinates. It satisfies lifecycle.InfraEngine.
//
// Roots are laid out as <RootsDir>/<kind>/<alias>/infrastructure and
// <RootsDir>/<kind>/<alias>/pipeline; remote state lives in the central
// account's state bucket under a unit-scoped key.
type Engine struct {
	RootsDir      string
	StateBucket   string
	BackendRegion string
	Log           *zap.Logger
}

// NewEngine creates an engine for the given roots directory and central
// state bucket.
func NewEngine(rootsDir, stateBucket, backendRegion string, log *zap.Logger) *Engine {
	return &Engine{
		RootsDir:      rootsDir,
		StateBucket:   stateBucket,
		BackendRegion: backendRegion,
		Log:           log,
	}
}

func (e *Engine) infraDir(unit config.DeploymentUnit) string {
	return filepath.Join(e.RootsDir, string(unit.Kind), unit.Alias, "infrastructure")
}

func (e *Engine) pipelineDir(unit config.DeploymentUnit) string {
	return filepath.Join(e.RootsDir, string(unit.Kind), unit.Alias, "pipeline")
}

func (e *Engine) backend(unit config.DeploymentUnit) Backend {
	return Backend{
		Bucket: e.StateBucket,
		Key:    unit.StateKey(),
		Region: e.BackendRegion,
	}
}

func (e *Engine) pipelineBackend(unit config.DeploymentUnit) Backend {
	return Backend{
		Bucket: e.StateBucket,
		Key:    fmt.Sprintf("%s/%s-pipeline.tfstate", unit.Kind, unit.Alias),
		Region: e.BackendRegion,
	}
}

// HasConfig reports whether the unit's infrastructure root exists.
func (e *Engine) HasConfig(unit config.DeploymentUnit) bool {
	return NewRunner(e.infraDir(unit), awsp.CredentialContext{}, e.Log).HasConfig()
}

// Apply initializes the unit's backend and applies its infrastructure.
func (e *Engine) Apply(ctx context.Context, unit config.DeploymentUnit, creds awsp.CredentialContext) error {
	r := NewRunner(e.infraDir(unit), creds, e.Log)
	if err := r.Init(ctx, e.backend(unit)); err != nil {
		return err
	}
	if err := r.Apply(ctx); err != nil {
		return err
	}

	outputs, err := r.Output(ctx)
	if err != nil {
		// The apply itself succeeded; outputs are informational.
		e.Log.Warn("failed to read outputs", zap.String("alias", unit.Alias), zap.Error(err))
		return nil
	}
	for name, value := range outputs {
		e.Log.Debug("output", zap.String("alias", unit.Alias), zap.String(name, value))
	}
	return nil
}

// Destroy initializes the unit's backend and destroys its
// infrastructure.
func (e *Engine) Destroy(ctx context.Context, unit config.DeploymentUnit, creds awsp.CredentialContext) error {
	r := NewRunner(e.infraDir(unit), creds, e.Log)
	if err := r.Init(ctx, e.backend(unit)); err != nil {
		return err
	}
	return r.Destroy(ctx)
}

// DestroyPipeline destroys the unit's delivery pipeline root. Units
// without a pipeline root are treated as already done.
func (e *Engine) DestroyPipeline(ctx context.Context, unit config.DeploymentUnit, creds awsp.CredentialContext) error {
	r := NewRunner(e.pipelineDir(unit), creds, e.Log)
	if !r.HasConfig() {
		e.Log.Info("no pipeline root for unit, nothing to destroy", zap.String("alias", unit.Alias))
		return nil
	}
	if err := r.Init(ctx, e.pipelineBackend(unit)); err != nil {
		return err
	}
	return r.Destroy(ctx)
}
