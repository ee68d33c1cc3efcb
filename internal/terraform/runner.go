// Package terraform drives the infrastructure-as-code engine as an
// external process. The orchestrator never creates cloud resources
// itself; it only decides when, in which order, and under whose identity
// the engine runs.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	awsp "github.com/tobkre/flotilla/internal/platform/aws"
)

// Backend holds the remote state coordinates for one deployment unit.
// The bucket lives in the central account; the key is unit-scoped.
type Backend struct {
	Bucket string
	Key    string
	Region string
}

// Runner invokes the engine in a working directory holding the unit's
// root configuration. Credentials are injected explicitly per call, not
// read from ambient process state, so parallel runners cannot leak
// identities into each other.
type Runner struct {
	Dir    string
	Binary string
	Creds  awsp.CredentialContext
	Log    *zap.Logger
}

// NewRunner creates a runner for the given configuration directory.
func NewRunner(dir string, creds awsp.CredentialContext, log *zap.Logger) *Runner {
	return &Runner{Dir: dir, Binary: "terraform", Creds: creds, Log: log}
}

// HasConfig reports whether the working directory contains an engine
// configuration at all. Destroy runs use this together with the applied
// marker to tell "never provisioned" apart from a missing config.
func (r *Runner) HasConfig() bool {
	matches, err := filepath.Glob(filepath.Join(r.Dir, "*.tf"))
	return err == nil && len(matches) > 0
}

// Init configures the remote state backend.
func (r *Runner) Init(ctx context.Context, backend Backend) error {
	return r.run(ctx, "init",
		"-input=false",
		"-reconfigure",
		fmt.Sprintf("-backend-config=bucket=%s", backend.Bucket),
		fmt.Sprintf("-backend-config=key=%s", backend.Key),
		fmt.Sprintf("-backend-config=region=%s", backend.Region),
	)
}

// Apply creates or updates the unit's infrastructure.
func (r *Runner) Apply(ctx context.Context) error {
	return r.run(ctx, "apply", "-input=false", "-auto-approve")
}

// Destroy tears the unit's infrastructure down.
func (r *Runner) Destroy(ctx context.Context) error {
	return r.run(ctx, "destroy", "-input=false", "-auto-approve")
}

// Output returns the root module's string outputs.
func (r *Runner) Output(ctx context.Context) (map[string]string, error) {
	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, "output", "-json")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("terraform output in %s failed: %w\n%s", r.Dir, err, stderr.String())
	}

	var raw map[string]struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse terraform outputs: %w", err)
	}

	outputs := make(map[string]string, len(raw))
	for name, entry := range raw {
		var s string
		if err := json.Unmarshal(entry.Value, &s); err != nil {
			// Non-string outputs are passed through as raw JSON.
			s = string(entry.Value)
		}
		outputs[name] = s
	}
	return outputs, nil
}

func (r *Runner) run(ctx context.Context, subcommand string, args ...string) error {
	var out bytes.Buffer
	cmd := r.command(ctx, subcommand, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	r.Log.Info("running terraform",
		zap.String("subcommand", subcommand),
		zap.String("dir", r.Dir),
		zap.String("account", r.Creds.AccountID),
	)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("terraform %s in %s failed: %w\n%s", subcommand, r.Dir, err, out.String())
	}
	return nil
}

func (r *Runner) command(ctx context.Context, subcommand string, args ...string) *exec.Cmd {
	full := append([]string{subcommand, "-no-color"}, args...)
	cmd := exec.CommandContext(ctx, r.Binary, full...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Creds.Env()...)
	return cmd
}
