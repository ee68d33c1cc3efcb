package handlers

import (
	"context"
	"fmt"
)

// Reconcile runs the orphan-resource reconciliation passes for one
// region. Every reclaim attempt is recorded; the run exits with the
// cleanup code when any resource could not be reclaimed.
func Reconcile(ctx context.Context, opts Options) error {
	log := buildLogger(opts.Verbose)
	defer func() { _ = log.Sync() }()

	rec, err := newReconciler(ctx, opts.Region, log)
	if err != nil {
		return fmt.Errorf("failed to initialize reconciler: %w", err)
	}

	res := rec.Reconcile(ctx, opts.Region)
	fmt.Println(res.Report())
	return exitFor(res)
}
