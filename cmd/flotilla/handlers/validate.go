package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tobkre/flotilla/internal/lifecycle"
)

// Validate resolves and validates every descriptor without touching any
// infrastructure. A single bad descriptor fails the run with the
// validation exit code; good siblings are still reported.
func Validate(ctx context.Context, opts Options) error {
	log := buildLogger(opts.Verbose)
	defer func() { _ = log.Sync() }()

	res := lifecycle.NewRunResult()
	units, err := loadUnits(ctx, opts, res)
	if err != nil {
		fmt.Println(res.Report())
		return exitFor(res)
	}

	for _, unit := range units {
		log.Info("descriptor valid",
			zap.String("alias", unit.Alias),
			zap.String("kind", string(unit.Kind)),
			zap.String("account", unit.AccountID),
		)
		res.Record(fmt.Sprintf("validate %s", unit.Alias), nil)
	}

	fmt.Println(res.Report())
	return exitFor(res)
}
