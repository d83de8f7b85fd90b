package jobs

import (
	"context"
	"time"
)

type KeyPruner interface {
	PruneIdempotencyKeys(ctx context.Context, retention time.Duration) (int64, error)
}

type PruneObserver interface {
	PrunedKeys(n int64)
}

// PruneIdempotencyKeys builds the housekeeping job that drops claimed
// idempotency keys older than retention. observer may be nil.
func PruneIdempotencyKeys(schedule string, pruner KeyPruner, retention time.Duration, observer PruneObserver) Job {
	return Job{
		Name:     "prune_idempotency_keys",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := pruner.PruneIdempotencyKeys(ctx, retention)
			if err != nil {
				return err
			}
			if observer != nil {
				observer.PrunedKeys(n)
			}
			return nil
		},
	}
}
