package translation

import (
	"context"
	"fmt"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/pkg/log"
)

// StoreWithPrune writes record to store. When the store reports
// QuotaExceeded it prunes the oldest rows down to target and retries the
// write once. A second failure is returned without another prune.
func StoreWithPrune(ctx context.Context, store LocalStore, record Record, target int) error {
	err := store.Put(ctx, record)
	if err == nil || !apperr.Is(err, apperr.KindQuotaExceeded) {
		return err
	}

	pruned, err := Compact(ctx, store, target)
	if err != nil {
		return apperr.Wrap(err, apperr.KindQuotaExceeded, "failed to prune local records")
	}
	if pruned > 0 {
		log.Info("Local store full: pruned %d records", pruned)
	}

	if err := store.Put(ctx, record); err != nil {
		return apperr.Wrap(err, apperr.KindQuotaExceeded, "write failed after prune").
			WithContext("key", record.Key.Hash())
	}
	return nil
}

// Compact removes the oldest records until at most target remain and
// returns how many were removed.
func Compact(ctx context.Context, store LocalStore, target int) (int, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count local records: %w", err)
	}
	excess := count - max(target, 0)
	if excess <= 0 {
		return 0, nil
	}
	return store.PruneOldest(ctx, excess)
}
