package storage

import (
	"context"
	"fmt"
)

// MinRetainedRuns is the floor for run retention.
const MinRetainedRuns = 7

// PruneRuns deletes finished runs beyond the newest keep, together with
// their settings snapshots and audit entries. Running runs are never pruned.
// keep is raised to MinRetainedRuns when lower.
//
// Completed idempotency keys older than the oldest retained run go with
// them, so a replay never points at a pruned run.
func (db *DB) PruneRuns(ctx context.Context, keep int) (int64, error) {
	keep = max(keep, MinRetainedRuns)
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM runs
		 WHERE status <> 'running'
		   AND run_id NOT IN (
		       SELECT run_id FROM runs ORDER BY started_at DESC, run_id DESC LIMIT $1
		   )`, keep)
	if err != nil {
		return 0, fmt.Errorf("storage: prune runs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		db.logger.Info("storage: pruned runs", "deleted", n, "kept", keep)
	}

	keys, err := db.pruneRequestKeys(ctx)
	if err != nil {
		return tag.RowsAffected(), err
	}
	if keys > 0 {
		db.logger.Debug("storage: pruned idempotency keys", "deleted", keys)
	}
	return tag.RowsAffected(), nil
}

// pruneRequestKeys removes completed keys from before the oldest remaining
// run and reservations abandoned for longer than AbandonedRequestTTL.
func (db *DB) pruneRequestKeys(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM idempotency_keys
		 WHERE (status = 'completed' AND updated_at < (SELECT min(started_at) FROM runs))
		    OR (status = 'in_progress' AND updated_at < now() - ($1 * interval '1 microsecond'))`,
		AbandonedRequestTTL.Microseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: prune idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
