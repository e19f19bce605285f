package sqlgen

import (
	"context"
	"fmt"

	"staretl/internal/storage"
)

// Execer runs one statement and reports the rows it affected.
type Execer func(ctx context.Context, sql string) (int64, error)

// RunPhases executes phase 1 and phase 2 for plan through exec, which must be
// bound to the transaction holding the staging table. res.Staged must already
// be set; the other counters are filled in.
func RunPhases(ctx context.Context, d Dialect, plan storage.UpsertPlan, exec Execer, res *storage.UpsertResult) error {
	n, err := exec(ctx, ContentMatchDelete(d, plan))
	if err != nil {
		return fmt.Errorf("content match exclusion: %w", err)
	}
	res.ContentDuplicates = n

	if q := StagedKeyDedupDelete(d, plan); q != "" {
		if _, err := exec(ctx, q); err != nil {
			return fmt.Errorf("staged key dedup: %w", err)
		}
	}

	n, err = exec(ctx, InsertNew(d, plan))
	if err != nil {
		return fmt.Errorf("insert new keys: %w", err)
	}
	res.Inserted = n
	res.KeyConflicts = res.Staged - res.ContentDuplicates - res.Inserted
	return nil
}
