package queue

import (
	"context"
	"fmt"
)

// CorruptMediaPathsForTesting overwrites a row's media paths with
// invalid JSON. Only for exercising the skip-and-log listing path.
func (q *Queue) CorruptMediaPathsForTesting(ctx context.Context, localID string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE queued_memories SET media_paths = 'not json' WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to corrupt row: %w", err)
	}
	return requireRow(res)
}

// BumpSchemaVersionForTesting rewrites a row's schema version. Only for
// exercising the newer-schema skip path.
func (q *Queue) BumpSchemaVersionForTesting(ctx context.Context, localID string, version int) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE queued_memories SET schema_version = ? WHERE local_id = ?`, version, localID)
	if err != nil {
		return fmt.Errorf("failed to rewrite schema version: %w", err)
	}
	return requireRow(res)
}
