package artifact

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetention is how long ShapeMetrics are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Prune deletes ShapeMetrics objects whose extraction time is older than
// maxAge at now. Keys that do not parse as shape keys are left alone.
// Returns the deleted keys.
func Prune(ctx context.Context, store Store, maxAge time.Duration, now time.Time) ([]string, error) {
	keys, err := store.List(ctx, PrefixShape)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, key := range keys {
		extractedAt, err := ParseShapeKey(key)
		if err != nil {
			continue
		}
		if now.Sub(extractedAt) <= maxAge {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("prune %s: %w", key, err)
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}
