package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors for artifact storage.
var (
	ErrNotFound = errors.New("artifact not found")
	ErrExists   = errors.New("artifact already exists")
)

// Store publishes artifacts under slash-separated keys.
// Implementations: LocalStore (directory) and S3Store (bucket).
type Store interface {
	// Put writes data under key. Existing keys are never replaced; Put
	// returns ErrExists instead.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key prefixes.
const (
	PrefixShape   = "shape/"
	PrefixSpec    = "spec/"
	PrefixReports = "reports/"
)

const keyTimeLayout = "20060102T150405Z"

// ShapeKey names a ShapeMetrics object by extraction time and fingerprint so
// retention can be decided from the key alone.
func ShapeKey(extractedAt time.Time, fingerprint string) string {
	fp := fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	return fmt.Sprintf("%s%s-%s.json", PrefixShape, extractedAt.UTC().Format(keyTimeLayout), fp)
}

// ParseShapeKey returns the extraction time encoded in a ShapeKey.
func ParseShapeKey(key string) (time.Time, error) {
	name := strings.TrimPrefix(key, PrefixShape)
	if name == key || len(name) < len(keyTimeLayout) {
		return time.Time{}, fmt.Errorf("not a shape key: %q", key)
	}
	t, err := time.Parse(keyTimeLayout, name[:len(keyTimeLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("shape key %q: %w", key, err)
	}
	return t, nil
}

// ReportKey names a report object by kind and run id.
func ReportKey(kind, runID string) string {
	return fmt.Sprintf("%s%s/%s.json", PrefixReports, kind, runID)
}

// Publish encodes v and puts it under key.
func Publish(ctx context.Context, store Store, key string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
