package generate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/chatshape/internal/artifact"
	"github.com/roach88/chatshape/internal/perf"
)

// HotPath names a query the dataset is shaped to stress.
type HotPath struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Report describes one finished generation run.
type Report struct {
	RunID           string               `json:"run_id"`
	CreatedAt       time.Time            `json:"created_at"`
	Band            Band                 `json:"band"`
	Seed            string               `json:"seed"`
	SpecFingerprint string               `json:"spec_fingerprint"`
	SpecSource      *artifact.SpecSource `json:"spec_source"`
	BatchSize       int                  `json:"batch_size"`
	Batches         int                  `json:"batches"`
	RowCounts       map[string]int64     `json:"row_counts"`
	// MessageFingerprint is a murmur3 digest of (id, conversation, created_at)
	// for every message in generation order. Equal seeds give equal digests.
	MessageFingerprint string    `json:"message_fingerprint"`
	DurationMs         int64     `json:"duration_ms"`
	HotPathQueries     []HotPath `json:"hot_path_queries"`
}

func (g *Generator) report(start time.Time, p *pipeline) (*Report, error) {
	fp, err := g.opts.Spec.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("fingerprint spec: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	end := g.opts.Clock.Now()
	return &Report{
		RunID:              id.String(),
		CreatedAt:          end.UTC(),
		Band:               g.opts.Band,
		Seed:               g.opts.Seed,
		SpecFingerprint:    fp,
		SpecSource:         g.opts.Spec.Source,
		BatchSize:          g.opts.BatchSize,
		Batches:            p.batches,
		RowCounts:          p.rows,
		MessageFingerprint: g.messageFingerprint(),
		DurationMs:         end.Sub(start).Milliseconds(),
		HotPathQueries:     HotPaths(),
	}, nil
}

// HotPaths lists the query catalog the generated data targets.
func HotPaths() []HotPath {
	catalog := perf.Catalog()
	out := make([]HotPath, len(catalog))
	for i, q := range catalog {
		out[i] = HotPath{ID: q.ID, Description: q.Description}
	}
	return out
}
