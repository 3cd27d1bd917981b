package generate

import (
	"context"

	"github.com/roach88/chatshape/internal/store"
)

// BatchWriter persists one batch. Implemented by *store.Store.
type BatchWriter interface {
	WriteBatch(ctx context.Context, b *store.Batch) error
}

// pipeline hands filled batches to a single writer goroutine while the
// producer fills the next one. Batches circulate through a fixed free list,
// so at most cap(free) batch buffers ever exist.
type pipeline struct {
	free  chan *store.Batch
	work  chan *store.Batch
	cur   *store.Batch
	limit int
	seq   int

	// Written by the writer goroutine only; read after it exits.
	rows    map[string]int64
	batches int
}

func newPipeline(batchSize, inFlight int) *pipeline {
	p := &pipeline{
		free:  make(chan *store.Batch, inFlight+1),
		work:  make(chan *store.Batch, inFlight),
		limit: batchSize,
		rows:  make(map[string]int64, len(store.Tables)),
	}
	for i := 0; i < inFlight+1; i++ {
		p.free <- &store.Batch{}
	}
	return p
}

// batch returns the batch being filled, taking one from the free list if
// needed.
func (p *pipeline) batch(ctx context.Context) (*store.Batch, error) {
	if p.cur != nil {
		return p.cur, nil
	}
	select {
	case b := <-p.free:
		p.seq++
		b.Seq = p.seq
		p.cur = b
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// maybeFlush hands the current batch to the writer once it is full. This is
// the only place the producer blocks, so it is also the cancellation point.
func (p *pipeline) maybeFlush(ctx context.Context) error {
	if p.cur == nil || p.cur.Len() < p.limit {
		return ctx.Err()
	}
	return p.flush(ctx)
}

func (p *pipeline) flush(ctx context.Context) error {
	if p.cur == nil || p.cur.Len() == 0 {
		return ctx.Err()
	}
	select {
	case p.work <- p.cur:
		p.cur = nil
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain writes batches until the work channel closes.
func (p *pipeline) drain(ctx context.Context, w BatchWriter) error {
	for b := range p.work {
		if err := w.WriteBatch(ctx, b); err != nil {
			return err
		}
		p.rows["users"] += int64(len(b.Users))
		p.rows["conversations"] += int64(len(b.Conversations))
		p.rows["memberships"] += int64(len(b.Memberships))
		p.rows["messages"] += int64(len(b.Messages))
		p.rows["read_receipts"] += int64(len(b.ReadReceipts))
		p.rows["attachments"] += int64(len(b.Attachments))
		p.batches++
		b.Reset()
		p.free <- b
	}
	return nil
}
