// Package dataset implements iterators over batches sampled from a
// replay table.
package dataset

import (
	"fmt"

	"rlworks.org/dqn/replay"
)

// Sampler is a source of sampled batches. A replay Table is a Sampler.
type Sampler interface {
	Sample() (*replay.Batch, error)
}

// Dataset is an iterator over batches drawn from a Sampler. A Dataset
// keeps a bounded queue of batches sampled ahead of time, so that a
// learner consuming the dataset does not pay the sampling cost on
// every step. Queued batches reflect the state of the source at the
// time they were sampled.
type Dataset struct {
	source   Sampler
	prefetch chan *replay.Batch
}

// New returns a new Dataset over source which samples up to prefetch
// batches ahead of the batch returned by Next
func New(source Sampler, prefetch int) (*Dataset, error) {
	if source == nil {
		return nil, fmt.Errorf("new: source cannot be nil")
	}
	if prefetch < 0 {
		return nil, fmt.Errorf("new: prefetch must be >= 0 \n\thave(%v)",
			prefetch)
	}

	return &Dataset{
		source:   source,
		prefetch: make(chan *replay.Batch, prefetch),
	}, nil
}

// Next returns the next batch of the Dataset. If batches have been
// sampled ahead, the oldest one is returned, otherwise a batch is
// sampled from the source directly.
func (d *Dataset) Next() (*replay.Batch, error) {
	select {
	case batch := <-d.prefetch:
		d.fill()
		return batch, nil
	default:
	}

	batch, err := d.source.Sample()
	if err != nil {
		return nil, fmt.Errorf("next: %w", err)
	}

	d.fill()
	return batch, nil
}

// fill samples batches ahead of time until the queue is full or the
// source cannot currently be sampled
func (d *Dataset) fill() {
	for len(d.prefetch) < cap(d.prefetch) {
		batch, err := d.source.Sample()
		if err != nil {
			return
		}
		d.prefetch <- batch
	}
}

// Buffered returns the number of batches currently sampled ahead
func (d *Dataset) Buffered() int {
	return len(d.prefetch)
}

// Prefetch returns the maximum number of batches that the Dataset
// samples ahead
func (d *Dataset) Prefetch() int {
	return cap(d.prefetch)
}
