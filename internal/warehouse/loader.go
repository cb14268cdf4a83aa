package warehouse

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// batchPause is the fixed delay between successive batch inserts. A blunt
// backpressure measure, matching the provider-side pacing in the crawler.
const batchPause = time.Second

// Putter is the insert surface the loader writes through. *bigquery.Inserter
// satisfies it.
type Putter interface {
	Put(ctx context.Context, src any) error
}

// Loader inserts records in fixed-size, paced batches. A batch is the unit of
// failure: a rejected batch is logged and skipped, later batches still load.
type Loader struct {
	putter    Putter
	batchSize int
	pause     time.Duration
}

// NewLoader builds a loader writing through putter in batches of batchSize.
func NewLoader(putter Putter, batchSize int) *Loader {
	return &Loader{putter: putter, batchSize: batchSize, pause: batchPause}
}

// Load inserts records in input order and returns the number of rows accepted.
func (l *Loader) Load(ctx context.Context, records []*EmailRecord) int {
	if len(records) == 0 {
		return 0
	}

	inserted := 0
	for start := 0; start < len(records); start += l.batchSize {
		end := start + l.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := l.putter.Put(ctx, batch); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"batch_start": start,
				"batch_size":  len(batch),
			}).Error("batch insert failed")
		} else {
			inserted += len(batch)
			log.WithField("batch_size", len(batch)).Info("inserted batch")
		}

		if end < len(records) {
			select {
			case <-ctx.Done():
				return inserted
			case <-time.After(l.pause):
			}
		}
	}
	return inserted
}
