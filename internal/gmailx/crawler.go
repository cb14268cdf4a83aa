// Package gmailx crawls one tenant's mailbox for new message metadata,
// deduplicating against the warehouse's existing ids before the expensive
// per-message detail fetch.
package gmailx

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"

	"github.com/driftline/mailvault/internal/warehouse"
	"github.com/driftline/mailvault/internal/workpool"
)

const (
	// detailBatchSize is how many detail fetches are grouped per sub-batch.
	detailBatchSize = 50
	// detailWidth bounds concurrent detail fetches within a sub-batch.
	detailWidth = 5
	// pagePause is the fixed delay between listing pages.
	pagePause = 500 * time.Millisecond
)

// Crawler pages through one tenant's mailbox and returns records for messages
// not yet in the warehouse.
type Crawler struct {
	provider Provider
	tenant   string
	pause    time.Duration
}

// NewCrawler builds a crawler for one tenant. tenant is only used for log
// context.
func NewCrawler(provider Provider, tenant string) *Crawler {
	return &Crawler{provider: provider, tenant: tenant, pause: pagePause}
}

// Crawl walks the listing pages and fetches detail for ids absent from
// existing. Records come back in first-seen order; duplicate ids across pages
// collapse to the first occurrence. A listing failure aborts the crawl with an
// error; a single detail failure only drops that message.
func (c *Crawler) Crawl(ctx context.Context, existing map[string]struct{}) ([]*warehouse.EmailRecord, error) {
	seen := make(map[string]struct{})
	var records []*warehouse.EmailRecord

	pageToken := ""
	for {
		page, err := c.provider.ListPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		if len(page.IDs) == 0 {
			break
		}

		// Dedup before detail fetch: the Get calls are the expensive step.
		newIDs := make([]string, 0, len(page.IDs))
		for _, id := range page.IDs {
			if _, ok := existing[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			newIDs = append(newIDs, id)
		}

		records = append(records, c.fetchDetails(ctx, newIDs)...)

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		case <-time.After(c.pause):
		}
	}

	log.WithFields(log.Fields{"tenant": c.tenant, "new": len(records)}).Info("mailbox crawl complete")
	return records, nil
}

// fetchDetails resolves ids to records in fixed sub-batches on a bounded
// pool. Failed fetches are logged and dropped from the output.
func (c *Crawler) fetchDetails(ctx context.Context, ids []string) []*warehouse.EmailRecord {
	var out []*warehouse.EmailRecord
	for start := 0; start < len(ids); start += detailBatchSize {
		end := start + detailBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		results := make([]*warehouse.EmailRecord, len(batch))
		workpool.Run(ctx, detailWidth, len(batch), func(i int) {
			msg, err := c.provider.GetMetadata(ctx, batch[i])
			if err != nil {
				log.WithError(err).WithFields(log.Fields{
					"tenant":  c.tenant,
					"message": batch[i],
				}).Error("fetching message detail failed")
				return
			}
			results[i] = newRecord(batch[i], msg)
		})

		for _, r := range results {
			if r != nil {
				out = append(out, r)
			}
		}
	}
	return out
}

// newRecord extracts the warehouse row from a metadata response. Header name
// match is case-insensitive and the first occurrence wins; absent headers stay
// nil.
func newRecord(id string, msg *gmail.Message) *warehouse.EmailRecord {
	rec := &warehouse.EmailRecord{
		ID:       id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload != nil {
		rec.Subject = headerValue(msg.Payload.Headers, "subject")
		rec.Sender = headerValue(msg.Payload.Headers, "from")
		rec.Recipient = headerValue(msg.Payload.Headers, "to")
		rec.Timestamp = headerValue(msg.Payload.Headers, "date")
	}
	rec.CombinedLabels = strings.Join(msg.LabelIds, ",")
	return rec
}

func headerValue(headers []*gmail.MessagePartHeader, name string) *string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			v := h.Value
			return &v
		}
	}
	return nil
}
