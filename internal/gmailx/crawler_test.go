package gmailx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

type fakeProvider struct {
	mu      sync.Mutex
	pages   []ListPage
	details map[string]*gmail.Message
	failIDs map[string]bool
	fetched []string
	calls   int
	listErr error
}

func (f *fakeProvider) ListPage(ctx context.Context, pageToken string) (ListPage, error) {
	if f.listErr != nil {
		return ListPage{}, f.listErr
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func (f *fakeProvider) GetMetadata(ctx context.Context, id string) (*gmail.Message, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()

	if f.failIDs[id] {
		return nil, errors.New("backend error")
	}
	if msg, ok := f.details[id]; ok {
		return msg, nil
	}
	return &gmail.Message{Id: id, ThreadId: "t-" + id}, nil
}

func newTestCrawler(p Provider) *Crawler {
	c := NewCrawler(p, "tenant1")
	c.pause = 0
	return c
}

func TestCrawlSkipsExistingBeforeDetailFetch(t *testing.T) {
	provider := &fakeProvider{
		pages: []ListPage{{IDs: []string{"m1", "m2", "m3"}}},
	}
	crawler := newTestCrawler(provider)

	records, err := crawler.Crawl(context.Background(), map[string]struct{}{"m1": {}})
	require.NoError(t, err)

	assert.NotContains(t, provider.fetched, "m1", "existing id must never reach detail fetch")
	assert.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, "m1", r.ID)
	}
}

func TestCrawlPaginationTerminatesWithoutToken(t *testing.T) {
	provider := &fakeProvider{
		pages: []ListPage{
			{IDs: []string{"a1"}, NextPageToken: "p2"},
			{IDs: []string{"a2"}, NextPageToken: "p3"},
			{IDs: []string{"a3"}}, // last page, no token
		},
	}
	crawler := newTestCrawler(provider)

	records, err := crawler.Crawl(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Len(t, records, 3)
}

func TestCrawlEmptyPageTerminates(t *testing.T) {
	provider := &fakeProvider{
		pages: []ListPage{
			{IDs: []string{"a1"}, NextPageToken: "p2"},
			{NextPageToken: "p3"}, // empty page ends the loop even with a token
		},
	}
	crawler := newTestCrawler(provider)

	records, err := crawler.Crawl(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Len(t, records, 1)
}

func TestCrawlCollapsesDuplicateIDsAcrossPages(t *testing.T) {
	provider := &fakeProvider{
		pages: []ListPage{
			{IDs: []string{"m1", "m2"}, NextPageToken: "p2"},
			{IDs: []string{"m2", "m3"}},
		},
	}
	crawler := newTestCrawler(provider)

	records, err := crawler.Crawl(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "m1", records[0].ID)
	assert.Equal(t, "m2", records[1].ID)
	assert.Equal(t, "m3", records[2].ID)

	count := 0
	for _, id := range provider.fetched {
		if id == "m2" {
			count++
		}
	}
	assert.Equal(t, 1, count, "duplicate listing must be detail-fetched once")
}

func TestCrawlDropsFailedDetailFetch(t *testing.T) {
	provider := &fakeProvider{
		pages:   []ListPage{{IDs: []string{"m1", "m2", "m3"}}},
		failIDs: map[string]bool{"m2": true},
	}
	crawler := newTestCrawler(provider)

	records, err := crawler.Crawl(context.Background(), nil)
	require.NoError(t, err, "a single detail failure must not abort the crawl")
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].ID)
	assert.Equal(t, "m3", records[1].ID)
}

func TestCrawlListFailureReturnsError(t *testing.T) {
	provider := &fakeProvider{listErr: errors.New("invalid_grant")}
	crawler := newTestCrawler(provider)

	records, err := crawler.Crawl(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, records)
}

func TestNewRecordHeaderExtraction(t *testing.T) {
	msg := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		LabelIds: []string{"INBOX", "IMPORTANT"},
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "SUBJECT", Value: "hello"},
				{Name: "Subject", Value: "shadowed"},
				{Name: "from", Value: "a@example.com"},
				{Name: "Date", Value: "Mon, 2 Feb 2026 10:00:00 +0000"},
			},
		},
	}

	rec := newRecord("m1", msg)
	assert.Equal(t, "m1", rec.ID)
	assert.Equal(t, "t1", rec.ThreadID)
	require.NotNil(t, rec.Subject)
	assert.Equal(t, "hello", *rec.Subject, "first occurrence wins, case-insensitive")
	require.NotNil(t, rec.Sender)
	assert.Equal(t, "a@example.com", *rec.Sender)
	assert.Nil(t, rec.Recipient, "absent header stays nil")
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, "Mon, 2 Feb 2026 10:00:00 +0000", *rec.Timestamp)
	assert.Equal(t, "INBOX,IMPORTANT", rec.CombinedLabels)
}

func TestCrawlLargePageUsesSubBatches(t *testing.T) {
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = "m" + string(rune('a'+i/26)) + string(rune('a'+i%26))
	}
	provider := &fakeProvider{pages: []ListPage{{IDs: ids}}}
	crawler := newTestCrawler(provider)

	records, err := crawler.Crawl(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, records, 120)
	assert.Len(t, provider.fetched, 120)
}
