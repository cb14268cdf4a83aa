package warehouse

import (
	"cloud.google.com/go/bigquery"
)

// EmailRecord is one row of email metadata bound for the warehouse. Records
// are immutable once built and owned by the tenant task that built them.
type EmailRecord struct {
	ID             string  // provider message id, unique within the tenant's mailbox
	ThreadID       string
	Subject        *string // nil when the header is absent
	Sender         *string
	Recipient      *string
	Timestamp      *string // raw Date header, not parsed
	CombinedLabels string  // comma-joined label ids
}

// Save implements bigquery.ValueSaver so records stream straight into the
// inserter without an intermediate map.
func (r *EmailRecord) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"id":              r.ID,
		"threadId":        r.ThreadID,
		"subject":         nullable(r.Subject),
		"sender":          nullable(r.Sender),
		"recipient":       nullable(r.Recipient),
		"timestamp":       nullable(r.Timestamp),
		"combined_labels": r.CombinedLabels,
	}
	// Empty insert id lets the service pick one; dedup proper happens
	// upstream against the existing-id set.
	return row, "", nil
}

func nullable(s *string) bigquery.Value {
	if s == nil {
		return nil
	}
	return *s
}
