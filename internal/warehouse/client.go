// Package warehouse reads and writes email metadata rows in BigQuery.
package warehouse

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Client wraps the BigQuery client for one destination table.
type Client struct {
	bq        *bigquery.Client
	datasetID string
	tableID   string
	table     string // fully qualified project.dataset.table
}

// NewClient connects to BigQuery using the service key at keyPath.
func NewClient(ctx context.Context, projectID, datasetID, tableID, keyPath string) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, projectID, option.WithCredentialsFile(keyPath))
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &Client{
		bq:        bq,
		datasetID: datasetID,
		tableID:   tableID,
		table:     fmt.Sprintf("%s.%s.%s", projectID, datasetID, tableID),
	}, nil
}

// ExistingIDsQuery is the signature the id cache keys on.
func (c *Client) ExistingIDsQuery() string {
	return fmt.Sprintf("SELECT id FROM `%s`", c.table)
}

// ExistingIDs runs the identifier scan and returns the set of ids already in
// the table.
func (c *Client) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	it, err := c.bq.Query(c.ExistingIDsQuery()).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}

	ids := make(map[string]struct{})
	for {
		var row struct {
			ID string `bigquery:"id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan existing ids: %w", err)
		}
		ids[row.ID] = struct{}{}
	}
	return ids, nil
}

// Inserter returns a row inserter for the destination table.
func (c *Client) Inserter() *bigquery.Inserter {
	return c.bq.Dataset(c.datasetID).Table(c.tableID).Inserter()
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.bq.Close()
}
