package gmailx

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	// mailboxQuery restricts the crawl to inbox, sent and trash, excluding
	// spam and the all-mail virtual label.
	mailboxQuery = "in:inbox OR in:sent OR in:trash -in:spam -in:allmail"

	pageSize = 500
)

var metadataHeaders = []string{"Subject", "From", "To", "Date"}

// ListPage is one page of message ids from the listing endpoint.
type ListPage struct {
	IDs           []string
	NextPageToken string
}

// Provider is the narrow Gmail surface the crawler consumes.
type Provider interface {
	ListPage(ctx context.Context, pageToken string) (ListPage, error)
	GetMetadata(ctx context.Context, id string) (*gmail.Message, error)
}

// APIProvider implements Provider against the Gmail API for one tenant.
type APIProvider struct {
	svc *gmail.Service
}

// NewAPIProvider builds a Gmail service from the tenant's authenticated HTTP
// client.
func NewAPIProvider(ctx context.Context, client *http.Client) (*APIProvider, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &APIProvider{svc: svc}, nil
}

// ListPage fetches one page of message ids for the fixed mailbox query.
func (p *APIProvider) ListPage(ctx context.Context, pageToken string) (ListPage, error) {
	call := p.svc.Users.Messages.List("me").
		Q(mailboxQuery).
		MaxResults(pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return ListPage{}, fmt.Errorf("list messages: %w", err)
	}

	page := ListPage{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// GetMetadata fetches the metadata projection of one message.
func (p *APIProvider) GetMetadata(ctx context.Context, id string) (*gmail.Message, error) {
	msg, err := p.svc.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}
