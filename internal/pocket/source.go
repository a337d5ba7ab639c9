package pocket

import (
	"context"
	"time"

	"github.com/starford/quire/internal/ingest"
	"github.com/starford/quire/internal/models"
)

var _ ingest.Source = (*Source)(nil)

// Source exposes an authorized Pocket account to the sync pipeline.
type Source struct {
	client  *Client
	session *Session
}

// NewSource creates a Source.
func NewSource(client *Client, session *Session) *Source {
	return &Source{client: client, session: session}
}

// Name implements ingest.Source.
func (s *Source) Name() string { return "pocket" }

// Retrieve implements ingest.Source.
func (s *Source) Retrieve(ctx context.Context, since time.Time) ([]models.ExternalItem, error) {
	creds, err := s.session.Credentials()
	if err != nil {
		return nil, err
	}
	return s.client.Retrieve(ctx, creds.ConsumerKey, creds.AccessToken, since)
}
