package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zapflowai/zapflow/internal/db"
)

// Asset is a deliverable media item owned by an agent: an image, audio,
// video or document the model can reference in a reply.
type Asset struct {
	Key       string
	MediaType string
	URL       string
	Content   string
	FileName  string
	Protected bool
}

// Service resolves the media references a model emits into concrete links.
type Service struct {
	queries *db.Queries
	signer  *Signer
	log     *slog.Logger
}

func NewService(queries *db.Queries, signer *Signer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries: queries,
		signer:  signer,
		log:     log.With(slog.String("service", "media")),
	}
}

// Library lists every asset of an agent, keyed by "type:key" for fast lookup
// when replies are scanned for references.
func (s *Service) Library(ctx context.Context, agentID pgtype.UUID) (map[string]Asset, error) {
	rows, err := s.queries.ListAgentMedia(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list agent media: %w", err)
	}
	out := make(map[string]Asset, len(rows))
	for _, r := range rows {
		asset := Asset{
			Key:       r.Key,
			MediaType: r.MediaType,
			URL:       db.TextToString(r.Url),
			Content:   db.TextToString(r.Content),
			FileName:  db.TextToString(r.FileName),
			Protected: r.Protected,
		}
		out[LibraryKey(r.MediaType, r.Key)] = asset
	}
	return out, nil
}

// Resolve finds the asset for a reference and returns the URL a contact may
// actually receive, signing it when the asset is protected.
func (s *Service) Resolve(ctx context.Context, agentID pgtype.UUID, mediaType, key string) (Asset, error) {
	library, err := s.Library(ctx, agentID)
	if err != nil {
		return Asset{}, err
	}
	asset, ok := library[LibraryKey(mediaType, key)]
	if !ok {
		return Asset{}, fmt.Errorf("no %s asset with key %q", mediaType, key)
	}
	if asset.Protected && s.signer != nil {
		asset.URL = s.signer.SignedURL(db.UUIDToString(agentID), asset.Key)
	}
	return asset, nil
}

// Lookup returns the raw row for a key, used by the signed download handler.
func (s *Service) Lookup(ctx context.Context, agentID pgtype.UUID, key string) (Asset, error) {
	library, err := s.Library(ctx, agentID)
	if err != nil {
		return Asset{}, err
	}
	for _, asset := range library {
		if asset.Key == key {
			return asset, nil
		}
	}
	return Asset{}, fmt.Errorf("no asset with key %q", key)
}

// LibraryKey normalizes a "type:key" reference.
func LibraryKey(mediaType, key string) string {
	return strings.ToLower(strings.TrimSpace(mediaType)) + ":" + strings.TrimSpace(key)
}
