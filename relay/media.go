package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"warelay/cache"
	"warelay/whatsapp"

	"github.com/rs/zerolog"
)

// MediaService resolves media ids and opens their bytes.
type MediaService struct {
	graph  Graph
	cache  cache.MediaCache
	logger zerolog.Logger
}

func NewMediaService(graph Graph, mc cache.MediaCache, logger zerolog.Logger) *MediaService {
	if mc == nil {
		mc = cache.Noop{}
	}
	return &MediaService{
		graph:  graph,
		cache:  mc,
		logger: logger.With().Str("component", "media").Logger(),
	}
}

// Open returns the media body and its content type. The caller closes the body.
// whatsapp.ErrNoMediaURL is returned when the id resolves without a URL.
func (m *MediaService) Open(ctx context.Context, mediaID string) (io.ReadCloser, string, error) {
	info, err := m.resolve(ctx, mediaID)
	if err != nil {
		return nil, "", err
	}

	body, headerType, err := m.graph.DownloadMedia(ctx, info.URL)
	if err != nil {
		return nil, "", fmt.Errorf("download media %s: %w", mediaID, err)
	}

	contentType := info.MimeType
	if contentType == "" {
		contentType = headerType
	}
	return body, contentType, nil
}

func (m *MediaService) resolve(ctx context.Context, mediaID string) (*whatsapp.MediaInfo, error) {
	info, err := m.cache.GetMedia(ctx, mediaID)
	if err == nil && info.URL != "" {
		return info, nil
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		m.logger.Warn().Err(err).Str("mediaId", mediaID).Msg("Media cache lookup failed")
	}

	info, err = m.graph.MediaInfo(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("resolve media %s: %w", mediaID, err)
	}
	if info.ID == "" {
		info.ID = mediaID
	}
	if err := m.cache.StoreMedia(ctx, info); err != nil {
		m.logger.Warn().Err(err).Str("mediaId", mediaID).Msg("Media cache store failed")
	}
	return info, nil
}
