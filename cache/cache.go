package cache

import (
	"context"
	"errors"

	"warelay/whatsapp"
)

// ErrMiss is returned when nothing is cached for a key.
var ErrMiss = errors.New("cache miss")

type MediaCache interface {
	GetMedia(ctx context.Context, mediaID string) (*whatsapp.MediaInfo, error)
	StoreMedia(ctx context.Context, info *whatsapp.MediaInfo) error
}

// Noop never holds anything; used when Redis is not configured.
type Noop struct{}

func (Noop) GetMedia(context.Context, string) (*whatsapp.MediaInfo, error) {
	return nil, ErrMiss
}

func (Noop) StoreMedia(context.Context, *whatsapp.MediaInfo) error {
	return nil
}
