package store

import "context"

// Noop is used when DATABASE_URL is unset: every run is cold, nothing is
// cached or recorded.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) LookupTranslation(context.Context, []byte, string) (*CachedTranslation, error) {
	return nil, nil
}

func (Noop) SaveTranslation(context.Context, CachedTranslation) error { return nil }

func (Noop) RecordImage(context.Context, ImageRecord) error { return nil }

func (Noop) Ping(context.Context) error { return nil }

func (Noop) Close() error { return nil }
