package domain

import (
	"context"
)

// DraftRepository persists unsent composer content per deal.
type DraftRepository interface {
	SaveDraft(ctx context.Context, dealID, content string) error
	GetDraft(ctx context.Context, dealID string) (string, error)
	DeleteDraft(ctx context.Context, dealID string) error
}

// CacheRepository keeps the last known view of a deal for offline display.
type CacheRepository interface {
	SaveDeal(ctx context.Context, dealID string, d *Deal) error
	GetDeal(ctx context.Context, dealID string) (*Deal, error)
	SaveMessages(ctx context.Context, dealID string, msgs []ChatMessage) error
	ListMessages(ctx context.Context, dealID string, limit int) ([]ChatMessage, error)
	PruneOld(ctx context.Context, dealID string, keepLimit int) error
}
