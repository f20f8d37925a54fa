package cache

import (
	"context"
	"time"

	"suqpos/backend/internal/domain"
)

type CatalogCache interface {
	Get(ctx context.Context, key string) ([]domain.CatalogItem, bool, error)
	Set(ctx context.Context, key string, items []domain.CatalogItem, ttl time.Duration) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]domain.CatalogItem, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []domain.CatalogItem, _ time.Duration) error {
	return nil
}
