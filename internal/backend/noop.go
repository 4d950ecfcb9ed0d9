package backend

import (
	"context"

	"linkoraadmin/internal/models"
)

// NoopClient stands in when no backend origin is configured: lists are empty and
// mutations succeed without effect.
type NoopClient struct{}

func (NoopClient) ListRaw(ctx context.Context, kind models.Kind, q ListQuery) ([]byte, error) {
	page := max(q.Page, 1)
	return encodeList(ListPage[struct{}]{Items: []struct{}{}, CurrentPage: page, TotalPages: 1}), nil
}

func (NoopClient) SetStatus(context.Context, models.Kind, string, models.Status, models.Action) error {
	return nil
}

func (NoopClient) Delete(context.Context, models.Kind, string) error { return nil }

func (NoopClient) Stats(context.Context) (models.DashboardStats, error) {
	return models.DashboardStats{}, nil
}

func (NoopClient) Ping(context.Context) error { return nil }
