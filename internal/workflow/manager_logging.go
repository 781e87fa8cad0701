package workflow

import (
	"context"

	"newsgraph/internal/content"
	"newsgraph/internal/services"
)

func withItemContext(ctx context.Context, item *content.Item, requestID string, workerID int) context.Context {
	if item != nil {
		ctx = services.WithItemID(ctx, item.ID)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	if workerID > 0 {
		ctx = services.WithWorker(ctx, workerID)
	}
	return ctx
}
