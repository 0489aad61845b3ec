package store

import (
	"context"

	"github.com/tpyo/shrinkray/internal/domain"
)

// UsageStore persists per-request transformation accounting.
type UsageStore interface {
	Record(ctx context.Context, usage domain.Usage) error
}
