package port

import (
	"context"

	"github.com/rl1809/campus-order/internal/core/domain"
)

type CartRepository interface {
	// GetCart returns the stored cart, or an empty one with Version 0
	GetCart(ctx context.Context, userID string) (domain.Cart, error)

	// SaveCart writes the cart iff the stored version still equals cart.Version,
	// ErrOptimisticLock otherwise
	SaveCart(ctx context.Context, cart domain.Cart) error

	// ClearCart empties the cart and unbinds the vendor unconditionally
	ClearCart(ctx context.Context, userID string) error
}

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a key so the operation may be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
