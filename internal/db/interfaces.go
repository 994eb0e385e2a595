package db

import (
	"context"
	"errors"
	"time"

	"github.com/thetact/tact-backend/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyPaid is returned by MarkPaid when the order was settled before.
var ErrAlreadyPaid = errors.New("order already paid")

// SubscriberRepository defines storage operations for subscriber records.
type SubscriberRepository interface {
	GetByID(ctx context.Context, subscriberID string) (*models.Subscriber, error)
	// Upsert creates the document if needed and merges only the fields set in update.
	Upsert(ctx context.Context, subscriberID string, update models.SubscriberUpdate) error
	ListByStatus(ctx context.Context, status models.SubscriptionStatus) ([]*models.Subscriber, error)
}

// OrderRepository defines storage operations for one-time orders.
type OrderRepository interface {
	GetByReference(ctx context.Context, reference string) (*models.Order, error)
	// MarkPaid moves a pending order to paid atomically. It returns ErrAlreadyPaid, leaving the
	// stored document untouched, when the order is already paid.
	MarkPaid(ctx context.Context, reference string, paidAt time.Time, tx models.TransactionData) error
}

// UserRepository defines the user-document operations billing needs.
type UserRepository interface {
	// CountMembers counts users whose overseerUid references the subscriber.
	CountMembers(ctx context.Context, subscriberID string) (int, error)
	SetSellerSubaccount(ctx context.Context, uid, subaccountCode string) error
	SetStripeAccount(ctx context.Context, uid, accountID string) error
}
