package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thetact/tact-backend/internal/models"
)

// firestoreOrderRepository implements OrderRepository using Firestore.
type firestoreOrderRepository struct {
	client *firestore.Client
}

// NewFirestoreOrderRepository creates a new instance of firestoreOrderRepository.
func NewFirestoreOrderRepository(client *firestore.Client) OrderRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for OrderRepository.")
	}
	return &firestoreOrderRepository{client: client}
}

// GetByReference retrieves an order document by its reference.
func (r *firestoreOrderRepository) GetByReference(ctx context.Context, reference string) (*models.Order, error) {
	if reference == "" {
		return nil, errors.New("reference cannot be empty for GetByReference operation")
	}
	docSnap, err := r.client.Collection(ordersCollection).Doc(reference).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("order '%s' not found: %w", reference, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order '%s': %w", reference, err)
	}
	return decodeOrder(docSnap)
}

// MarkPaid settles the order inside a transaction so redelivered events cannot restamp paidAt.
func (r *firestoreOrderRepository) MarkPaid(ctx context.Context, reference string, paidAt time.Time, tx models.TransactionData) error {
	ref := r.client.Collection(ordersCollection).Doc(reference)
	return r.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		docSnap, err := t.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("order '%s' not found: %w", reference, ErrNotFound)
			}
			return fmt.Errorf("failed to read order '%s': %w", reference, err)
		}
		order, err := decodeOrder(docSnap)
		if err != nil {
			return err
		}
		if order.IsPaid() {
			return ErrAlreadyPaid
		}
		return t.Update(ref, []firestore.Update{
			{Path: "status", Value: string(models.OrderStatusPaid)},
			{Path: "paidAt", Value: paidAt},
			{Path: "transactionData", Value: tx},
		})
	})
}

func decodeOrder(docSnap *firestore.DocumentSnapshot) (*models.Order, error) {
	var order models.Order
	if err := docSnap.DataTo(&order); err != nil {
		return nil, fmt.Errorf("failed to decode order '%s': %w", docSnap.Ref.ID, err)
	}
	order.Reference = docSnap.Ref.ID
	return &order, nil
}
