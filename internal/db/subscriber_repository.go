package db

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thetact/tact-backend/internal/models"
)

// firestoreSubscriberRepository implements SubscriberRepository using Firestore.
type firestoreSubscriberRepository struct {
	client *firestore.Client
}

// NewFirestoreSubscriberRepository creates a new instance of firestoreSubscriberRepository.
func NewFirestoreSubscriberRepository(client *firestore.Client) SubscriberRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for SubscriberRepository.")
	}
	return &firestoreSubscriberRepository{client: client}
}

// GetByID retrieves a subscriber document by its ID (Firebase Auth UID).
func (r *firestoreSubscriberRepository) GetByID(ctx context.Context, subscriberID string) (*models.Subscriber, error) {
	if subscriberID == "" {
		return nil, errors.New("subscriberID cannot be empty for GetByID operation")
	}
	docSnap, err := r.client.Collection(subscribersCollection).Doc(subscriberID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("subscriber with ID '%s' not found: %w", subscriberID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subscriber with ID '%s': %w", subscriberID, err)
	}

	var sub models.Subscriber
	if err := docSnap.DataTo(&sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscriber data for ID '%s': %w", subscriberID, err)
	}
	sub.ID = docSnap.Ref.ID
	return &sub, nil
}

// Upsert merges the fields of update into the subscriber document, creating it if needed.
func (r *firestoreSubscriberRepository) Upsert(ctx context.Context, subscriberID string, update models.SubscriberUpdate) error {
	if subscriberID == "" {
		return errors.New("subscriberID cannot be empty for Upsert operation")
	}
	fields := update.Fields()
	if len(fields) == 0 {
		return nil
	}
	_, err := r.client.Collection(subscribersCollection).Doc(subscriberID).Set(ctx, fields, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber with ID '%s': %w", subscriberID, err)
	}
	return nil
}

// ListByStatus returns all subscribers whose subscriptionStatus equals status.
func (r *firestoreSubscriberRepository) ListByStatus(ctx context.Context, st models.SubscriptionStatus) ([]*models.Subscriber, error) {
	iter := r.client.Collection(subscribersCollection).Where("subscriptionStatus", "==", string(st)).Documents(ctx)
	defer iter.Stop()

	var subs []*models.Subscriber
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate subscribers with status '%s': %w", st, err)
		}

		var sub models.Subscriber
		if err := doc.DataTo(&sub); err != nil {
			log.Printf("Error decoding subscriber data (ID: %s): %v. Skipping.", doc.Ref.ID, err)
			continue
		}
		sub.ID = doc.Ref.ID
		subs = append(subs, &sub)
	}
	return subs, nil
}
