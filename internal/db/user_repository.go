package db

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
)

// firestoreUserRepository implements UserRepository using Firestore.
type firestoreUserRepository struct {
	client *firestore.Client
}

// NewFirestoreUserRepository creates a new instance of firestoreUserRepository.
func NewFirestoreUserRepository(client *firestore.Client) UserRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for UserRepository.")
	}
	return &firestoreUserRepository{client: client}
}

// CountMembers runs a server-side count aggregation over users linked to the subscriber.
func (r *firestoreUserRepository) CountMembers(ctx context.Context, subscriberID string) (int, error) {
	if subscriberID == "" {
		return 0, errors.New("subscriberID cannot be empty for CountMembers operation")
	}
	query := r.client.Collection(usersCollection).Where("overseerUid", "==", subscriberID)
	result, err := query.NewAggregationQuery().WithCount("members").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count members of '%s': %w", subscriberID, err)
	}

	raw, ok := result["members"]
	if !ok {
		return 0, fmt.Errorf("count aggregation for '%s' returned no value", subscriberID)
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count aggregation for '%s' returned unexpected type %T", subscriberID, raw)
	}
	return int(value.GetIntegerValue()), nil
}

// SetSellerSubaccount stores the Paystack subaccount code on the user document.
func (r *firestoreUserRepository) SetSellerSubaccount(ctx context.Context, uid, subaccountCode string) error {
	return r.mergeField(ctx, uid, "sellerPaystackAccount", subaccountCode)
}

// SetStripeAccount stores the Stripe connected account ID on the user document.
func (r *firestoreUserRepository) SetStripeAccount(ctx context.Context, uid, accountID string) error {
	return r.mergeField(ctx, uid, "stripeAccountId", accountID)
}

func (r *firestoreUserRepository) mergeField(ctx context.Context, uid, field string, value interface{}) error {
	if uid == "" {
		return errors.New("uid cannot be empty")
	}
	_, err := r.client.Collection(usersCollection).Doc(uid).Set(ctx, map[string]interface{}{field: value}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to update %s for user '%s': %w", field, uid, err)
	}
	return nil
}
