package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thetact/tact-backend/internal/models"
)

// MemoryStore is an in-process implementation of the repositories, used by tests and by
// STORE_BACKEND=memory for local runs without Firestore.
type MemoryStore struct {
	mu          sync.RWMutex
	subscribers map[string]models.Subscriber
	orders      map[string]models.Order
	users       map[string]MemoryUser
}

// MemoryUser is the subset of a user document kept by MemoryStore.
type MemoryUser struct {
	OverseerUID           string
	SellerPaystackAccount string
	StripeAccountID       string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[string]models.Subscriber),
		orders:      make(map[string]models.Order),
		users:       make(map[string]MemoryUser),
	}
}

// Subscribers returns the store as a SubscriberRepository.
func (m *MemoryStore) Subscribers() SubscriberRepository { return memSubscribers{m} }

// Orders returns the store as an OrderRepository.
func (m *MemoryStore) Orders() OrderRepository { return memOrders{m} }

// Users returns the store as a UserRepository.
func (m *MemoryStore) Users() UserRepository { return memUsers{m} }

// PutSubscriber replaces the stored subscriber document.
func (m *MemoryStore) PutSubscriber(sub models.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[sub.ID] = sub
}

// PutOrder replaces the stored order document.
func (m *MemoryStore) PutOrder(order models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.Reference] = order
}

// PutUser replaces the stored user document.
func (m *MemoryStore) PutUser(uid string, user MemoryUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[uid] = user
}

// User returns a copy of the stored user document.
func (m *MemoryStore) User(uid string) (MemoryUser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[uid]
	return u, ok
}

type memSubscribers struct{ m *MemoryStore }

func (r memSubscribers) GetByID(_ context.Context, subscriberID string) (*models.Subscriber, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	sub, ok := r.m.subscribers[subscriberID]
	if !ok {
		return nil, fmt.Errorf("subscriber with ID '%s' not found: %w", subscriberID, ErrNotFound)
	}
	sub.ID = subscriberID
	return &sub, nil
}

func (r memSubscribers) Upsert(_ context.Context, subscriberID string, update models.SubscriberUpdate) error {
	if subscriberID == "" {
		return fmt.Errorf("subscriberID cannot be empty for Upsert operation")
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	sub := r.m.subscribers[subscriberID]
	sub.ID = subscriberID
	update.ApplyTo(&sub)
	r.m.subscribers[subscriberID] = sub
	return nil
}

func (r memSubscribers) ListByStatus(_ context.Context, status models.SubscriptionStatus) ([]*models.Subscriber, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var subs []*models.Subscriber
	for id, sub := range r.m.subscribers {
		if sub.Status != status {
			continue
		}
		s := sub
		s.ID = id
		subs = append(subs, &s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

type memOrders struct{ m *MemoryStore }

func (r memOrders) GetByReference(_ context.Context, reference string) (*models.Order, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	order, ok := r.m.orders[reference]
	if !ok {
		return nil, fmt.Errorf("order '%s' not found: %w", reference, ErrNotFound)
	}
	order.Reference = reference
	return &order, nil
}

func (r memOrders) MarkPaid(_ context.Context, reference string, paidAt time.Time, tx models.TransactionData) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order, ok := r.m.orders[reference]
	if !ok {
		return fmt.Errorf("order '%s' not found: %w", reference, ErrNotFound)
	}
	if order.IsPaid() {
		return ErrAlreadyPaid
	}
	order.Status = models.OrderStatusPaid
	order.PaidAt = paidAt
	txCopy := tx
	order.TransactionData = &txCopy
	r.m.orders[reference] = order
	return nil
}

type memUsers struct{ m *MemoryStore }

func (r memUsers) CountMembers(_ context.Context, subscriberID string) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	count := 0
	for _, u := range r.m.users {
		if u.OverseerUID == subscriberID {
			count++
		}
	}
	return count, nil
}

func (r memUsers) SetSellerSubaccount(_ context.Context, uid, subaccountCode string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u := r.m.users[uid]
	u.SellerPaystackAccount = subaccountCode
	r.m.users[uid] = u
	return nil
}

func (r memUsers) SetStripeAccount(_ context.Context, uid, accountID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u := r.m.users[uid]
	u.StripeAccountID = accountID
	r.m.users[uid] = u
	return nil
}
