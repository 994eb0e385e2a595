package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/db"
	"github.com/thetact/tact-backend/internal/models"
	"github.com/thetact/tact-backend/internal/paystack"
	"github.com/thetact/tact-backend/internal/stripepay"
)

var (
	subscriptionChannels = []string{"card", "bank", "ussd", "qr"}
	paymentLinkChannels  = []string{"card", "bank", "ussd", "qr", "mobile_money"}
)

// CheckoutConfig holds pricing and split settings for checkout flows.
type CheckoutConfig struct {
	Currency             string
	AdminSharePercent    float64
	SellerPlatformFeePct float64
	CallbackURL          string
}

type checkoutService struct {
	paystack PaystackGateway
	stripe   StripeGateway
	orders   db.OrderRepository
	users    db.UserRepository
	settler  *OrderSettler
	logger   *zap.Logger
	cfg      CheckoutConfig
	now      Clock
}

// NewCheckoutService creates a CheckoutService. stripe may be nil when Stripe is not configured.
func NewCheckoutService(
	paystackGateway PaystackGateway,
	stripeGateway StripeGateway,
	orders db.OrderRepository,
	users db.UserRepository,
	settler *OrderSettler,
	logger *zap.Logger,
	cfg CheckoutConfig,
	now Clock,
) CheckoutService {
	if now == nil {
		now = time.Now
	}
	return &checkoutService{
		paystack: paystackGateway,
		stripe:   stripeGateway,
		orders:   orders,
		users:    users,
		settler:  settler,
		logger:   logger,
		cfg:      cfg,
		now:      now,
	}
}

func (s *checkoutService) QuoteSubscription(memberCount int) (Quote, error) {
	if memberCount < 0 {
		return Quote{}, fmt.Errorf("%w: memberCount must not be negative", ErrValidation)
	}
	return QuoteFor(memberCount), nil
}

// InitializeSubscription starts the first, card-authorizing charge of a subscription.
// The server price for the member count is charged; a different client amount is only logged.
func (s *checkoutService) InitializeSubscription(ctx context.Context, req models.InitializeSubscriptionRequest) (*models.InitializeSubscriptionResult, error) {
	subscriberID := req.Subscriber()
	if req.Email == "" || req.Amount <= 0 || subscriberID == "" {
		return nil, fmt.Errorf("%w: email, amount and subscriberId are required", ErrValidation)
	}
	if req.MemberCount < 0 {
		return nil, fmt.Errorf("%w: memberCount must not be negative", ErrValidation)
	}

	quote := QuoteFor(req.MemberCount)
	if quote.Amount != req.Amount {
		s.logger.Warn("Client subscription amount differs from server price",
			zap.String("subscriber_id", subscriberID),
			zap.Int64("client_amount", req.Amount),
			zap.Int64("server_amount", quote.Amount),
			zap.Int("member_count", req.MemberCount))
	}

	tierLabel := req.Tier
	if tierLabel == "" {
		tierLabel = string(quote.Tier)
	}
	reference := fmt.Sprintf("AUTH_%s_%d", subscriberID, s.now().UnixMilli())

	resp, err := s.paystack.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       req.Email,
		Amount:      quote.Amount,
		Currency:    s.cfg.Currency,
		Reference:   reference,
		Channels:    subscriptionChannels,
		CallbackURL: s.cfg.CallbackURL,
		Metadata: &paystack.Metadata{CustomFields: []paystack.CustomField{
			{DisplayName: "Subscription_Type", VariableName: paystack.FieldSubscriptionType, Value: paystack.SubscriptionType},
			{DisplayName: "Firebase_UID", VariableName: paystack.FieldFirebaseUID, Value: subscriberID},
			{DisplayName: "Tier_Level", VariableName: paystack.FieldTierLevel, Value: tierLabel},
			{DisplayName: "Member_Count", VariableName: paystack.FieldMemberCount, Value: strconv.Itoa(req.MemberCount)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize subscription for '%s': %w", subscriberID, err)
	}

	s.logger.Info("Subscription authorization initialized",
		zap.String("subscriber_id", subscriberID),
		zap.String("reference", reference),
		zap.Int64("amount", quote.Amount))
	return &models.InitializeSubscriptionResult{
		AuthorizationURL: resp.AuthorizationURL,
		Reference:        reference,
		Amount:           quote.Amount,
		Tier:             string(quote.Tier),
	}, nil
}

// CreatePaymentLink initializes a one-time order payment, splitting seller products to their subaccounts.
func (s *checkoutService) CreatePaymentLink(ctx context.Context, req models.PaymentLinkRequest) (string, error) {
	total, splits, err := s.priceOrder(req)
	if err != nil {
		return "", err
	}

	init := paystack.InitializeRequest{
		Email:       req.Email,
		Amount:      total,
		Currency:    s.cfg.Currency,
		Reference:   req.OrderReference,
		Channels:    paymentLinkChannels,
		CallbackURL: s.cfg.CallbackURL,
	}
	if len(splits) > 0 {
		init.Split = &paystack.Split{Type: "flat", Subaccounts: splits}
	}

	resp, err := s.paystack.InitializeTransaction(ctx, init)
	if err != nil {
		return "", fmt.Errorf("failed to create payment link for order '%s': %w", req.OrderReference, err)
	}
	s.logger.Info("Payment link created",
		zap.String("order_reference", req.OrderReference),
		zap.Int64("amount", total),
		zap.Int("split_count", len(splits)))
	return resp.AuthorizationURL, nil
}

func (s *checkoutService) priceOrder(req models.PaymentLinkRequest) (int64, []paystack.SplitShare, error) {
	if req.Email == "" || req.OrderReference == "" || len(req.Products) == 0 {
		return 0, nil, fmt.Errorf("%w: email, products and orderReference are required", ErrValidation)
	}
	var total int64
	var splits []paystack.SplitShare
	for i, p := range req.Products {
		if p.Price < 0 || p.Quantity < 0 {
			return 0, nil, fmt.Errorf("%w: product %d has a negative price or quantity", ErrValidation, i)
		}
		amount := p.MinorUnits()
		total += amount
		if p.Subaccount != "" {
			share := int64(math.Round(float64(amount) * (1 - s.cfg.AdminSharePercent/100)))
			splits = append(splits, paystack.SplitShare{Subaccount: p.Subaccount, Share: share})
		}
	}
	if total <= 0 {
		return 0, nil, fmt.Errorf("%w: order total must be positive", ErrValidation)
	}
	return total, splits, nil
}

// CreateSellerSubaccount registers a seller's bank account for split settlement and links it to the user.
func (s *checkoutService) CreateSellerSubaccount(ctx context.Context, req models.SellerSubaccountRequest) (string, error) {
	if req.UID == "" || req.BusinessName == "" || req.BankCode == "" || req.AccountNumber == "" || req.ContactEmail == "" {
		return "", fmt.Errorf("%w: uid, business_name, bank_code, account_number and contact_email are required", ErrValidation)
	}
	sub, err := s.paystack.CreateSubaccount(ctx, paystack.SubaccountRequest{
		BusinessName:        req.BusinessName,
		SettlementBank:      req.BankCode,
		AccountNumber:       req.AccountNumber,
		PercentageCharge:    s.cfg.SellerPlatformFeePct,
		PrimaryContactEmail: req.ContactEmail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create subaccount for '%s': %w", req.UID, err)
	}
	if err := s.users.SetSellerSubaccount(ctx, req.UID, sub.SubaccountCode); err != nil {
		return "", fmt.Errorf("subaccount %s created but not linked to user '%s': %w", sub.SubaccountCode, req.UID, err)
	}
	s.logger.Info("Seller subaccount created", zap.String("uid", req.UID), zap.String("subaccount_code", sub.SubaccountCode))
	return sub.SubaccountCode, nil
}

// VerifyOrderPayment asks Paystack for the transaction state of a pending order and settles it on success.
func (s *checkoutService) VerifyOrderPayment(ctx context.Context, reference string) (*models.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrValidation)
	}
	order, err := s.loadOrder(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return order, nil
	}

	tx, err := s.paystack.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to verify transaction '%s': %w", reference, err)
	}
	if !tx.Succeeded() {
		s.logger.Info("Order payment not yet successful",
			zap.String("order_reference", reference), zap.String("provider_response", tx.Status))
		return order, nil
	}

	event := tx.ChargeEvent()
	event.Reference = reference
	if _, err := s.settler.Settle(ctx, paystack.ProviderName, event); err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, reference)
}

func (s *checkoutService) loadOrder(ctx context.Context, reference string) (*models.Order, error) {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, reference)
		}
		return nil, fmt.Errorf("failed to load order '%s': %w", reference, err)
	}
	return order, nil
}

// CreateStripeCheckout returns a hosted Stripe Checkout URL for an order.
func (s *checkoutService) CreateStripeCheckout(ctx context.Context, req models.PaymentLinkRequest) (string, error) {
	if s.stripe == nil {
		return "", ErrProviderNotConfigured
	}
	if _, _, err := s.priceOrder(req); err != nil {
		return "", err
	}
	session, err := s.stripe.CreateCheckoutSession(ctx, stripepay.CheckoutRequest{
		Email:          req.Email,
		OrderReference: req.OrderReference,
		Products:       req.Products,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create stripe checkout for order '%s': %w", req.OrderReference, err)
	}
	s.logger.Info("Stripe checkout session created",
		zap.String("order_reference", req.OrderReference), zap.String("session_id", session.ID))
	return session.URL, nil
}

// CreateStripeConnectLink creates a connected account for a seller and returns its onboarding link.
func (s *checkoutService) CreateStripeConnectLink(ctx context.Context, req models.StripeConnectRequest) (string, error) {
	if s.stripe == nil {
		return "", ErrProviderNotConfigured
	}
	if req.UID == "" {
		return "", fmt.Errorf("%w: uid is required", ErrValidation)
	}
	onboarding, err := s.stripe.CreateConnectOnboarding(ctx, req.Email)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe account for '%s': %w", req.UID, err)
	}
	if err := s.users.SetStripeAccount(ctx, req.UID, onboarding.AccountID); err != nil {
		return "", fmt.Errorf("stripe account %s created but not linked to user '%s': %w", onboarding.AccountID, req.UID, err)
	}
	s.logger.Info("Stripe connect account created", zap.String("uid", req.UID), zap.String("account_id", onboarding.AccountID))
	return onboarding.URL, nil
}
