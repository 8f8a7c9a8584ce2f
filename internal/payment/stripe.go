// Package payment は決済サービス（Stripe Checkout）との連携を提供します。
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/yourusername/club-portal/internal/registration"
)

// MetadataRegistrationID は決済セッションのメタデータに登録IDを保存するキーです。
const MetadataRegistrationID = "registration_id"

// Stripe は Stripe Checkout の決済セッションを作成します。
type Stripe struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripe は Stripe を作成します。backends が nil の場合は本番のAPIに接続します。
func NewStripe(secretKey, successURL, cancelURL string, backends *stripe.Backends) (*Stripe, error) {
	if secretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY が設定されていません")
	}
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("checkout success/cancel URL is required")
	}
	return &Stripe{
		api:        client.New(secretKey, backends),
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

// CreateCheckout は登録料1件分の決済セッションを作成します。
func (s *Stripe) CreateCheckout(ctx context.Context, req registration.CheckoutRequest) (*registration.CheckoutSession, error) {
	if req.RegistrationID == "" {
		return nil, errors.New("registration id is required")
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("invalid amount %d", req.AmountCents)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(req.RegistrationID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(MetadataRegistrationID, req.RegistrationID)
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &registration.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
