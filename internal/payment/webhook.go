package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/yourusername/club-portal/internal/apierror"
	"github.com/yourusername/club-portal/internal/logging"
	"github.com/yourusername/club-portal/internal/metrics"
	"github.com/yourusername/club-portal/internal/registration"
)

const (
	maxWebhookBytes = 64 << 10
	signatureHeader = "Stripe-Signature"

	eventCheckoutCompleted     = "checkout.session.completed"
	eventCheckoutExpired       = "checkout.session.expired"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	eventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// Dispatcher は決済イベントに応じた登録の確定・失効処理を実行（またはキューに投入）します。
type Dispatcher interface {
	Confirm(ctx context.Context, registrationID, sessionID string) error
	Expire(ctx context.Context, registrationID, sessionID string) error
}

// WebhookHandler は Stripe の Webhook を受け付けます。
type WebhookHandler struct {
	secret     string
	dispatcher Dispatcher
	logger     logrus.FieldLogger
}

// NewWebhookHandler は WebhookHandler を作成します。
func NewWebhookHandler(secret string, dispatcher Dispatcher, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{secret: secret, dispatcher: dispatcher, logger: logger}
}

// Handle は POST /api/payments/webhook のハンドラーです。
func (h *WebhookHandler) Handle(c *gin.Context) {
	log := logging.FromContext(c, h.logger)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil {
		apierror.Respond(c, apierror.InvalidInput("リクエストボディを読み込めませんでした"))
		return
	}
	if len(body) > maxWebhookBytes {
		apierror.Respond(c, apierror.New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "リクエストボディが大きすぎます"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, c.GetHeader(signatureHeader), h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.WithError(err).Warn("webhook signature verification failed")
		apierror.Respond(c, apierror.New(http.StatusBadRequest, "INVALID_SIGNATURE", "署名を検証できませんでした"))
		return
	}

	eventType := string(event.Type)
	log = log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": eventType})

	var dispatch func(ctx context.Context, registrationID, sessionID string) error
	switch eventType {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded:
		dispatch = h.dispatcher.Confirm
	case eventCheckoutExpired, eventAsyncPaymentFailed:
		dispatch = h.dispatcher.Expire
	default:
		metrics.ObservePaymentEvent(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.WithError(err).Warn("webhook payload is not a checkout session")
		apierror.Respond(c, apierror.InvalidInput("checkout session を読み込めませんでした"))
		return
	}
	if eventType == eventCheckoutCompleted && session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// 銀行振込などの遅延決済は async_payment_succeeded を受けてから確定する
		log.WithField("payment_status", session.PaymentStatus).Info("checkout completed without payment")
		metrics.ObservePaymentEvent(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	registrationID := registrationIDOf(&session)
	if registrationID == "" {
		log.WithField("session_id", session.ID).Warn("checkout session without registration id")
		metrics.ObservePaymentEvent(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	err = dispatch(c.Request.Context(), registrationID, session.ID)
	switch {
	case err == nil:
		metrics.ObservePaymentEvent(eventType, "processed")
	case errors.Is(err, registration.ErrRegistrationNotFound), errors.Is(err, registration.ErrCheckoutMismatch):
		// 再送しても結果は変わらないため受理する
		log.WithError(err).WithField("registration_id", registrationID).Warn("payment event rejected")
		metrics.ObservePaymentEvent(eventType, "rejected")
	default:
		log.WithError(err).WithField("registration_id", registrationID).Error("payment event failed")
		metrics.ObservePaymentEvent(eventType, "error")
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func registrationIDOf(session *stripe.CheckoutSession) string {
	if id := session.Metadata[MetadataRegistrationID]; id != "" {
		return id
	}
	return session.ClientReferenceID
}
