package session

import (
	"context"
	"crypto/subtle"
	"errors"

	"dinein/ordering-service/internal/apperr"
	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/store"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ConfirmInput struct {
	SessionID        string
	SignedPaymentKey string
}

// ConfirmPayment marks a pending, unexpired session as paid and completed.
// The caller must present the shared payment confirmation key.
func (e *Engine) ConfirmPayment(ctx context.Context, input ConfirmInput) (result Summary, err error) {
	ctx, span := e.tracer.Start(ctx, "session.ConfirmPayment", trace.WithAttributes(
		attribute.String("session.id", input.SessionID),
	))
	defer func() { endSpan(span, err) }()

	log := e.log.WithFields(logrus.Fields{
		"operation":  "payment_confirm",
		"session_id": input.SessionID,
	})

	if e.paymentKey == "" {
		log.Error("payment confirmation key is not configured")
		return Summary{}, apperr.Configuration("payment confirmation system configuration error")
	}
	if subtle.ConstantTimeCompare([]byte(input.SignedPaymentKey), []byte(e.paymentKey)) != 1 {
		log.Warn("invalid signed payment key")
		return Summary{}, apperr.Unauthorized("invalid payment confirmation key")
	}

	session, err := e.store.GetSession(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			log.Warn("session not found")
			return Summary{}, apperr.Newf(apperr.KindNotFound, "session with id %s not found", input.SessionID)
		}
		log.WithError(err).Error("session lookup failed")
		return Summary{}, apperr.Internal("could not confirm payment due to an unexpected error", err)
	}

	if err := confirmable(session); err != nil {
		log.WithFields(logrus.Fields{
			"session_status": session.SessionStatus,
			"payment_status": session.PaymentStatus,
		}).Warn("payment confirmation rejected")
		return Summary{}, err
	}

	updated, err := e.store.TransitionSession(ctx, store.TransitionInput{
		SessionID:  session.SessionID,
		Action:     store.ActionConfirm,
		OccurredAt: e.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidState) {
			// Lost a race with expiry or another confirmation.
			current, getErr := e.store.GetSession(ctx, session.SessionID)
			if getErr == nil {
				if rejectErr := confirmable(current); rejectErr != nil {
					log.Warn("session changed state during payment confirmation")
					return Summary{}, rejectErr
				}
			}
			return Summary{}, apperr.Validation("session is no longer eligible for payment confirmation")
		}
		log.WithError(err).Error("confirm payment failed")
		return Summary{}, apperr.Internal("could not confirm payment due to an unexpected error", err)
	}

	log.WithField("bill_id", updated.BillID).Info("payment confirmed, session completed")
	return summarize(updated), nil
}

func confirmable(session models.Session) error {
	if session.PaymentStatus != models.PaymentPending {
		return apperr.Newf(apperr.KindValidation, "session payment status is %s, not %s", session.PaymentStatus, models.PaymentPending)
	}
	if session.SessionStatus == models.SessionExpired {
		return apperr.Validation("cannot confirm payment for an expired session")
	}
	return nil
}
