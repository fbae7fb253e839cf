// Package session runs the dining-session lifecycle: reuse or lazy expiry of
// in-flight sessions, creation with bill id allocation, status checks and
// payment confirmation.
package session

import (
	"context"
	"errors"
	"time"

	"dinein/ordering-service/internal/apperr"
	"dinein/ordering-service/internal/billid"
	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/retry"
	"dinein/ordering-service/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultExpiry           = 8 * time.Hour
	DefaultMaxBillIDRetries = 3
	DefaultBillIDRetryDelay = 50 * time.Millisecond
)

const tracerName = "dinein/ordering-service/internal/session"

type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeReused
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeReused:
		return "reused"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type Summary struct {
	SessionID     string `json:"sessionId"`
	BillID        string `json:"billId"`
	PaymentStatus string `json:"paymentStatus"`
}

// CreateResult carries Summary for Created and Reused outcomes. An Expired
// outcome only reports SessionStatus; no new session was created.
type CreateResult struct {
	Outcome       Outcome
	Summary       Summary
	SessionStatus string
}

type CreateInput struct {
	CustomerNumber string
	RestaurantID   string
	TableID        string
}

type StatusInput struct {
	SessionID    string
	RestaurantID string
	TableID      string
}

type StatusResult struct {
	SessionStatus string `json:"sessionStatus"`
}

type Options struct {
	Expiry           time.Duration
	MaxBillIDRetries int
	// BillIDRetryDelay is the fixed wait between bill id attempts. Zero
	// retries immediately.
	BillIDRetryDelay time.Duration
	PaymentKey       string
	Now              func() time.Time
	Logger           logrus.FieldLogger
}

type Engine struct {
	store      store.SessionStore
	bills      *billid.Generator
	expiry     time.Duration
	retry      retry.Policy
	paymentKey string
	now        func() time.Time
	log        logrus.FieldLogger
	tracer     trace.Tracer
}

func NewEngine(st store.SessionStore, options Options) *Engine {
	expiry := options.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	attempts := options.MaxBillIDRetries
	if attempts <= 0 {
		attempts = DefaultMaxBillIDRetries
	}
	delay := options.BillIDRetryDelay
	if delay < 0 {
		delay = DefaultBillIDRetryDelay
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Engine{
		store:  st,
		bills:  billid.NewGenerator(st, now),
		expiry: expiry,
		retry: retry.Policy{
			MaxAttempts: attempts,
			Delay:       delay,
			Retryable: func(err error) bool {
				return store.IsUniqueViolation(err, store.FieldBillID)
			},
		},
		paymentKey: options.PaymentKey,
		now:        now,
		log:        log,
		tracer:     otel.Tracer(tracerName),
	}
}

// CreateOrReuse returns the customer's in-flight session for the table when it
// is still fresh, expires it when stale, and otherwise opens a new session.
func (e *Engine) CreateOrReuse(ctx context.Context, input CreateInput) (result CreateResult, err error) {
	ctx, span := e.tracer.Start(ctx, "session.CreateOrReuse", trace.WithAttributes(
		attribute.String("restaurant.id", input.RestaurantID),
		attribute.String("table.id", input.TableID),
	))
	defer func() {
		span.SetAttributes(attribute.String("session.outcome", result.Outcome.String()))
		endSpan(span, err)
	}()

	log := e.log.WithFields(logrus.Fields{
		"operation":     "create_session",
		"restaurant_id": input.RestaurantID,
		"table_id":      input.TableID,
	})

	latest, found, err := e.store.LatestSession(ctx, input.CustomerNumber, input.RestaurantID, input.TableID)
	if err != nil {
		log.WithError(err).Error("latest session lookup failed")
		return CreateResult{}, apperr.Internal("could not create session", err)
	}

	if !found {
		log.Info("no previous session found, creating a new session")
		return e.create(ctx, input, log)
	}

	log = log.WithFields(logrus.Fields{
		"session_id":     latest.SessionID,
		"session_status": latest.SessionStatus,
		"payment_status": latest.PaymentStatus,
	})

	if latest.PaymentStatus == models.PaymentPending && latest.SessionStatus != models.SessionExpired {
		age := e.now().Sub(latest.SessionStart)
		if !e.isStale(latest) {
			log.WithField("age_hours", age.Hours()).Info("reusing active pending session")
			return CreateResult{Outcome: OutcomeReused, Summary: summarize(latest)}, nil
		}

		log.WithField("age_hours", age.Hours()).Info("pending session is stale, marking expired")
		expired, err := e.expire(ctx, latest.SessionID)
		switch {
		case err == nil:
			return CreateResult{Outcome: OutcomeExpired, SessionStatus: expired.SessionStatus}, nil
		case errors.Is(err, store.ErrInvalidState):
			current, getErr := e.store.GetSession(ctx, latest.SessionID)
			if getErr != nil {
				log.WithError(getErr).Error("session reload after expiry race failed")
				return CreateResult{}, apperr.Internal("could not create session", getErr)
			}
			if current.SessionStatus == models.SessionExpired {
				return CreateResult{Outcome: OutcomeExpired, SessionStatus: current.SessionStatus}, nil
			}
			log.WithField("session_status", current.SessionStatus).Info("session transitioned concurrently, creating a new session")
		default:
			log.WithError(err).Error("expire session failed")
			return CreateResult{}, apperr.Internal("could not create session", err)
		}
	} else {
		log.Info("latest session not eligible for reuse, creating a new session")
	}

	return e.create(ctx, input, log)
}

func (e *Engine) create(ctx context.Context, input CreateInput, log logrus.FieldLogger) (CreateResult, error) {
	policy := e.retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": policy.MaxAttempts,
		}).Warn("bill id unique constraint violation, retrying")
	}

	session, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (models.Session, error) {
		billID, err := e.bills.Next(ctx)
		if err != nil {
			return models.Session{}, apperr.Internal("could not create session", err)
		}
		log.WithFields(logrus.Fields{"bill_id": billID, "attempt": attempt}).Debug("generated bill id")
		return e.store.CreateSession(ctx, store.CreateSessionInput{
			SessionID:      uuid.NewString(),
			BillID:         billID,
			RestaurantID:   input.RestaurantID,
			TableID:        input.TableID,
			CustomerNumber: input.CustomerNumber,
			SessionStart:   e.now().UTC(),
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.WithError(err).Warn("create session interrupted")
			return CreateResult{}, apperr.Transient("session creation was interrupted, please try again", err)
		}
		if errors.Is(err, retry.ErrExhausted) {
			log.WithError(err).Errorf("failed to generate unique bill id after %d attempts", policy.MaxAttempts)
			return CreateResult{}, apperr.Transient("failed to generate unique bill id, please try again later", err)
		}
		if _, ok := apperr.As(err); ok {
			log.WithError(err).Error("create session failed")
			return CreateResult{}, err
		}
		log.WithError(err).Error("create session failed")
		return CreateResult{}, apperr.Wrap(apperr.KindValidation, "could not create session", err)
	}

	log.WithFields(logrus.Fields{"session_id": session.SessionID, "bill_id": session.BillID}).Info("new session created")
	return CreateResult{Outcome: OutcomeCreated, Summary: summarize(session)}, nil
}

// CheckStatus reports the session's status, lazily expiring it when it has
// outlived the expiry window. Terminal sessions are returned without writes.
func (e *Engine) CheckStatus(ctx context.Context, input StatusInput) (result StatusResult, err error) {
	ctx, span := e.tracer.Start(ctx, "session.CheckStatus", trace.WithAttributes(
		attribute.String("session.id", input.SessionID),
		attribute.String("restaurant.id", input.RestaurantID),
		attribute.String("table.id", input.TableID),
	))
	defer func() { endSpan(span, err) }()

	log := e.log.WithFields(logrus.Fields{
		"operation":     "session_status",
		"session_id":    input.SessionID,
		"restaurant_id": input.RestaurantID,
		"table_id":      input.TableID,
	})

	session, err := e.store.GetSession(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			log.Warn("session not found")
			return StatusResult{}, apperr.Newf(apperr.KindNotFound, "session with id %s not found", input.SessionID)
		}
		log.WithError(err).Error("session lookup failed")
		return StatusResult{}, apperr.Internal("could not check session status", err)
	}

	if session.RestaurantID != input.RestaurantID || session.TableID != input.TableID {
		log.Warn("session found but restaurant or table did not match")
		return StatusResult{}, apperr.Validation("session details do not match the provided restaurant or table")
	}

	if session.IsTerminal() {
		return StatusResult{SessionStatus: session.SessionStatus}, nil
	}

	if !e.isStale(session) {
		return StatusResult{SessionStatus: session.SessionStatus}, nil
	}

	log.Info("session is stale, marking expired")
	expired, err := e.expire(ctx, session.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrInvalidState) {
			log.WithError(err).Error("expire session failed")
			return StatusResult{}, apperr.Internal("could not check session status", err)
		}
		current, getErr := e.store.GetSession(ctx, session.SessionID)
		if getErr != nil {
			log.WithError(getErr).Error("session reload after expiry race failed")
			return StatusResult{}, apperr.Internal("could not check session status", getErr)
		}
		return StatusResult{SessionStatus: current.SessionStatus}, nil
	}
	return StatusResult{SessionStatus: expired.SessionStatus}, nil
}

// isStale reports whether the session has outlived the expiry window or
// carries a start time in the future.
func (e *Engine) isStale(session models.Session) bool {
	age := e.now().Sub(session.SessionStart)
	return age < 0 || age > e.expiry
}

func (e *Engine) expire(ctx context.Context, sessionID string) (models.Session, error) {
	return e.store.TransitionSession(ctx, store.TransitionInput{
		SessionID:  sessionID,
		Action:     store.ActionExpire,
		OccurredAt: e.now().UTC(),
	})
}

func summarize(session models.Session) Summary {
	return Summary{
		SessionID:     session.SessionID,
		BillID:        session.BillID,
		PaymentStatus: session.PaymentStatus,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}
