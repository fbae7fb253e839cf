package session

import (
	"context"
	"errors"
	"fmt"

	"dinein/ordering-service/internal/apperr"
	"dinein/ordering-service/internal/billid"
	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/store"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditReport is the outcome of checking a session row against its event chain.
type AuditReport struct {
	SessionID    string   `json:"sessionId"`
	BillID       string   `json:"billId"`
	BillSequence int      `json:"billSequence"`
	Events       int      `json:"events"`
	ChainValid   bool     `json:"chainValid"`
	Mismatches   []string `json:"mismatches"`
}

func (r AuditReport) OK() bool {
	return r.ChainValid && len(r.Mismatches) == 0
}

// Audit verifies the session's event hash chain, replays it and compares the
// result with the stored row. The bill id must carry the prefix of the
// session's start date.
func (e *Engine) Audit(ctx context.Context, sessionID string) (report AuditReport, err error) {
	ctx, span := e.tracer.Start(ctx, "session.Audit", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer func() { endSpan(span, err) }()

	log := e.log.WithFields(logrus.Fields{
		"operation":  "session_audit",
		"session_id": sessionID,
	})

	current, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return AuditReport{}, apperr.Newf(apperr.KindNotFound, "session with id %s not found", sessionID)
		}
		log.WithError(err).Error("session lookup failed")
		return AuditReport{}, apperr.Internal("could not audit session", err)
	}
	events, err := e.store.ListSessionEvents(ctx, sessionID)
	if err != nil {
		log.WithError(err).Error("list session events failed")
		return AuditReport{}, apperr.Internal("could not audit session", err)
	}

	report = AuditReport{
		SessionID:  current.SessionID,
		BillID:     current.BillID,
		Events:     len(events),
		ChainValid: len(events) > 0 && store.VerifyChain(events),
		Mismatches: []string{},
	}

	prefix := billid.Prefix(current.SessionStart)
	if seq, ok := billid.Sequence(prefix, current.BillID); ok {
		report.BillSequence = seq
	} else {
		report.Mismatches = append(report.Mismatches, fmt.Sprintf("bill id %s does not match session start date %s", current.BillID, prefix))
	}

	replayed, err := store.RehydrateSession(events)
	if err != nil {
		report.Mismatches = append(report.Mismatches, fmt.Sprintf("events could not be replayed: %v", err))
	} else {
		report.Mismatches = append(report.Mismatches, compareSessions(current, replayed)...)
	}

	if !report.OK() {
		log.WithFields(logrus.Fields{
			"chain_valid": report.ChainValid,
			"mismatches":  len(report.Mismatches),
		}).Warn("session audit failed")
	}
	return report, nil
}

func compareSessions(stored, replayed models.Session) []string {
	var mismatches []string
	field := func(name, want, got string) {
		if want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s: row has %q, events have %q", name, want, got))
		}
	}
	field("billId", stored.BillID, replayed.BillID)
	field("restaurantId", stored.RestaurantID, replayed.RestaurantID)
	field("tableId", stored.TableID, replayed.TableID)
	field("sessionStatus", stored.SessionStatus, replayed.SessionStatus)
	field("paymentStatus", stored.PaymentStatus, replayed.PaymentStatus)
	if !stored.SessionStart.Equal(replayed.SessionStart) {
		mismatches = append(mismatches, "sessionStart differs from events")
	}
	switch {
	case (stored.SessionEnd == nil) != (replayed.SessionEnd == nil):
		mismatches = append(mismatches, "sessionEnd differs from events")
	case stored.SessionEnd != nil && !stored.SessionEnd.Equal(*replayed.SessionEnd):
		mismatches = append(mismatches, "sessionEnd differs from events")
	}
	return mismatches
}
