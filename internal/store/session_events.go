package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dinein/ordering-service/internal/models"
)

var (
	ErrEmptyChain   = errors.New("session has no events")
	ErrForeignEvent = errors.New("event belongs to another session")
)

const (
	EventSessionCreated   = "session.created"
	EventSessionExpired   = "session.expired"
	EventSessionCompleted = "session.completed"
)

// SessionEvent is one entry of the per-session audit chain. Each event hashes
// its predecessor so tampering with history is detectable.
type SessionEvent struct {
	SessionID string          `json:"sessionId"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	PrevHash  string          `json:"prevHash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	SessionID     string     `json:"sessionId"`
	BillID        string     `json:"billId"`
	RestaurantID  string     `json:"restaurantId"`
	TableID       string     `json:"tableId"`
	SessionStatus string     `json:"sessionStatus"`
	PaymentStatus string     `json:"paymentStatus"`
	SessionStart  *time.Time `json:"sessionStart,omitempty"`
	SessionEnd    *time.Time `json:"sessionEnd,omitempty"`
}

func EventTypeForAction(action string) string {
	switch action {
	case ActionExpire:
		return EventSessionExpired
	case ActionConfirm:
		return EventSessionCompleted
	default:
		return ""
	}
}

func SessionEventPayload(session models.Session) (json.RawMessage, error) {
	start := session.SessionStart
	return json.Marshal(eventPayload{
		SessionID:     session.SessionID,
		BillID:        session.BillID,
		RestaurantID:  session.RestaurantID,
		TableID:       session.TableID,
		SessionStatus: session.SessionStatus,
		PaymentStatus: session.PaymentStatus,
		SessionStart:  &start,
		SessionEnd:    session.SessionEnd,
	})
}

// ComputeSessionEventHash digests an event together with the hash of its
// predecessor. Fields are length-prefixed so no two events share an input.
func ComputeSessionEventHash(prevHash, sessionID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	h := sha256.New()
	for _, part := range []string{
		prevHash,
		sessionID,
		strconv.Itoa(seq),
		eventType,
		createdAt.UTC().Format(time.RFC3339Nano),
		string(payload),
	} {
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewSessionEvent builds the next event in the chain after prev (nil for the first).
func NewSessionEvent(prev *SessionEvent, session models.Session, eventType string, createdAt time.Time) (SessionEvent, error) {
	payload, err := SessionEventPayload(session)
	if err != nil {
		return SessionEvent{}, err
	}
	seq := 1
	prevHash := ""
	if prev != nil {
		seq = prev.Seq + 1
		prevHash = prev.Hash
	}
	return SessionEvent{
		SessionID: session.SessionID,
		Seq:       seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
		PrevHash:  prevHash,
		Hash:      ComputeSessionEventHash(prevHash, session.SessionID, eventType, payload, createdAt, seq),
	}, nil
}

// VerifyChain checks sequence continuity and hash links of a session's events.
func VerifyChain(events []SessionEvent) bool {
	prevHash := ""
	for i, event := range events {
		if event.Seq != i+1 || event.PrevHash != prevHash {
			return false
		}
		if ComputeSessionEventHash(event.PrevHash, event.SessionID, event.Type, event.Payload, event.CreatedAt, event.Seq) != event.Hash {
			return false
		}
		prevHash = event.Hash
	}
	return true
}

// RehydrateSession returns the session as recorded by the chain. Every event
// carries a full snapshot, so the last one wins; each is still decoded and
// checked against the chain's session id.
func RehydrateSession(events []SessionEvent) (models.Session, error) {
	if len(events) == 0 {
		return models.Session{}, ErrEmptyChain
	}
	var session models.Session
	for _, event := range events {
		var snapshot eventPayload
		if err := json.Unmarshal(event.Payload, &snapshot); err != nil {
			return models.Session{}, fmt.Errorf("event %d: %w", event.Seq, err)
		}
		if snapshot.SessionID != event.SessionID {
			return models.Session{}, fmt.Errorf("event %d: %w", event.Seq, ErrForeignEvent)
		}
		session = snapshot.session()
	}
	return session, nil
}

func (p eventPayload) session() models.Session {
	session := models.Session{
		SessionID:     p.SessionID,
		BillID:        p.BillID,
		RestaurantID:  p.RestaurantID,
		TableID:       p.TableID,
		SessionStatus: p.SessionStatus,
		PaymentStatus: p.PaymentStatus,
		SessionEnd:    p.SessionEnd,
	}
	if p.SessionStart != nil {
		session.SessionStart = *p.SessionStart
	}
	return session
}
