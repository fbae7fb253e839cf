package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `session_id, bill_id, restaurant_id, table_id, customer_number, session_start, session_end, session_status, payment_status`

var (
	_ store.SessionStore   = (*Store)(nil)
	_ store.CatalogueStore = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var session models.Session
	var endNull sql.NullTime
	if err := row.Scan(&session.SessionID, &session.BillID, &session.RestaurantID, &session.TableID, &session.CustomerNumber, &session.SessionStart, &endNull, &session.SessionStatus, &session.PaymentStatus); err != nil {
		return models.Session{}, err
	}
	session.SessionStart = session.SessionStart.UTC()
	session.SessionEnd = nullTimePtr(endNull)
	return session, nil
}

func (s *Store) LatestSession(ctx context.Context, customerNumber, restaurantID, tableID string) (models.Session, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE customer_number = $1 AND restaurant_id = $2 AND table_id = $3
		ORDER BY session_start DESC
		LIMIT 1
	`, customerNumber, restaurantID, tableID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	return session, true, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE session_id = $1
	`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

// LatestBillID orders by length before value so a ten-digit sequence sorts
// after a nine-digit one.
func (s *Store) LatestBillID(ctx context.Context, prefix string) (string, bool, error) {
	var billID string
	err := s.pool.QueryRow(ctx, `
		SELECT bill_id
		FROM sessions
		WHERE bill_id LIKE $1 || '%'
		ORDER BY length(bill_id) DESC, bill_id DESC
		LIMIT 1
	`, prefix).Scan(&billID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return billID, true, nil
}

func (s *Store) CreateSession(ctx context.Context, input store.CreateSessionInput) (session models.Session, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Session{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	start := input.SessionStart
	if start.IsZero() {
		start = s.now()
	}
	start = start.UTC().Truncate(time.Microsecond)

	row := tx.QueryRow(ctx, `
		INSERT INTO sessions (session_id, bill_id, restaurant_id, table_id, customer_number, session_start)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns, input.SessionID, input.BillID, input.RestaurantID, input.TableID, input.CustomerNumber, start)
	session, err = scanSession(row)
	if err != nil {
		err = translateError(err)
		return models.Session{}, err
	}

	if err = insertSessionEvent(ctx, tx, session, store.EventSessionCreated, start); err != nil {
		return models.Session{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		err = translateError(err)
		return models.Session{}, err
	}
	return session, nil
}

// TransitionSession applies action with a conditional UPDATE guarded on the
// session's current non-terminal state. A lost race yields store.ErrInvalidState.
func (s *Store) TransitionSession(ctx context.Context, input store.TransitionInput) (session models.Session, err error) {
	sessionStatus, paymentStatus, ok := store.TransitionTarget(input.Action)
	if !ok {
		return models.Session{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Session{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := scanSession(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE session_id = $1
		FOR UPDATE
	`, input.SessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	if !store.ValidTransition(input.Action, current.SessionStatus, current.PaymentStatus) {
		err = store.ErrInvalidState
		return models.Session{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	occurredAt = occurredAt.UTC().Truncate(time.Microsecond)

	session, err = scanSession(tx.QueryRow(ctx, `
		UPDATE sessions
		SET session_status = $1, payment_status = $2, session_end = $3
		WHERE session_id = $4
			AND session_status = $5
			AND payment_status = $6
			AND session_status NOT IN ('Expired', 'Completed')
		RETURNING `+sessionColumns,
		sessionStatus, paymentStatus, occurredAt, input.SessionID, current.SessionStatus, current.PaymentStatus))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidState
		}
		return models.Session{}, err
	}

	if err = insertSessionEvent(ctx, tx, session, store.EventTypeForAction(input.Action), occurredAt); err != nil {
		return models.Session{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) ListSessionEvents(ctx context.Context, sessionID string) ([]store.SessionEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, session_seq, type, payload, created_at, prev_hash, hash
		FROM session_events
		WHERE session_id = $1
		ORDER BY session_seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.SessionEvent
	for rows.Next() {
		var event store.SessionEvent
		var payload []byte
		if err := rows.Scan(&event.SessionID, &event.Seq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = json.RawMessage(payload)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// insertSessionEvent appends to the session's hash chain. The session row is
// already locked by the caller's insert or FOR UPDATE.
func insertSessionEvent(ctx context.Context, tx pgx.Tx, session models.Session, eventType string, createdAt time.Time) error {
	var prev *store.SessionEvent
	var last store.SessionEvent
	row := tx.QueryRow(ctx, `
		SELECT session_seq, hash
		FROM session_events
		WHERE session_id = $1
		ORDER BY session_seq DESC
		LIMIT 1
	`, session.SessionID)
	if err := row.Scan(&last.Seq, &last.Hash); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	} else {
		prev = &last
	}

	event, err := store.NewSessionEvent(prev, session, eventType, createdAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO session_events (session_id, session_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.SessionID, event.Seq, event.Type, string(event.Payload), event.CreatedAt, event.PrevHash, event.Hash)
	return err
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}
