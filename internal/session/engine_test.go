package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dinein/ordering-service/internal/apperr"
	"dinein/ordering-service/internal/billid"
	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/store"
	"dinein/ordering-service/internal/store/memory"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPaymentKey = "shared-secret"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// 2 June 2025, 10:00 IST.
var june2 = time.Date(2025, time.June, 2, 10, 0, 0, 0, billid.Zone).UTC()

func newTestEngine(t *testing.T, st store.SessionStore, clk *clock) (*Engine, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewEngine(st, Options{
		PaymentKey:       testPaymentKey,
		BillIDRetryDelay: 0,
		Now:              clk.Now,
		Logger:           logger,
	}), hook
}

var guest = CreateInput{CustomerNumber: "9990001111", RestaurantID: "R1", TableID: "T1"}

func TestCreateFirstSessionOfTheDay(t *testing.T) {
	engine, _ := newTestEngine(t, memory.NewStore(), newClock(june2))

	result, err := engine.CreateOrReuse(context.Background(), guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, "2025JUN021", result.Summary.BillID)
	assert.Equal(t, models.PaymentPending, result.Summary.PaymentStatus)
	_, err = uuid.Parse(result.Summary.SessionID)
	assert.NoError(t, err)
}

func TestCreateReusesFreshPendingSession(t *testing.T) {
	clk := newClock(june2)
	engine, _ := newTestEngine(t, memory.NewStore(), clk)
	ctx := context.Background()

	first, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	second, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReused, second.Outcome)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestCreateSequencesAcrossTables(t *testing.T) {
	engine, _ := newTestEngine(t, memory.NewStore(), newClock(june2))
	ctx := context.Background()

	var billIDs []string
	for _, table := range []string{"T1", "T2", "T3"} {
		result, err := engine.CreateOrReuse(ctx, CreateInput{CustomerNumber: "9990001111", RestaurantID: "R1", TableID: table})
		require.NoError(t, err)
		billIDs = append(billIDs, result.Summary.BillID)
	}
	assert.Equal(t, []string{"2025JUN021", "2025JUN022", "2025JUN023"}, billIDs)
}

func TestCreateExpiresStaleSessionThenCreates(t *testing.T) {
	clk := newClock(june2)
	st := memory.NewStore()
	engine, _ := newTestEngine(t, st, clk)
	ctx := context.Background()

	first, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)

	clk.Advance(DefaultExpiry + time.Minute)
	expired, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, expired.Outcome)
	assert.Equal(t, models.SessionExpired, expired.SessionStatus)
	assert.Empty(t, expired.Summary.SessionID)

	stored, err := st.GetSession(ctx, first.Summary.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, stored.SessionStatus)
	assert.Equal(t, models.PaymentNotCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.SessionEnd)

	next, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, next.Outcome)
	assert.NotEqual(t, first.Summary.SessionID, next.Summary.SessionID)
	assert.Equal(t, "2025JUN022", next.Summary.BillID)
}

func TestCreateAtExactExpiryBoundaryReuses(t *testing.T) {
	clk := newClock(june2)
	engine, _ := newTestEngine(t, memory.NewStore(), clk)
	ctx := context.Background()

	_, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)

	clk.Advance(DefaultExpiry)
	result, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReused, result.Outcome)
}

func seedSession(t *testing.T, st *memory.Store, start time.Time) models.Session {
	t.Helper()
	session, err := st.CreateSession(context.Background(), store.CreateSessionInput{
		SessionID:      uuid.NewString(),
		BillID:         "2025JUN021",
		RestaurantID:   guest.RestaurantID,
		TableID:        guest.TableID,
		CustomerNumber: guest.CustomerNumber,
		SessionStart:   start,
	})
	require.NoError(t, err)
	return session
}

func TestCreateExpiresFutureDatedSession(t *testing.T) {
	st := memory.NewStore()
	engine, _ := newTestEngine(t, st, newClock(june2))
	ctx := context.Background()
	seeded := seedSession(t, st, june2.Add(time.Hour))

	expired, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, expired.Outcome)
	assert.Equal(t, models.SessionExpired, expired.SessionStatus)

	stored, err := st.GetSession(ctx, seeded.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, stored.SessionStatus)
	assert.Equal(t, models.PaymentNotCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.SessionEnd)

	next, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, next.Outcome)
	assert.NotEqual(t, seeded.SessionID, next.Summary.SessionID)
	assert.Equal(t, "2025JUN022", next.Summary.BillID)
}

func TestCheckStatusExpiresFutureDatedSession(t *testing.T) {
	st := memory.NewStore()
	engine, _ := newTestEngine(t, st, newClock(june2))
	ctx := context.Background()
	seeded := seedSession(t, st, june2.Add(time.Minute))

	status, err := engine.CheckStatus(ctx, StatusInput{SessionID: seeded.SessionID, RestaurantID: "R1", TableID: "T1"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, status.SessionStatus)

	stored, err := st.GetSession(ctx, seeded.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentNotCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.SessionEnd)
}

func TestCreateAfterCompletedSessionStartsNewOne(t *testing.T) {
	clk := newClock(june2)
	engine, _ := newTestEngine(t, memory.NewStore(), clk)
	ctx := context.Background()

	first, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	_, err = engine.ConfirmPayment(ctx, ConfirmInput{SessionID: first.Summary.SessionID, SignedPaymentKey: testPaymentKey})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	next, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, next.Outcome)
	assert.Equal(t, "2025JUN022", next.Summary.BillID)
}

// collidingStore reports a bill id unique violation on the first failures
// inserts before delegating to the wrapped store.
type collidingStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	calls    int
	err      error
}

func (s *collidingStore) CreateSession(ctx context.Context, input store.CreateSessionInput) (models.Session, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		if s.err != nil {
			return models.Session{}, s.err
		}
		return models.Session{}, &store.UniqueViolation{Field: store.FieldBillID, Constraint: "sessions_bill_id_key"}
	}
	return s.Store.CreateSession(ctx, input)
}

func TestCreateRetriesBillIDCollision(t *testing.T) {
	st := &collidingStore{Store: memory.NewStore(), failures: 2}
	engine, hook := newTestEngine(t, st, newClock(june2))

	result, err := engine.CreateOrReuse(context.Background(), guest)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, 3, st.calls)

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestCreateExhaustsBillIDRetries(t *testing.T) {
	st := &collidingStore{Store: memory.NewStore(), failures: 10}
	engine, _ := newTestEngine(t, st, newClock(june2))

	_, err := engine.CreateOrReuse(context.Background(), guest)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))
	assert.True(t, store.IsUniqueViolation(err, store.FieldBillID))
	assert.Equal(t, DefaultMaxBillIDRetries, st.calls)
}

func TestCreateOtherUniqueViolationIsNotRetried(t *testing.T) {
	st := &collidingStore{
		Store:    memory.NewStore(),
		failures: 1,
		err:      &store.UniqueViolation{Field: store.FieldSessionID, Constraint: "sessions_pkey"},
	}
	engine, _ := newTestEngine(t, st, newClock(june2))

	_, err := engine.CreateOrReuse(context.Background(), guest)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, 1, st.calls)
}

// cancellingStore cancels the caller's context on its first insert and
// reports a bill id collision, so the retry wait observes the cancellation.
type cancellingStore struct {
	*memory.Store
	cancel context.CancelFunc
	calls  int
}

func (s *cancellingStore) CreateSession(ctx context.Context, input store.CreateSessionInput) (models.Session, error) {
	s.calls++
	s.cancel()
	return models.Session{}, &store.UniqueViolation{Field: store.FieldBillID, Constraint: "sessions_bill_id_key"}
}

func TestCreateCancelledDuringRetryIsTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &cancellingStore{Store: memory.NewStore(), cancel: cancel}
	logger, _ := logtest.NewNullLogger()
	engine := NewEngine(st, Options{
		BillIDRetryDelay: time.Hour,
		Now:              newClock(june2).Now,
		Logger:           logger,
	})

	_, err := engine.CreateOrReuse(ctx, guest)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindTransient))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, st.calls)
}

func TestCreateConcurrentTablesGetDistinctBillIDs(t *testing.T) {
	engine, _ := newTestEngine(t, memory.NewStore(), newClock(june2))
	engine.retry.MaxAttempts = 20
	ctx := context.Background()

	const tables = 8
	results := make([]CreateResult, tables)
	errs := make([]error, tables)
	var wg sync.WaitGroup
	for i := 0; i < tables; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.CreateOrReuse(ctx, CreateInput{
				CustomerNumber: "9990001111",
				RestaurantID:   "R1",
				TableID:        uuid.NewString(),
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < tables; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i].Summary.BillID], "duplicate bill id %s", results[i].Summary.BillID)
		seen[results[i].Summary.BillID] = true
	}
}

func TestCheckStatus(t *testing.T) {
	clk := newClock(june2)
	st := memory.NewStore()
	engine, _ := newTestEngine(t, st, clk)
	ctx := context.Background()

	created, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	input := StatusInput{SessionID: created.Summary.SessionID, RestaurantID: "R1", TableID: "T1"}

	status, err := engine.CheckStatus(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, status.SessionStatus)

	_, err = engine.CheckStatus(ctx, StatusInput{SessionID: input.SessionID, RestaurantID: "R1", TableID: "T9"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = engine.CheckStatus(ctx, StatusInput{SessionID: uuid.NewString(), RestaurantID: "R1", TableID: "T1"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	clk.Advance(DefaultExpiry + time.Second)
	status, err = engine.CheckStatus(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, status.SessionStatus)

	events, err := st.ListSessionEvents(ctx, input.SessionID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	clk.Advance(time.Hour)
	status, err = engine.CheckStatus(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, status.SessionStatus)

	events, err = st.ListSessionEvents(ctx, input.SessionID)
	require.NoError(t, err)
	assert.Len(t, events, 2, "terminal sessions are not rewritten")
}

func TestCheckStatusCompletedSessionStaysCompleted(t *testing.T) {
	clk := newClock(june2)
	engine, _ := newTestEngine(t, memory.NewStore(), clk)
	ctx := context.Background()

	created, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	_, err = engine.ConfirmPayment(ctx, ConfirmInput{SessionID: created.Summary.SessionID, SignedPaymentKey: testPaymentKey})
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	status, err := engine.CheckStatus(ctx, StatusInput{SessionID: created.Summary.SessionID, RestaurantID: "R1", TableID: "T1"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, status.SessionStatus)
}

func TestConfirmPayment(t *testing.T) {
	engine, hook := newTestEngine(t, memory.NewStore(), newClock(june2))
	ctx := context.Background()

	created, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)

	summary, err := engine.ConfirmPayment(ctx, ConfirmInput{SessionID: created.Summary.SessionID, SignedPaymentKey: testPaymentKey})
	require.NoError(t, err)
	assert.Equal(t, created.Summary.SessionID, summary.SessionID)
	assert.Equal(t, created.Summary.BillID, summary.BillID)
	assert.Equal(t, models.PaymentConfirmed, summary.PaymentStatus)

	_, err = engine.ConfirmPayment(ctx, ConfirmInput{SessionID: created.Summary.SessionID, SignedPaymentKey: testPaymentKey})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "not Pending")

	for _, entry := range hook.AllEntries() {
		assert.NotContains(t, entry.Message, testPaymentKey)
		for _, value := range entry.Data {
			assert.NotEqual(t, testPaymentKey, value)
		}
	}
}

func TestConfirmPaymentGuards(t *testing.T) {
	clk := newClock(june2)
	st := memory.NewStore()
	engine, _ := newTestEngine(t, st, clk)
	ctx := context.Background()

	created, err := engine.CreateOrReuse(ctx, guest)
	require.NoError(t, err)
	sessionID := created.Summary.SessionID

	_, err = engine.ConfirmPayment(ctx, ConfirmInput{SessionID: sessionID, SignedPaymentKey: "wrong"})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	_, err = engine.ConfirmPayment(ctx, ConfirmInput{SessionID: uuid.NewString(), SignedPaymentKey: testPaymentKey})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	unconfigured := NewEngine(st, Options{Now: clk.Now, Logger: logrus.New()})
	_, err = unconfigured.ConfirmPayment(ctx, ConfirmInput{SessionID: sessionID, SignedPaymentKey: ""})
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))

	clk.Advance(DefaultExpiry + time.Minute)
	_, err = engine.CheckStatus(ctx, StatusInput{SessionID: sessionID, RestaurantID: "R1", TableID: "T1"})
	require.NoError(t, err)

	_, err = engine.ConfirmPayment(ctx, ConfirmInput{SessionID: sessionID, SignedPaymentKey: testPaymentKey})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) LatestSession(context.Context, string, string, string) (models.Session, bool, error) {
	return models.Session{}, false, s.err
}

func (s *failingStore) GetSession(context.Context, string) (models.Session, error) {
	return models.Session{}, s.err
}

func TestStoreFailuresAreInternal(t *testing.T) {
	boom := errors.New("connection reset")
	engine, _ := newTestEngine(t, &failingStore{Store: memory.NewStore(), err: boom}, newClock(june2))
	ctx := context.Background()

	_, err := engine.CreateOrReuse(ctx, guest)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.ErrorIs(t, err, boom)

	_, err = engine.CheckStatus(ctx, StatusInput{SessionID: uuid.NewString(), RestaurantID: "R1", TableID: "T1"})
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))

	_, err = engine.ConfirmPayment(ctx, ConfirmInput{SessionID: uuid.NewString(), SignedPaymentKey: testPaymentKey})
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
}
