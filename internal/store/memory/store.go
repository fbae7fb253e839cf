// Package memory is an in-process store with the same uniqueness and
// conditional-update guarantees as the Postgres store. It backs local runs
// with STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/store"
)

var (
	_ store.SessionStore   = (*Store)(nil)
	_ store.CatalogueStore = (*Store)(nil)
)

type Store struct {
	mu sync.Mutex

	sessions map[string]models.Session
	billIDs  map[string]string
	events   map[string][]store.SessionEvent

	categories   map[int64]models.Category
	items        map[int64]models.Item
	portions     map[int64]models.Portion
	nextCategory int64
	nextItem     int64
	nextPortion  int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]models.Session),
		billIDs:    make(map[string]string),
		events:     make(map[string][]store.SessionEvent),
		categories: make(map[int64]models.Category),
		items:      make(map[int64]models.Item),
		portions:   make(map[int64]models.Portion),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) LatestSession(ctx context.Context, customerNumber, restaurantID, tableID string) (models.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest models.Session
	found := false
	for _, session := range s.sessions {
		if session.CustomerNumber != customerNumber || session.RestaurantID != restaurantID || session.TableID != tableID {
			continue
		}
		if !found || session.SessionStart.After(latest.SessionStart) {
			latest = session
			found = true
		}
	}
	return copySession(latest), found, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, store.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *Store) LatestBillID(ctx context.Context, prefix string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := ""
	found := false
	for billID := range s.billIDs {
		if !strings.HasPrefix(billID, prefix) {
			continue
		}
		if !found || billIDGreater(billID, latest) {
			latest = billID
			found = true
		}
	}
	return latest, found, nil
}

// billIDGreater orders by length first so that numeric suffixes compare
// numerically within a prefix.
func billIDGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

func (s *Store) CreateSession(ctx context.Context, input store.CreateSessionInput) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[input.SessionID]; exists {
		return models.Session{}, &store.UniqueViolation{Field: store.FieldSessionID, Constraint: "sessions_pkey"}
	}
	if _, exists := s.billIDs[input.BillID]; exists {
		return models.Session{}, &store.UniqueViolation{Field: store.FieldBillID, Constraint: "sessions_bill_id_key"}
	}

	start := input.SessionStart
	if start.IsZero() {
		start = s.now()
	}
	session := models.Session{
		SessionID:      input.SessionID,
		BillID:         input.BillID,
		RestaurantID:   input.RestaurantID,
		TableID:        input.TableID,
		CustomerNumber: input.CustomerNumber,
		SessionStart:   start,
		SessionStatus:  models.SessionActive,
		PaymentStatus:  models.PaymentPending,
	}
	event, err := store.NewSessionEvent(nil, session, store.EventSessionCreated, start)
	if err != nil {
		return models.Session{}, err
	}

	s.sessions[session.SessionID] = session
	s.billIDs[session.BillID] = session.SessionID
	s.events[session.SessionID] = []store.SessionEvent{event}
	return session, nil
}

func (s *Store) TransitionSession(ctx context.Context, input store.TransitionInput) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[input.SessionID]
	if !ok {
		return models.Session{}, store.ErrSessionNotFound
	}
	if !store.ValidTransition(input.Action, session.SessionStatus, session.PaymentStatus) {
		return models.Session{}, store.ErrInvalidState
	}
	sessionStatus, paymentStatus, _ := store.TransitionTarget(input.Action)

	endedAt := input.OccurredAt
	if endedAt.IsZero() {
		endedAt = s.now()
	}
	session.SessionStatus = sessionStatus
	session.PaymentStatus = paymentStatus
	session.SessionEnd = &endedAt

	history := s.events[session.SessionID]
	var prev *store.SessionEvent
	if len(history) > 0 {
		prev = &history[len(history)-1]
	}
	event, err := store.NewSessionEvent(prev, session, store.EventTypeForAction(input.Action), endedAt)
	if err != nil {
		return models.Session{}, err
	}

	s.sessions[session.SessionID] = session
	s.events[session.SessionID] = append(history, event)
	return copySession(session), nil
}

func (s *Store) ListSessionEvents(ctx context.Context, sessionID string) ([]store.SessionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[sessionID]
	out := make([]store.SessionEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *Store) ListCategories(ctx context.Context, restaurantID string) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var categories []models.Category
	for _, category := range s.categories {
		if category.RestaurantID == restaurantID {
			categories = append(categories, category)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, restaurantID, name string) (models.Category, error) {
	if err := ctx.Err(); err != nil {
		return models.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, category := range s.categories {
		if category.RestaurantID == restaurantID && category.Name == name {
			return category, nil
		}
	}
	return models.Category{}, store.ErrCategoryNotFound
}

func (s *Store) CreateCategory(ctx context.Context, restaurantID, name string) (models.Category, error) {
	if err := ctx.Err(); err != nil {
		return models.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, category := range s.categories {
		if category.RestaurantID == restaurantID && category.Name == name {
			return models.Category{}, &store.UniqueViolation{Field: store.FieldCategory, Constraint: "categories_restaurant_id_name_key"}
		}
	}
	s.nextCategory++
	category := models.Category{
		CategoryID:   s.nextCategory,
		RestaurantID: restaurantID,
		Name:         name,
		CreatedAt:    s.now(),
	}
	s.categories[category.CategoryID] = category
	return category, nil
}

func (s *Store) UpdateCategoryIcon(ctx context.Context, categoryID int64, iconName string) (models.Category, error) {
	if err := ctx.Err(); err != nil {
		return models.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[categoryID]
	if !ok {
		return models.Category{}, store.ErrCategoryNotFound
	}
	icon := iconName
	category.IconName = &icon
	s.categories[categoryID] = category
	return category, nil
}

func (s *Store) CreateItem(ctx context.Context, input store.CreateItemInput) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[input.CategoryID]; !ok {
		return models.Item{}, store.ErrCategoryNotFound
	}
	for _, item := range s.items {
		if item.CategoryID == input.CategoryID && item.Name == input.Name {
			return models.Item{}, &store.UniqueViolation{Field: store.FieldItem, Constraint: "items_category_id_name_key"}
		}
	}
	s.nextItem++
	item := models.Item{
		ItemID:       s.nextItem,
		CategoryID:   input.CategoryID,
		RestaurantID: input.RestaurantID,
		Name:         input.Name,
		Description:  input.Description,
		Price:        input.Price,
		ImageURL:     input.ImageURL,
		AvailStatus:  input.AvailStatus,
		PortionAvail: input.PortionAvail,
		Portions:     []models.Portion{},
		CreatedAt:    s.now(),
	}
	s.items[item.ItemID] = item
	return item, nil
}

func (s *Store) ListItems(ctx context.Context, categoryID int64) ([]models.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []models.Item
	for _, item := range s.items {
		if item.CategoryID == categoryID {
			items = append(items, s.withPortions(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, restaurantID string, itemID int64) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.RestaurantID != restaurantID {
		return models.Item{}, store.ErrItemNotFound
	}
	return s.withPortions(item), nil
}

func (s *Store) UpdateItem(ctx context.Context, item models.Item) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ItemID]
	if !ok || existing.RestaurantID != item.RestaurantID {
		return models.Item{}, store.ErrItemNotFound
	}
	for _, other := range s.items {
		if other.ItemID != item.ItemID && other.CategoryID == existing.CategoryID && other.Name == item.Name {
			return models.Item{}, &store.UniqueViolation{Field: store.FieldItem, Constraint: "items_category_id_name_key"}
		}
	}
	existing.Name = item.Name
	existing.Description = item.Description
	existing.Price = item.Price
	existing.ImageURL = item.ImageURL
	existing.AvailStatus = item.AvailStatus
	existing.PortionAvail = item.PortionAvail
	s.items[existing.ItemID] = existing
	return s.withPortions(existing), nil
}

func (s *Store) UpsertPortion(ctx context.Context, itemID int64, name string, price float64) (models.Portion, error) {
	if err := ctx.Err(); err != nil {
		return models.Portion{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[itemID]; !ok {
		return models.Portion{}, store.ErrItemNotFound
	}
	for id, portion := range s.portions {
		if portion.ItemID == itemID && portion.Name == name {
			portion.Price = price
			s.portions[id] = portion
			return portion, nil
		}
	}
	s.nextPortion++
	portion := models.Portion{PortionID: s.nextPortion, ItemID: itemID, Name: name, Price: price}
	s.portions[portion.PortionID] = portion
	return portion, nil
}

func (s *Store) withPortions(item models.Item) models.Item {
	portions := []models.Portion{}
	for _, portion := range s.portions {
		if portion.ItemID == item.ItemID {
			portions = append(portions, portion)
		}
	}
	sort.Slice(portions, func(i, j int) bool { return portions[i].Name < portions[j].Name })
	item.Portions = portions
	return item
}

func copySession(session models.Session) models.Session {
	if session.SessionEnd != nil {
		end := *session.SessionEnd
		session.SessionEnd = &end
	}
	return session
}
