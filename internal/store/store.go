package store

import (
	"context"
	"time"

	"dinein/ordering-service/internal/models"
)

type CreateSessionInput struct {
	SessionID      string
	BillID         string
	RestaurantID   string
	TableID        string
	CustomerNumber string
	SessionStart   time.Time
}

type TransitionInput struct {
	SessionID  string
	Action     string
	OccurredAt time.Time
}

type SessionStore interface {
	// LatestSession returns the most recently started session for the exact
	// customer, restaurant and table.
	LatestSession(ctx context.Context, customerNumber, restaurantID, tableID string) (models.Session, bool, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	// LatestBillID returns the numerically greatest bill id that starts with prefix.
	LatestBillID(ctx context.Context, prefix string) (string, bool, error)
	// CreateSession inserts a Pending, Active session. Collisions are reported
	// as *UniqueViolation.
	CreateSession(ctx context.Context, input CreateSessionInput) (models.Session, error)
	// TransitionSession applies a terminal transition atomically. It returns
	// ErrInvalidState when the row is no longer in a state the action accepts.
	TransitionSession(ctx context.Context, input TransitionInput) (models.Session, error)
	ListSessionEvents(ctx context.Context, sessionID string) ([]SessionEvent, error)
}

type CreateItemInput struct {
	CategoryID   int64
	RestaurantID string
	Name         string
	Description  *string
	Price        *float64
	ImageURL     *string
	AvailStatus  bool
	PortionAvail bool
}

type CatalogueStore interface {
	ListCategories(ctx context.Context, restaurantID string) ([]models.Category, error)
	GetCategory(ctx context.Context, restaurantID, name string) (models.Category, error)
	CreateCategory(ctx context.Context, restaurantID, name string) (models.Category, error)
	UpdateCategoryIcon(ctx context.Context, categoryID int64, iconName string) (models.Category, error)
	CreateItem(ctx context.Context, input CreateItemInput) (models.Item, error)
	ListItems(ctx context.Context, categoryID int64) ([]models.Item, error)
	GetItem(ctx context.Context, restaurantID string, itemID int64) (models.Item, error)
	UpdateItem(ctx context.Context, item models.Item) (models.Item, error)
	UpsertPortion(ctx context.Context, itemID int64, name string, price float64) (models.Portion, error)
}
