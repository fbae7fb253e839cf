// Package catalogue manages a restaurant's menu: categories, their icons,
// items and per-item portions.
package catalogue

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"dinein/ordering-service/internal/apperr"
	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/store"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const DefaultCacheTTL = time.Minute

const (
	AttrName         = "name"
	AttrDescription  = "description"
	AttrPrice        = "price"
	AttrImageURL     = "imageUrl"
	AttrAvailStatus  = "availStatus"
	AttrPortionAvail = "portionAvail"
)

type AddItemInput struct {
	RestaurantID string
	CategoryName string
	ItemName     string
	Description  *string
	Price        *float64
	ImageURL     *string
	AvailStatus  bool
	PortionAvail bool
}

type Options struct {
	CacheTTL time.Duration
	Logger   logrus.FieldLogger
}

type Service struct {
	store store.CatalogueStore
	cache *cache.Cache
	log   logrus.FieldLogger

	// generations counts writes per restaurant. A read only caches what it
	// loaded if no write happened in between.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewService(st store.CatalogueStore, options Options) *Service {
	ttl := options.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:       st,
		cache:       cache.New(ttl, 2*ttl),
		log:         log,
		generations: make(map[string]uint64),
	}
}

func categoriesKey(restaurantID string) string { return "categories:" + restaurantID }
func iconsKey(restaurantID string) string      { return "icons:" + restaurantID }

func (s *Service) invalidate(restaurantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[restaurantID]++
	s.cache.Delete(categoriesKey(restaurantID))
	s.cache.Delete(iconsKey(restaurantID))
}

func (s *Service) generation(restaurantID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[restaurantID]
}

// storeIfCurrent caches value unless restaurantID was written since generation gen.
func (s *Service) storeIfCurrent(restaurantID, key string, gen uint64, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[restaurantID] != gen {
		return
	}
	s.cache.SetDefault(key, value)
}

func (s *Service) categories(ctx context.Context, restaurantID string) ([]models.Category, error) {
	if cached, ok := s.cache.Get(categoriesKey(restaurantID)); ok {
		return cached.([]models.Category), nil
	}
	gen := s.generation(restaurantID)
	categories, err := s.store.ListCategories(ctx, restaurantID)
	if err != nil {
		s.log.WithError(err).WithField("restaurant_id", restaurantID).Error("list categories failed")
		return nil, apperr.Internal("could not load categories", err)
	}
	s.storeIfCurrent(restaurantID, categoriesKey(restaurantID), gen, categories)
	return categories, nil
}

// ListCategories returns category names sorted by name.
func (s *Service) ListCategories(ctx context.Context, restaurantID string) ([]string, error) {
	if err := requireRestaurant(restaurantID); err != nil {
		return nil, err
	}
	categories, err := s.categories(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, category.Name)
	}
	return names, nil
}

func (s *Service) AddCategory(ctx context.Context, restaurantID, name string) (models.Category, error) {
	if err := requireRestaurant(restaurantID); err != nil {
		return models.Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Category{}, apperr.Validation("category name is required")
	}
	category, err := s.store.CreateCategory(ctx, restaurantID, name)
	if err != nil {
		if store.IsUniqueViolation(err, store.FieldCategory) {
			return models.Category{}, apperr.Newf(apperr.KindConflict, "category %s already exists", name)
		}
		s.log.WithError(err).WithField("restaurant_id", restaurantID).Error("create category failed")
		return models.Category{}, apperr.Internal("could not add category", err)
	}
	s.invalidate(restaurantID)
	s.log.WithFields(logrus.Fields{"restaurant_id": restaurantID, "category": name}).Info("category added")
	return category, nil
}

func (s *Service) SetCategoryIcon(ctx context.Context, restaurantID, categoryName, iconName string) (models.Category, error) {
	if err := requireRestaurant(restaurantID); err != nil {
		return models.Category{}, err
	}
	iconName = strings.TrimSpace(iconName)
	if iconName == "" {
		return models.Category{}, apperr.Validation("icon name is required")
	}
	category, err := s.category(ctx, restaurantID, categoryName)
	if err != nil {
		return models.Category{}, err
	}
	updated, err := s.store.UpdateCategoryIcon(ctx, category.CategoryID, iconName)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			return models.Category{}, apperr.Newf(apperr.KindNotFound, "category %s not found", categoryName)
		}
		s.log.WithError(err).WithField("restaurant_id", restaurantID).Error("update category icon failed")
		return models.Category{}, apperr.Internal("could not set category icon", err)
	}
	s.invalidate(restaurantID)
	return updated, nil
}

// CategoryIcons maps every category name to its icon, nil when unset.
func (s *Service) CategoryIcons(ctx context.Context, restaurantID string) (map[string]*string, error) {
	if err := requireRestaurant(restaurantID); err != nil {
		return nil, err
	}
	if cached, ok := s.cache.Get(iconsKey(restaurantID)); ok {
		return cached.(map[string]*string), nil
	}
	gen := s.generation(restaurantID)
	categories, err := s.categories(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	icons := make(map[string]*string, len(categories))
	for _, category := range categories {
		icons[category.Name] = category.IconName
	}
	s.storeIfCurrent(restaurantID, iconsKey(restaurantID), gen, icons)
	return icons, nil
}

func (s *Service) AddItem(ctx context.Context, input AddItemInput) (models.Item, error) {
	if err := requireRestaurant(input.RestaurantID); err != nil {
		return models.Item{}, err
	}
	name := strings.TrimSpace(input.ItemName)
	if name == "" {
		return models.Item{}, apperr.Validation("item name is required")
	}
	if !input.PortionAvail {
		if input.Price == nil {
			return models.Item{}, apperr.Validation("price is required when portions are not available")
		}
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return models.Item{}, err
		}
	}
	if input.ImageURL != nil {
		if err := validateImageURL(*input.ImageURL); err != nil {
			return models.Item{}, err
		}
	}

	category, err := s.category(ctx, input.RestaurantID, input.CategoryName)
	if err != nil {
		return models.Item{}, err
	}

	item, err := s.store.CreateItem(ctx, store.CreateItemInput{
		CategoryID:   category.CategoryID,
		RestaurantID: input.RestaurantID,
		Name:         name,
		Description:  input.Description,
		Price:        input.Price,
		ImageURL:     input.ImageURL,
		AvailStatus:  input.AvailStatus,
		PortionAvail: input.PortionAvail,
	})
	if err != nil {
		switch {
		case store.IsUniqueViolation(err, store.FieldItem):
			return models.Item{}, apperr.Newf(apperr.KindConflict, "item %s already exists in category %s", name, category.Name)
		case errors.Is(err, store.ErrCategoryNotFound):
			return models.Item{}, apperr.Newf(apperr.KindNotFound, "category %s not found", input.CategoryName)
		}
		s.log.WithError(err).WithField("restaurant_id", input.RestaurantID).Error("create item failed")
		return models.Item{}, apperr.Internal("could not add item", err)
	}
	s.invalidate(input.RestaurantID)
	s.log.WithFields(logrus.Fields{
		"restaurant_id": input.RestaurantID,
		"category":      category.Name,
		"item_id":       item.ItemID,
	}).Info("item added")
	return item, nil
}

func (s *Service) ListItems(ctx context.Context, restaurantID, categoryName string) ([]models.Item, error) {
	if err := requireRestaurant(restaurantID); err != nil {
		return nil, err
	}
	category, err := s.category(ctx, restaurantID, categoryName)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, category.CategoryID)
	if err != nil {
		s.log.WithError(err).WithField("restaurant_id", restaurantID).Error("list items failed")
		return nil, apperr.Internal("could not load items", err)
	}
	if items == nil {
		items = []models.Item{}
	}
	return items, nil
}

// EditPortion sets the price of a named portion, adding the portion when the
// item does not have it yet.
func (s *Service) EditPortion(ctx context.Context, restaurantID string, itemID int64, portionName string, price float64) (models.Portion, error) {
	if err := requireRestaurant(restaurantID); err != nil {
		return models.Portion{}, err
	}
	portionName = strings.TrimSpace(portionName)
	if portionName == "" {
		return models.Portion{}, apperr.Validation("portion name is required")
	}
	if err := validatePrice(price); err != nil {
		return models.Portion{}, err
	}
	item, err := s.item(ctx, restaurantID, itemID)
	if err != nil {
		return models.Portion{}, err
	}
	if !item.PortionAvail {
		return models.Portion{}, apperr.Newf(apperr.KindValidation, "item %d does not offer portions", itemID)
	}
	portion, err := s.store.UpsertPortion(ctx, item.ItemID, portionName, price)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Portion{}, apperr.Newf(apperr.KindNotFound, "item %d not found", itemID)
		}
		s.log.WithError(err).WithField("item_id", itemID).Error("upsert portion failed")
		return models.Portion{}, apperr.Internal("could not edit portion", err)
	}
	s.invalidate(restaurantID)
	return portion, nil
}

// EditItemAttribute updates one attribute of an item. value is the decoded
// JSON value and must match the attribute's type.
func (s *Service) EditItemAttribute(ctx context.Context, restaurantID string, itemID int64, attribute string, value any) (models.Item, error) {
	if err := requireRestaurant(restaurantID); err != nil {
		return models.Item{}, err
	}
	item, err := s.item(ctx, restaurantID, itemID)
	if err != nil {
		return models.Item{}, err
	}
	if err := applyAttribute(&item, attribute, value); err != nil {
		return models.Item{}, err
	}
	if !item.PortionAvail && item.Price == nil {
		return models.Item{}, apperr.Validation("price is required when portions are not available")
	}

	updated, err := s.store.UpdateItem(ctx, item)
	if err != nil {
		switch {
		case store.IsUniqueViolation(err, store.FieldItem):
			return models.Item{}, apperr.Newf(apperr.KindConflict, "item %s already exists in this category", item.Name)
		case errors.Is(err, store.ErrItemNotFound):
			return models.Item{}, apperr.Newf(apperr.KindNotFound, "item %d not found", itemID)
		}
		s.log.WithError(err).WithField("item_id", itemID).Error("update item failed")
		return models.Item{}, apperr.Internal("could not edit item", err)
	}
	s.invalidate(restaurantID)
	s.log.WithFields(logrus.Fields{"item_id": itemID, "attribute": attribute}).Info("item attribute updated")
	return updated, nil
}

func applyAttribute(item *models.Item, attribute string, value any) error {
	switch attribute {
	case AttrName:
		name, ok := value.(string)
		if !ok || strings.TrimSpace(name) == "" {
			return apperr.Validation("name must be a non-empty string")
		}
		item.Name = strings.TrimSpace(name)
	case AttrDescription:
		if value == nil {
			item.Description = nil
			return nil
		}
		description, ok := value.(string)
		if !ok {
			return apperr.Validation("description must be a string")
		}
		item.Description = &description
	case AttrPrice:
		if value == nil {
			item.Price = nil
			return nil
		}
		price, ok := value.(float64)
		if !ok {
			return apperr.Validation("price must be a number")
		}
		if err := validatePrice(price); err != nil {
			return err
		}
		item.Price = &price
	case AttrImageURL:
		if value == nil {
			item.ImageURL = nil
			return nil
		}
		imageURL, ok := value.(string)
		if !ok {
			return apperr.Validation("imageUrl must be a string")
		}
		if err := validateImageURL(imageURL); err != nil {
			return err
		}
		item.ImageURL = &imageURL
	case AttrAvailStatus:
		avail, ok := value.(bool)
		if !ok {
			return apperr.Validation("availStatus must be a boolean")
		}
		item.AvailStatus = avail
	case AttrPortionAvail:
		avail, ok := value.(bool)
		if !ok {
			return apperr.Validation("portionAvail must be a boolean")
		}
		item.PortionAvail = avail
	default:
		return apperr.Newf(apperr.KindValidation, "attribute %q cannot be edited", attribute)
	}
	return nil
}

func (s *Service) category(ctx context.Context, restaurantID, name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Category{}, apperr.Validation("category name is required")
	}
	category, err := s.store.GetCategory(ctx, restaurantID, name)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			return models.Category{}, apperr.Newf(apperr.KindNotFound, "category %s not found", name)
		}
		s.log.WithError(err).WithField("restaurant_id", restaurantID).Error("category lookup failed")
		return models.Category{}, apperr.Internal("could not load category", err)
	}
	return category, nil
}

func (s *Service) item(ctx context.Context, restaurantID string, itemID int64) (models.Item, error) {
	if itemID <= 0 {
		return models.Item{}, apperr.Validation("itemId must be a positive integer")
	}
	item, err := s.store.GetItem(ctx, restaurantID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Item{}, apperr.Newf(apperr.KindNotFound, "item %d not found", itemID)
		}
		s.log.WithError(err).WithField("item_id", itemID).Error("item lookup failed")
		return models.Item{}, apperr.Internal("could not load item", err)
	}
	return item, nil
}

func requireRestaurant(restaurantID string) error {
	if strings.TrimSpace(restaurantID) == "" {
		return apperr.Validation("restaurantId is required")
	}
	return nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return apperr.Validation("price must be a non-negative number")
	}
	return nil
}

func validateImageURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return apperr.Validation("imageUrl must be an absolute http or https URL")
	}
	return nil
}
