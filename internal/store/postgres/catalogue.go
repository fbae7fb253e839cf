package postgres

import (
	"context"
	"database/sql"
	"errors"

	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	categoryColumns = `category_id, restaurant_id, name, icon_name, created_at`
	itemColumns     = `item_id, category_id, restaurant_id, name, description, price, image_url, avail_status, portion_avail, created_at`
)

func scanCategory(row rowScanner) (models.Category, error) {
	var category models.Category
	var iconNull sql.NullString
	if err := row.Scan(&category.CategoryID, &category.RestaurantID, &category.Name, &iconNull, &category.CreatedAt); err != nil {
		return models.Category{}, err
	}
	category.IconName = nullStringPtr(iconNull)
	return category, nil
}

func scanItem(row rowScanner) (models.Item, error) {
	var item models.Item
	var descriptionNull, imageNull sql.NullString
	if err := row.Scan(&item.ItemID, &item.CategoryID, &item.RestaurantID, &item.Name, &descriptionNull, &item.Price, &imageNull, &item.AvailStatus, &item.PortionAvail, &item.CreatedAt); err != nil {
		return models.Item{}, err
	}
	item.Description = nullStringPtr(descriptionNull)
	item.ImageURL = nullStringPtr(imageNull)
	item.Portions = []models.Portion{}
	return item, nil
}

func (s *Store) ListCategories(ctx context.Context, restaurantID string) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE restaurant_id = $1
		ORDER BY name ASC
	`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, restaurantID, name string) (models.Category, error) {
	category, err := scanCategory(s.pool.QueryRow(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE restaurant_id = $1 AND name = $2
	`, restaurantID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Category{}, store.ErrCategoryNotFound
		}
		return models.Category{}, err
	}
	return category, nil
}

func (s *Store) CreateCategory(ctx context.Context, restaurantID, name string) (models.Category, error) {
	category, err := scanCategory(s.pool.QueryRow(ctx, `
		INSERT INTO categories (restaurant_id, name, created_at)
		VALUES ($1, $2, $3)
		RETURNING `+categoryColumns, restaurantID, name, s.now()))
	if err != nil {
		return models.Category{}, translateError(err)
	}
	return category, nil
}

func (s *Store) UpdateCategoryIcon(ctx context.Context, categoryID int64, iconName string) (models.Category, error) {
	category, err := scanCategory(s.pool.QueryRow(ctx, `
		UPDATE categories
		SET icon_name = $1
		WHERE category_id = $2
		RETURNING `+categoryColumns, iconName, categoryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Category{}, store.ErrCategoryNotFound
		}
		return models.Category{}, err
	}
	return category, nil
}

func (s *Store) CreateItem(ctx context.Context, input store.CreateItemInput) (models.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `
		INSERT INTO items (category_id, restaurant_id, name, description, price, image_url, avail_status, portion_avail, created_at)
		SELECT c.category_id, $2, $3, $4, $5, $6, $7, $8, $9
		FROM categories c
		WHERE c.category_id = $1 AND c.restaurant_id = $2
		RETURNING `+itemColumns,
		input.CategoryID, input.RestaurantID, input.Name, input.Description, input.Price, input.ImageURL, input.AvailStatus, input.PortionAvail, s.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Item{}, store.ErrCategoryNotFound
		}
		return models.Item{}, translateError(err)
	}
	return item, nil
}

func (s *Store) ListItems(ctx context.Context, categoryID int64) ([]models.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE category_id = $1
		ORDER BY name ASC
	`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Item
	index := make(map[int64]int)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		index[item.ItemID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	portionRows, err := s.pool.Query(ctx, `
		SELECT p.portion_id, p.item_id, p.name, p.price
		FROM portions p
		JOIN items i ON i.item_id = p.item_id
		WHERE i.category_id = $1
		ORDER BY p.item_id, p.name
	`, categoryID)
	if err != nil {
		return nil, err
	}
	defer portionRows.Close()

	for portionRows.Next() {
		var portion models.Portion
		if err := portionRows.Scan(&portion.PortionID, &portion.ItemID, &portion.Name, &portion.Price); err != nil {
			return nil, err
		}
		if i, ok := index[portion.ItemID]; ok {
			items[i].Portions = append(items[i].Portions, portion)
		}
	}
	if err := portionRows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, restaurantID string, itemID int64) (models.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE item_id = $1 AND restaurant_id = $2
	`, itemID, restaurantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Item{}, store.ErrItemNotFound
		}
		return models.Item{}, err
	}
	portions, err := s.listPortions(ctx, item.ItemID)
	if err != nil {
		return models.Item{}, err
	}
	item.Portions = portions
	return item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item models.Item) (models.Item, error) {
	updated, err := scanItem(s.pool.QueryRow(ctx, `
		UPDATE items
		SET name = $1, description = $2, price = $3, image_url = $4, avail_status = $5, portion_avail = $6
		WHERE item_id = $7 AND restaurant_id = $8
		RETURNING `+itemColumns,
		item.Name, item.Description, item.Price, item.ImageURL, item.AvailStatus, item.PortionAvail, item.ItemID, item.RestaurantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Item{}, store.ErrItemNotFound
		}
		return models.Item{}, translateError(err)
	}
	portions, err := s.listPortions(ctx, updated.ItemID)
	if err != nil {
		return models.Item{}, err
	}
	updated.Portions = portions
	return updated, nil
}

func (s *Store) UpsertPortion(ctx context.Context, itemID int64, name string, price float64) (models.Portion, error) {
	var portion models.Portion
	err := s.pool.QueryRow(ctx, `
		INSERT INTO portions (item_id, name, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id, name) DO UPDATE SET price = EXCLUDED.price
		RETURNING portion_id, item_id, name, price
	`, itemID, name, price).Scan(&portion.PortionID, &portion.ItemID, &portion.Name, &portion.Price)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode {
			return models.Portion{}, store.ErrItemNotFound
		}
		return models.Portion{}, translateError(err)
	}
	return portion, nil
}

func (s *Store) listPortions(ctx context.Context, itemID int64) ([]models.Portion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT portion_id, item_id, name, price
		FROM portions
		WHERE item_id = $1
		ORDER BY name ASC
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	portions := []models.Portion{}
	for rows.Next() {
		var portion models.Portion
		if err := rows.Scan(&portion.PortionID, &portion.ItemID, &portion.Name, &portion.Price); err != nil {
			return nil, err
		}
		portions = append(portions, portion)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return portions, nil
}
