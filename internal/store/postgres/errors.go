package postgres

import (
	"errors"

	"dinein/ordering-service/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

var constraintFields = map[string]string{
	"sessions_pkey":                     store.FieldSessionID,
	"sessions_bill_id_key":              store.FieldBillID,
	"categories_restaurant_id_name_key": store.FieldCategory,
	"items_category_id_name_key":        store.FieldItem,
	"portions_item_id_name_key":         store.FieldPortion,
}

// translateError maps unique violations to *store.UniqueViolation naming the
// offending field. Other errors pass through unchanged.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}
	return &store.UniqueViolation{
		Field:      constraintFields[pgErr.ConstraintName],
		Constraint: pgErr.ConstraintName,
	}
}
