package option

import (
	"fmt"

	"gorm.io/gorm"

	"storekit-keyplane/pkg/db/pagination"
)

// QueryOption mutates a gorm statement before it executes. Options compose
// left to right via Apply.
type QueryOption func(db *gorm.DB) *gorm.DB

func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	// Allow whitelists sortable columns. A column outside the whitelist
	// falls back to created_at.
	Allow map[string]bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	column := sort.SortBy
	if column == "" || (sort.Allow != nil && !sort.Allow[column]) {
		column = "created_at"
	}

	direction := "ASC"
	if sort.OrderBy == "DESC" || sort.OrderBy == "desc" {
		direction = "DESC"
	}

	return func(db *gorm.DB) *gorm.DB {
		return db.Order(fmt.Sprintf("%s %s", column, direction))
	}
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	p = p.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(p.Limit).Offset(p.Offset)
	}
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// ApplyOperator adds comparison predicates the struct-based query cannot
// express, e.g. next_attempt_at <= now.
func ApplyOperator(conditions ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conditions {
			db = db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		}
		return db
	}
}

// WithNull constrains a nullable column, e.g. revoked_at IS NULL when the
// filter asks for active records only.
func WithNull(field string, isNull bool) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if isNull {
			return db.Where(fmt.Sprintf("%s IS NULL", field))
		}
		return db.Where(fmt.Sprintf("%s IS NOT NULL", field))
	}
}

// WithPreload eager-loads the named relations on find queries.
func WithPreload(relations ...string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, relation := range relations {
			db = db.Preload(relation)
		}
		return db
	}
}
