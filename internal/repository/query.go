package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kinship/internal/database"
	"kinship/internal/models"
)

// selectBuilder assembles the list queries behind the search and pagination
// pages: a filtered SELECT plus the matching COUNT(*).
type selectBuilder struct {
	columns string
	from    string
	where   []string
	args    []interface{}
	orderBy string
}

func newSelect(columns, from string) *selectBuilder {
	return &selectBuilder{columns: columns, from: from}
}

// Where adds a condition joined with AND
func (b *selectBuilder) Where(cond string, args ...interface{}) *selectBuilder {
	b.where = append(b.where, cond)
	b.args = append(b.args, args...)
	return b
}

// Search matches term as a case-insensitive substring of any of columns.
// An empty term adds nothing.
func (b *selectBuilder) Search(term string, columns ...string) *selectBuilder {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return b
	}
	pattern := "%" + strings.ToLower(term) + "%"
	conds := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		conds[i] = "LOWER(" + col + ") LIKE ?"
		args[i] = pattern
	}
	return b.Where("("+strings.Join(conds, " OR ")+")", args...)
}

func (b *selectBuilder) OrderBy(order string) *selectBuilder {
	b.orderBy = order
	return b
}

func (b *selectBuilder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

// SQL returns the unpaginated query
func (b *selectBuilder) SQL() (string, []interface{}) {
	query := "SELECT " + b.columns + " FROM " + b.from + b.whereClause()
	if b.orderBy != "" {
		query += " ORDER BY " + b.orderBy
	}
	return query, b.args
}

// CountSQL returns the query counting every matching row
func (b *selectBuilder) CountSQL() (string, []interface{}) {
	return "SELECT COUNT(*) FROM " + b.from + b.whereClause(), b.args
}

// PageSQL returns the query for one page of results
func (b *selectBuilder) PageSQL(page models.Page) (string, []interface{}) {
	query, args := b.SQL()
	query += " LIMIT ? OFFSET ?"
	return query, append(append([]interface{}{}, args...), page.Size, page.Offset())
}

// paginate counts the matches, clamps the page number to the last page and
// feeds each row of the requested page to scan.
func paginate(db database.Executor, b *selectBuilder, page models.Page, scan func(*sql.Rows) error) (models.Page, error) {
	countQuery, countArgs := b.CountSQL()
	if err := db.QueryRow(countQuery, countArgs...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("failed to count rows: %w", err)
	}
	if page.Number > page.NumPages() {
		page.Number = page.NumPages()
	}

	query, args := b.PageSQL(page)
	rows, err := db.Query(query, args...)
	if err != nil {
		return page, fmt.Errorf("failed to query page: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return page, fmt.Errorf("failed to scan row: %w", err)
		}
	}
	return page, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

func now() time.Time {
	return time.Now().UTC()
}
