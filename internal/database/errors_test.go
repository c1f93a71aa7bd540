package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestTranslateError(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrDuplicate},
		{"sqlite check", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, ErrConstraint},
		{"sqlite foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, ErrConstraint},
		{"postgres unique", &pq.Error{Code: "23505"}, ErrDuplicate},
		{"postgres check", &pq.Error{Code: "23514"}, ErrConstraint},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, ErrDuplicate},
		{"mysql check", &mysql.MySQLError{Number: 3819}, ErrConstraint},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TranslateError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Same(t, plain, TranslateError(plain))
	assert.NotErrorIs(t, TranslateError(&pq.Error{Code: "40001"}), ErrDuplicate)
}
