package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
	// ErrConstraint is returned for check and foreign key violations
	ErrConstraint = errors.New("constraint violation")
)

const (
	mysqlDuplicateEntry   = 1062
	mysqlNoReferencedRow  = 1452
	mysqlRowIsReferenced  = 1451
	mysqlCheckConstraint  = 3819
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// TranslateError maps driver-specific constraint errors onto ErrDuplicate and
// ErrConstraint. The driver error stays in the chain. Other errors are
// returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errors.Join(ErrDuplicate, err)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintForeignKey:
			return errors.Join(ErrConstraint, err)
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return errors.Join(ErrDuplicate, err)
		case pgCheckViolation, pgForeignKeyViolation:
			return errors.Join(ErrConstraint, err)
		}
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return errors.Join(ErrDuplicate, err)
		case mysqlCheckConstraint, mysqlNoReferencedRow, mysqlRowIsReferenced:
			return errors.Join(ErrConstraint, err)
		}
	}
	return err
}
