package repository

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinship/internal/database"
	"kinship/internal/models"
)

func newMockDB(t *testing.T, dialect database.Dialect) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})
	return &database.DB{DB: sqlDB, Dialect: dialect}, mock
}

func TestSelectBuilder(t *testing.T) {
	b := newSelect("id, username", "people").
		Where("created_by = ?", 4).
		Search("  Smith ", "username", "full_name").
		OrderBy("username")

	query, args := b.SQL()
	assert.Equal(t, "SELECT id, username FROM people WHERE created_by = ? AND (LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?) ORDER BY username", query)
	assert.Equal(t, []interface{}{4, "%smith%", "%smith%"}, args)

	count, countArgs := b.CountSQL()
	assert.Equal(t, "SELECT COUNT(*) FROM people WHERE created_by = ? AND (LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?)", count)
	assert.Len(t, countArgs, 3)

	paged, pagedArgs := b.PageSQL(models.Page{Number: 3, Size: 10})
	assert.Equal(t, query+" LIMIT ? OFFSET ?", paged)
	assert.Equal(t, []interface{}{4, "%smith%", "%smith%", 10, 20}, pagedArgs)
	assert.Len(t, args, 3, "PageSQL must not grow the builder's args")
}

func TestSelectBuilderEmptySearch(t *testing.T) {
	query, args := newSelect("id", "people").Search("   ", "username").SQL()
	assert.Equal(t, "SELECT id FROM people", query)
	assert.Empty(t, args)
}

func TestGetUserByLoginNotFound(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = ? OR LOWER(email) = LOWER(?)")).
		WithArgs("ghost", "ghost").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.GetUserByLogin("ghost")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestGetUserByIDScansOAuthColumns(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewUserRepository(db)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "full_name", "oauth_provider", "oauth_subject", "is_superuser", "created_at", "updated_at"}).
		AddRow(7, "jsmith", "john@example.com", "hash", "John Smith", nil, nil, true, ts, ts)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).WithArgs(int64(7)).WillReturnRows(rows)

	user, err := repo.GetUserByID(7)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jsmith", user.Username)
	assert.Empty(t, user.OAuthProvider)
	assert.True(t, user.IsSuperuser)
}

func TestCreatePersonTranslatesDuplicate(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewPersonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO people")).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

	err := repo.CreatePerson(&models.Person{Username: "jsmith", FullName: "John Smith"})
	assert.ErrorIs(t, err, database.ErrDuplicate)
}

func TestCreatePersonPostgresReturning(t *testing.T) {
	db, mock := newMockDB(t, database.NewPostgresDialect())
	repo := NewPersonRepository(db)
	creator := int64(2)

	mock.ExpectQuery(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id")).
		WithArgs("jsmith", "John Smith", "male", sqlmock.AnyArg(), nil, creator, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	p := &models.Person{Username: "jsmith", FullName: "John Smith", Gender: models.GenderMale, CreatedBy: &creator}
	require.NoError(t, repo.CreatePerson(p))
	assert.Equal(t, int64(11), p.ID)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestListPeopleClampsPage(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewPersonRepository(db)
	ts := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM people WHERE (LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?)")).
		WithArgs("%smith%", "%smith%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(45))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY full_name, username LIMIT ? OFFSET ?")).
		WithArgs("%smith%", "%smith%", 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "gender", "date_of_birth", "user_id", "created_by", "updated_by", "created_at", "updated_at"}).
			AddRow(1, "jsmith", "John Smith", "male", nil, nil, 3, nil, ts, ts))

	people, page, err := repo.ListPeople(models.ListQuery{Search: "Smith", Page: models.NewPage(9, 20)})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Number)
	assert.Equal(t, 45, page.Total)
	require.Len(t, people, 1)
	assert.Nil(t, people[0].DateOfBirth)
	require.NotNil(t, people[0].CreatedBy)
	assert.Equal(t, int64(3), *people[0].CreatedBy)
}

func TestRelationshipExistsUsesKindColumns(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewRelationshipRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM parent_child_relationships WHERE parent_id = ? AND child_id = ? AND id <> ?")).
		WithArgs(int64(1), int64(2), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.RelationshipExists(models.KindParentChild, 1, 2, 0)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.RelationshipExists(models.RelationshipKind("enemies"), 1, 2, 0)
	assert.Error(t, err)
}

func TestListFamilyMembersBothDirections(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewRelationshipRepository(db)
	ts := time.Now().UTC()
	cols := []string{"id", "person_id", "relative_id", "relation_type_id", "name", "person_name", "relative_name", "created_by", "updated_by", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM interpersonal_relationships r")).
		WithArgs(int64(5), int64(5)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 5, 6, 7, "Wife", "John Smith", "Jane Smith", nil, nil, ts, ts))
	mock.ExpectQuery(regexp.QuoteMeta("FROM parent_child_relationships r")).
		WithArgs(int64(5), int64(5)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(2, 8, 5, 1, "Father", "Old Smith", "John Smith", nil, nil, ts, ts))

	members, err := repo.ListFamilyMembers(5)
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, models.FamilyMember{Kind: models.KindInterpersonal, PersonID: 6, Name: "Jane Smith", Relation: "Wife", Outgoing: true}, members[0])
	assert.Equal(t, models.FamilyMember{Kind: models.KindParentChild, PersonID: 8, Name: "Old Smith", Relation: "Father", Outgoing: false}, members[1])
}

func TestTemperatureRecordExistsUsesCalendarDay(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewTemperatureRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM temperature_records WHERE person_id = ? AND recorded_on = ? AND id <> ?")).
		WithArgs(int64(3), "2024-03-05", int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := repo.TemperatureRecordExists(3, time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC), 9)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateTemperatureRecordStoresDay(t *testing.T) {
	db, mock := newMockDB(t, database.NewSQLiteDialect())
	repo := NewTemperatureRepository(db)
	taken := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO temperature_records")).
		WithArgs(int64(3), 36.6, "2024-03-05", nil, nil, taken, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(12, 1))

	rec := &models.TemperatureRecord{PersonID: 3, Temperature: 36.6, CreatedAt: taken}
	require.NoError(t, repo.CreateTemperatureRecord(rec))
	assert.Equal(t, int64(12), rec.ID)
}
