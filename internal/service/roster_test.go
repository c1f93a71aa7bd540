package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"kinship/internal/agegroup"
	"kinship/internal/models"
)

func TestWriteRoster(t *testing.T) {
	today := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	dob := time.Date(2000, time.January, 15, 0, 0, 0, 0, time.UTC)
	userID := int64(1)
	people := []models.Person{
		{Username: "alice", FullName: "Alice Example", Gender: models.GenderFemale, DateOfBirth: &dob, UserID: &userID, CreatedAt: today},
		{Username: "bob", FullName: "Bob Example", CreatedAt: today},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRoster(&buf, people, agegroup.DefaultBrackets(), today))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, rosterSheet, f.GetSheetName(0))
	rows, err := f.GetRows(rosterSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Username", rows[0][0])
	assert.Equal(t, "Age category", rows[0][5])

	assert.Equal(t, []string{"alice", "Alice Example", "female", "2000-01-15", "24", "young adult", "yes", "2024-06-01 00:00"}, rows[1])
	assert.Equal(t, "bob", rows[2][0])
	assert.Equal(t, "", rows[2][4], "no age without a date of birth")
	assert.Equal(t, "no", rows[2][6])
}

func TestExportRosterRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")

	var buf bytes.Buffer
	assert.ErrorIs(t, env.people.ExportRoster(&models.User{ID: 99}, &buf), ErrForbidden)

	require.NoError(t, env.people.ExportRoster(alice, &buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(rosterSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[1][0])
}
