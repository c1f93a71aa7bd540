package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinship/internal/models"
)

func TestTemperatureDuplicateDay(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	john := env.createPerson(t, alice, "john", "John Smith")

	morning, err := env.temperatures.CreateTemperatureRecord(alice, TemperatureInput{PersonID: john.ID, Temperature: "36.66", TakenAt: "2024-03-05T08:00"})
	require.NoError(t, err)
	assert.Equal(t, 36.7, morning.Temperature)
	assert.Equal(t, "2024-03-05", morning.Day())

	_, err = env.temperatures.CreateTemperatureRecord(alice, TemperatureInput{PersonID: john.ID, Temperature: "37.2", TakenAt: "2024-03-05T18:30"})
	warning, ok := AsDuplicateWarning(err)
	require.True(t, ok, "expected a duplicate warning, got %v", err)
	assert.Equal(t, "temperature", warning.Kind)
	assert.Contains(t, warning.Message, "2024-03-05")

	_, err = env.temperatures.CreateTemperatureRecord(alice, TemperatureInput{PersonID: john.ID, Temperature: "37.2", TakenAt: "2024-03-05T18:30", Confirmed: true})
	require.NoError(t, err)

	_, err = env.temperatures.CreateTemperatureRecord(alice, TemperatureInput{PersonID: john.ID, Temperature: "36.9", TakenAt: "2024-03-06"})
	require.NoError(t, err, "a reading on the next day is not a duplicate")

	_, err = env.temperatures.UpdateTemperatureRecord(alice, morning.ID, TemperatureInput{PersonID: john.ID, Temperature: "36.8", TakenAt: "2024-03-06T07:00"})
	_, ok = AsDuplicateWarning(err)
	assert.True(t, ok, "moving the reading onto a day with another reading warns")

	updated, err := env.temperatures.UpdateTemperatureRecord(alice, morning.ID, TemperatureInput{PersonID: john.ID, Temperature: "36.8"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", updated.Day(), "an empty timestamp keeps the original day")

	records, err := env.temperatures.ListForPerson(alice, john.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestTemperatureUpdateSameDayKeepsReading(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	john := env.createPerson(t, alice, "john", "John Smith")
	jane := env.createPerson(t, alice, "jane", "Jane Doe")

	morning, err := env.temperatures.CreateTemperatureRecord(alice, TemperatureInput{PersonID: john.ID, Temperature: "36.6", TakenAt: "2024-03-05T08:00"})
	require.NoError(t, err)
	_, err = env.temperatures.CreateTemperatureRecord(alice, TemperatureInput{PersonID: john.ID, Temperature: "37.4", TakenAt: "2024-03-05T19:00", Confirmed: true})
	require.NoError(t, err)
	_, err = env.temperatures.CreateTemperatureRecord(alice, TemperatureInput{PersonID: jane.ID, Temperature: "36.5", TakenAt: "2024-03-05T09:00"})
	require.NoError(t, err)

	updated, err := env.temperatures.UpdateTemperatureRecord(alice, morning.ID, TemperatureInput{PersonID: john.ID, Temperature: "36.9"})
	require.NoError(t, err, "changing only the value keeps the day")
	assert.Equal(t, 36.9, updated.Temperature)
	assert.Equal(t, "2024-03-05", updated.Day())

	updated, err = env.temperatures.UpdateTemperatureRecord(alice, morning.ID, TemperatureInput{PersonID: john.ID, Temperature: "36.9", TakenAt: "2024-03-05T07:15"})
	require.NoError(t, err, "a new time on the same day is not a duplicate")
	assert.Equal(t, "2024-03-05", updated.Day())

	_, err = env.temperatures.UpdateTemperatureRecord(alice, morning.ID, TemperatureInput{PersonID: jane.ID, Temperature: "36.9", TakenAt: "2024-03-05T07:15"})
	_, ok := AsDuplicateWarning(err)
	assert.True(t, ok, "moving the reading to a person with a reading that day warns")
}

func TestTemperatureValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	john := env.createPerson(t, alice, "john", "John Smith")

	tests := []struct {
		name  string
		in    TemperatureInput
		field string
	}{
		{"no person", TemperatureInput{Temperature: "36.6"}, "person"},
		{"unknown person", TemperatureInput{PersonID: 999, Temperature: "36.6"}, "person"},
		{"not a number", TemperatureInput{PersonID: john.ID, Temperature: "warm"}, "temperature"},
		{"too cold", TemperatureInput{PersonID: john.ID, Temperature: "20"}, "temperature"},
		{"too hot", TemperatureInput{PersonID: john.ID, Temperature: "45.5"}, "temperature"},
		{"bad timestamp", TemperatureInput{PersonID: john.ID, Temperature: "36.6", TakenAt: "yesterday"}, "taken_at"},
		{"future timestamp", TemperatureInput{PersonID: john.ID, Temperature: "36.6", TakenAt: "2999-01-01T08:00"}, "taken_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.temperatures.CreateTemperatureRecord(alice, tt.in)
			requireFieldError(t, err, tt.field)
		})
	}
}

func TestTemperaturePermissions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	bob := env.register(t, "bob", "Bob Example")
	john := env.createPerson(t, alice, "john", "John Smith")

	rec, err := env.temperatures.CreateTemperatureRecord(bob, TemperatureInput{PersonID: john.ID, Temperature: "36.6", TakenAt: "2024-03-05T08:00"})
	require.NoError(t, err)

	_, err = env.temperatures.UpdateTemperatureRecord(bob, rec.ID, TemperatureInput{PersonID: john.ID, Temperature: "36.9"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.temperatures.GetTemperatureRecord(alice, 999)
	assert.ErrorIs(t, err, ErrTemperatureRecordNotFound)

	records, page, err := env.temperatures.ListTemperatureRecords(bob, models.ListQuery{Search: "john", Page: models.NewPage(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, records, 1)
	assert.Equal(t, "John Smith", records[0].PersonName)
}
