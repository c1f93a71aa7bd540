package dedupe

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinship/internal/models"
)

type fakePeople struct {
	byCreator map[int64][]models.Person
	err       error
}

func (f *fakePeople) ListPeopleCreatedBy(userID int64) ([]models.Person, error) {
	return f.byCreator[userID], f.err
}

type pair struct {
	kind               models.RelationshipKind
	personID, relative int64
}

type fakeRelationships struct {
	rows map[pair]int64 // pair -> relationship ID
}

func (f *fakeRelationships) RelationshipExists(kind models.RelationshipKind, personID, relativeID, excludeID int64) (bool, error) {
	id, ok := f.rows[pair{kind, personID, relativeID}]
	return ok && id != excludeID, nil
}

type reading struct {
	personID int64
	day      string
}

type fakeTemperatures struct {
	rows map[reading]int64
}

func (f *fakeTemperatures) TemperatureRecordExists(personID int64, day time.Time, excludeID int64) (bool, error) {
	id, ok := f.rows[reading{personID, day.Format(models.DateLayout)}]
	return ok && id != excludeID, nil
}

func int64Ptr(v int64) *int64 { return &v }

func TestDuplicatePerson(t *testing.T) {
	const userU, otherUser = int64(1), int64(2)
	people := &fakePeople{byCreator: map[int64][]models.Person{
		userU: {{ID: 10, Username: "jsmith", FullName: "John Smith", CreatedBy: int64Ptr(userU)}},
	}}
	d := NewDetector(people, nil, nil)

	tests := []struct {
		name      string
		candidate models.Person
		wantMatch bool
	}{
		{name: "same tokens reordered", candidate: models.Person{FullName: "Smith John", CreatedBy: int64Ptr(userU)}, wantMatch: true},
		{name: "different first name", candidate: models.Person{FullName: "Jane Smith", CreatedBy: int64Ptr(userU)}, wantMatch: false},
		{name: "other creator", candidate: models.Person{FullName: "John Smith", CreatedBy: int64Ptr(otherUser)}, wantMatch: false},
		{name: "no creator", candidate: models.Person{FullName: "John Smith"}, wantMatch: false},
		{name: "no full name", candidate: models.Person{CreatedBy: int64Ptr(userU)}, wantMatch: false},
		{name: "editing the same record", candidate: models.Person{ID: 10, FullName: "John Smith", CreatedBy: int64Ptr(userU)}, wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := d.DuplicatePerson(tt.candidate)
			require.NoError(t, err)
			if tt.wantMatch {
				require.NotNil(t, match)
				assert.Equal(t, int64(10), match.ID)
			} else {
				assert.Nil(t, match)
			}
		})
	}
}

func TestDuplicatePersonWithoutExistingRecords(t *testing.T) {
	d := NewDetector(&fakePeople{}, nil, nil)

	match, err := d.DuplicatePerson(models.Person{FullName: "John Smith", CreatedBy: int64Ptr(1)})

	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestDuplicatePersonLowerThreshold(t *testing.T) {
	people := &fakePeople{byCreator: map[int64][]models.Person{
		1: {{ID: 3, FullName: "Jonathan Smith"}},
	}}
	d := NewDetector(people, nil, nil, WithThreshold(80))

	match, err := d.DuplicatePerson(models.Person{FullName: "Jonathon Smith", CreatedBy: int64Ptr(1)})

	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, int64(3), match.ID)
}

func TestDuplicatePersonSourceError(t *testing.T) {
	d := NewDetector(&fakePeople{err: errors.New("db down")}, nil, nil)

	_, err := d.DuplicatePerson(models.Person{FullName: "John Smith", CreatedBy: int64Ptr(1)})

	assert.Error(t, err)
}

func TestCheckRelationship(t *testing.T) {
	const p, r = int64(1), int64(2)
	rels := &fakeRelationships{rows: map[pair]int64{
		{models.KindInterpersonal, p, r}: 7,
		{models.KindParentChild, p, r}:   8,
	}}

	tests := []struct {
		name      string
		symmetric bool
		kind      models.RelationshipKind
		person    int64
		relative  int64
		excludeID int64
		want      error
	}{
		{name: "self interpersonal", kind: models.KindInterpersonal, person: p, relative: p, want: ErrSelfRelationship},
		{name: "self parent-child", kind: models.KindParentChild, person: r, relative: r, want: ErrSelfRelationship},
		{name: "existing pair", kind: models.KindInterpersonal, person: p, relative: r, want: ErrRelationshipExists},
		{name: "reversed interpersonal, ordered rule", kind: models.KindInterpersonal, person: r, relative: p, want: nil},
		{name: "reversed interpersonal, symmetric rule", symmetric: true, kind: models.KindInterpersonal, person: r, relative: p, want: ErrRelationshipExists},
		{name: "reversed parent-child", kind: models.KindParentChild, person: r, relative: p, want: ErrRelationshipExists},
		{name: "editing itself", kind: models.KindInterpersonal, person: p, relative: r, excludeID: 7, want: nil},
		{name: "new pair", kind: models.KindInterpersonal, person: p, relative: 3, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(nil, rels, nil, WithSymmetricRelationships(tt.symmetric))
			err := d.CheckRelationship(tt.kind, tt.person, tt.relative, tt.excludeID)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestIsDuplicateRelationship(t *testing.T) {
	rels := &fakeRelationships{rows: map[pair]int64{{models.KindInterpersonal, 1, 2}: 1}}
	d := NewDetector(nil, rels, nil)

	dup, err := d.IsDuplicateRelationship(models.KindInterpersonal, 1, 2, 0)
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = d.IsDuplicateRelationship(models.KindInterpersonal, 2, 1, 0)
	require.NoError(t, err)
	assert.False(t, dup, "the lookup is ordered")

	dup, err = d.IsDuplicateRelationship(models.KindInterpersonal, 1, 2, 1)
	require.NoError(t, err)
	assert.False(t, dup, "the row being edited is skipped")

	dup, err = d.IsDuplicateRelationship(models.KindParentChild, 1, 2, 0)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIsDuplicateTemperatureRecord(t *testing.T) {
	today := time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC)
	temps := &fakeTemperatures{rows: map[reading]int64{
		{personID: 1, day: "2024-03-05"}: 40,
	}}
	d := NewDetector(nil, nil, temps, WithClock(func() time.Time { return today }))

	dup, err := d.IsDuplicateTemperatureRecord(models.TemperatureRecord{PersonID: 1})
	require.NoError(t, err)
	assert.True(t, dup, "a second reading today without a timestamp is a duplicate")

	dup, err = d.IsDuplicateTemperatureRecord(models.TemperatureRecord{PersonID: 1, CreatedAt: today.AddDate(0, 0, -1)})
	require.NoError(t, err)
	assert.False(t, dup, "a reading dated yesterday is not a duplicate")

	dup, err = d.IsDuplicateTemperatureRecord(models.TemperatureRecord{ID: 40, PersonID: 1, CreatedAt: today})
	require.NoError(t, err)
	assert.False(t, dup, "editing today's reading is not a duplicate of itself")

	dup, err = d.IsDuplicateTemperatureRecord(models.TemperatureRecord{PersonID: 2})
	require.NoError(t, err)
	assert.False(t, dup)
}
