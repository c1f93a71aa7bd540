package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinship/internal/dedupe"
	"kinship/internal/models"
)

func TestRelationshipRules(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	john := env.createPerson(t, alice, "john", "John Smith")
	mary := env.createPerson(t, alice, "mary", "Mary Smith")
	husband := env.relationTypeID(t, "Husband")
	wife := env.relationTypeID(t, "Wife")

	rel, err := env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: husband})
	require.NoError(t, err)

	_, err = env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: wife})
	requireFieldError(t, err, "relative")
	assert.ErrorContains(t, err, dedupe.ErrRelationshipExists.Error())

	_, err = env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: john.ID, RelativeID: john.ID, RelationTypeID: husband})
	requireFieldError(t, err, "relative")
	assert.ErrorContains(t, err, dedupe.ErrSelfRelationship.Error())

	_, err = env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: john.ID, RelativeID: mary.ID, RelationTypeID: wife})
	assert.NoError(t, err, "the reversed interpersonal pair is a separate relationship")

	// Editing a relationship into its own pair is fine
	_, err = env.relationships.UpdateRelationship(alice, models.KindInterpersonal, rel.ID, RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: husband})
	assert.NoError(t, err)
}

func TestRelationshipSymmetricRule(t *testing.T) {
	env := newTestEnv(t, dedupe.WithSymmetricRelationships(true))
	alice := env.register(t, "alice", "Alice Example")
	john := env.createPerson(t, alice, "john", "John Smith")
	mary := env.createPerson(t, alice, "mary", "Mary Smith")

	_, err := env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: env.relationTypeID(t, "Husband")})
	require.NoError(t, err)

	_, err = env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: john.ID, RelativeID: mary.ID, RelationTypeID: env.relationTypeID(t, "Wife")})
	requireFieldError(t, err, "relative")
}

func TestParentChildReverseRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	parent := env.createPerson(t, alice, "parent", "Pat Parent")
	child := env.createPerson(t, alice, "child", "Chris Child")

	_, err := env.relationships.CreateRelationship(alice, models.KindParentChild, RelationshipInput{PersonID: parent.ID, RelativeID: child.ID, RelationTypeID: env.relationTypeID(t, "Son")})
	require.NoError(t, err)

	_, err = env.relationships.CreateRelationship(alice, models.KindParentChild, RelationshipInput{PersonID: child.ID, RelativeID: parent.ID, RelationTypeID: env.relationTypeID(t, "Father")})
	requireFieldError(t, err, "relative")
}

func TestRelationshipValidationAndPermissions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	bob := env.register(t, "bob", "Bob Example")
	john := env.createPerson(t, alice, "john", "John Smith")
	mary := env.createPerson(t, alice, "mary", "Mary Smith")
	husband := env.relationTypeID(t, "Husband")

	_, err := env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelationTypeID: husband})
	requireFieldError(t, err, "relative")
	_, err = env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelativeID: 999, RelationTypeID: husband})
	requireFieldError(t, err, "relative")
	_, err = env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: 999})
	requireFieldError(t, err, "relation_type")
	_, err = env.relationships.CreateRelationship(alice, models.RelationshipKind("enemy"), RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: husband})
	assert.ErrorIs(t, err, ErrUnknownRelationshipKind)

	rel, err := env.relationships.CreateRelationship(bob, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: husband})
	require.NoError(t, err, "add_relationship is a default permission")

	assert.ErrorIs(t, env.relationships.DeleteRelationship(bob, models.KindInterpersonal, rel.ID), ErrForbidden)
	require.NoError(t, env.relationships.DeleteRelationship(alice, models.KindInterpersonal, rel.ID))
	_, err = env.relationships.GetRelationship(alice, models.KindInterpersonal, rel.ID)
	assert.ErrorIs(t, err, ErrRelationshipNotFound)
}

func TestListRelationships(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	john := env.createPerson(t, alice, "john", "John Smith")
	mary := env.createPerson(t, alice, "mary", "Mary Smith")
	_, err := env.relationships.CreateRelationship(alice, models.KindInterpersonal, RelationshipInput{PersonID: mary.ID, RelativeID: john.ID, RelationTypeID: env.relationTypeID(t, "Husband")})
	require.NoError(t, err)

	rels, page, err := env.relationships.ListRelationships(alice, models.KindInterpersonal, models.ListQuery{Page: models.NewPage(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, rels, 1)
	assert.Equal(t, "Mary Smith", rels[0].PersonName)
	assert.Equal(t, "John Smith", rels[0].RelativeName)
	assert.Equal(t, "Husband", rels[0].RelationTypeName)

	rels, _, err = env.relationships.ListRelationships(alice, models.KindParentChild, models.ListQuery{Page: models.NewPage(1, 10)})
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestCreateRelationshipType(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "Alice Example")
	bob := env.register(t, "bob", "Bob Example")

	_, err := env.relationships.CreateRelationshipType(bob, "Godparent")
	assert.ErrorIs(t, err, ErrForbidden)

	rt, err := env.relationships.CreateRelationshipType(alice, "  God   parent ")
	require.NoError(t, err)
	assert.Equal(t, "God parent", rt.Name)

	_, err = env.relationships.CreateRelationshipType(alice, "Husband")
	requireFieldError(t, err, "name")
	_, err = env.relationships.CreateRelationshipType(alice, "   ")
	requireFieldError(t, err, "name")

	types, err := env.relationships.ListRelationshipTypes()
	require.NoError(t, err)
	assert.Len(t, types, 20)
}
