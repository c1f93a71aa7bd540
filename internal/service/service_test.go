package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kinship/internal/agegroup"
	"kinship/internal/database"
	"kinship/internal/dedupe"
	"kinship/internal/metrics"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/validation"
)

const migrationsDir = "../../migrations"

type testEnv struct {
	db            *database.DB
	auth          *AuthService
	people        *PersonService
	relationships *RelationshipService
	temperatures  *TemperatureService
	backup        *BackupService
}

func newTestEnv(t *testing.T, opts ...dedupe.Option) *testEnv {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "kinship.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.RunMigrations(migrationsDir)
	require.NoError(t, err)

	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())

	userRepo := repository.NewUserRepository(db)
	personRepo := repository.NewPersonRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	temperatureRepo := repository.NewTemperatureRepository(db)
	detector := dedupe.NewDetector(personRepo, relationshipRepo, temperatureRepo, opts...)

	env := &testEnv{
		db:            db,
		auth:          NewAuthService(db, userRepo, nil, time.Hour, logger),
		people:        NewPersonService(personRepo, relationshipRepo, temperatureRepo, detector, agegroup.DefaultBrackets(), m, logger),
		relationships: NewRelationshipService(relationshipRepo, personRepo, detector, m, logger),
		temperatures:  NewTemperatureService(temperatureRepo, personRepo, detector, 34, 43, m, logger),
		backup:        NewBackupService(db, logger),
	}
	env.auth.OnUserCreated(env.people.CreateProfile)
	return env
}

func (e *testEnv) register(t *testing.T, username, fullName string) *models.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse",
		FullName: fullName,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createPerson(t *testing.T, actor *models.User, username, fullName string) *models.Person {
	t.Helper()
	p, err := e.people.CreatePerson(actor, PersonInput{Username: username, FullName: fullName})
	require.NoError(t, err)
	return p
}

func (e *testEnv) relationTypeID(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, e.db.QueryRow("SELECT id FROM relationship_types WHERE name = ?", name).Scan(&id))
	return id
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var verr validation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, field, verr.Field)
}
