package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-talent-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.CreateSchema(context.Background(), db))
	return db
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seededTalent struct {
	id      uuid.UUID
	email   string
	profile *auth.TalentProfile
}

func seedTalent(t *testing.T, db *bun.DB, email, fullName string) seededTalent {
	t.Helper()
	ctx := context.Background()
	repos := auth.NewRepositoryManager(db)

	id := uuid.New()
	_, err := repos.Users().Assign(ctx, id, auth.RoleTalent)
	require.NoError(t, err)

	record := &auth.TalentProfile{
		ID:       uuid.New(),
		UserID:   id,
		Email:    email,
		FullName: fullName,
	}
	_, err = db.NewInsert().Model(record).Exec(ctx)
	require.NoError(t, err)

	return seededTalent{id: id, email: email, profile: record}
}

func seedAdminProfile(t *testing.T, db *bun.DB, role auth.Role, email, name string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	repos := auth.NewRepositoryManager(db)

	id := uuid.New()
	_, err := repos.Users().Assign(ctx, id, role)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&auth.AdminProfile{
		ID:     uuid.New(),
		UserID: id,
		Email:  email,
		Name:   name,
	}).Exec(ctx)
	require.NoError(t, err)

	return id
}

func seedAdmin(t *testing.T, db *bun.DB, email, password string) *auth.Admin {
	t.Helper()

	hash, err := auth.HashPasswordWithCost(password, bcrypt.MinCost)
	require.NoError(t, err)

	admin := &auth.Admin{ID: uuid.New(), Email: email, Password: hash, Name: "Ops"}
	_, err = db.NewInsert().Model(admin).Exec(context.Background())
	require.NoError(t, err)
	return admin
}

func quietLogger() auth.Logger {
	return auth.NoopLogger()
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}
