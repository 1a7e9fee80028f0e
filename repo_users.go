package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users maps identity provider user ids to roles.
type Users interface {
	repository.Repository[*User]

	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	GetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (Role, error)
	Assign(ctx context.Context, id uuid.UUID, role Role) (*User, error)
	AssignTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return a.GetRoleTx(ctx, a.db, id)
}

func (a *users) GetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (Role, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return "", err
	}

	return Role(strings.ToLower(string(record.Role))), nil
}

func (a *users) Assign(ctx context.Context, id uuid.UUID, role Role) (*User, error) {
	return a.AssignTx(ctx, a.db, id, role)
}

// AssignTx creates the user row or updates its role.
func (a *users) AssignTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) (*User, error) {
	if !role.IsValid() {
		return nil, invalidInput("unknown role", map[string]any{"role": role})
	}

	record := &User{ID: id, Role: role}
	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}
