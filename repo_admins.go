package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Admins is the privileged accounts collection.
type Admins interface {
	repository.Repository[*Admin]
	AdminFinder

	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Admin, error)
	Register(ctx context.Context, admin *Admin, password string) (*Admin, error)
	RegisterTx(ctx context.Context, tx bun.IDB, admin *Admin, password string) (*Admin, error)
}

type admins struct {
	repository.Repository[*Admin]
	db *bun.DB
}

var _ Admins = (*admins)(nil)

func NewAdminsRepository(db *bun.DB) Admins {
	repo := repository.NewRepository[*Admin](db, repository.ModelHandlers[*Admin]{
		NewRecord: func() *Admin { return &Admin{} },
		GetID: func(a *Admin) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Admin, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &admins{
		Repository: repo,
		db:         db,
	}
}

// FindByEmail returns nil, nil when no admin has that exact email.
func (a *admins) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *admins) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Admin, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	record := &Admin{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

func (a *admins) Register(ctx context.Context, admin *Admin, password string) (*Admin, error) {
	return a.RegisterTx(ctx, a.db, admin, password)
}

// RegisterTx hashes password with bcrypt and stores the admin.
func (a *admins) RegisterTx(ctx context.Context, tx bun.IDB, admin *Admin, password string) (*Admin, error) {
	if admin == nil {
		return nil, invalidInput("admin is required", nil)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin.Email = strings.TrimSpace(admin.Email)
	admin.Password = hash
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}

	return a.Repository.CreateTx(ctx, tx, admin)
}
