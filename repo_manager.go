package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Admins() Admins
	Users() Users
	TalentProfiles() TalentProfiles
	AdminProfiles() AdminProfiles
}

type mngr struct {
	db             *bun.DB
	admins         Admins
	users          Users
	talentProfiles TalentProfiles
	adminProfiles  AdminProfiles
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		admins:         NewAdminsRepository(db),
		users:          NewUsersRepository(db),
		talentProfiles: NewTalentProfilesRepository(db),
		adminProfiles:  NewAdminProfilesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.admins == nil {
		return errors.New("repository admins should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.talentProfiles == nil {
		return errors.New("repository talentProfiles should be initialized")
	}

	if m.adminProfiles == nil {
		return errors.New("repository adminProfiles should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Admins() Admins {
	return m.admins
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) TalentProfiles() TalentProfiles {
	return m.talentProfiles
}

func (m mngr) AdminProfiles() AdminProfiles {
	return m.adminProfiles
}

// CreateSchema creates the tables backing the repositories and BunStorage.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*Admin)(nil),
		(*User)(nil),
		(*TalentProfile)(nil),
		(*AdminProfile)(nil),
		(*StorageEntry)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
