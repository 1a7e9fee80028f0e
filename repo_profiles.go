package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TalentProfiles is the talent_profiles collection keyed by user id.
type TalentProfiles interface {
	repository.Repository[*TalentProfile]

	GetByUserID(ctx context.Context, userID uuid.UUID) (*TalentProfile, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*TalentProfile, error)
	Patch(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*TalentProfile, error)
	PatchTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, patch ProfilePatch) (*TalentProfile, error)
}

// AdminProfiles is the admin_profiles collection keyed by user id.
type AdminProfiles interface {
	repository.Repository[*AdminProfile]

	GetByUserID(ctx context.Context, userID uuid.UUID) (*AdminProfile, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*AdminProfile, error)
	Patch(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*AdminProfile, error)
	PatchTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, patch ProfilePatch) (*AdminProfile, error)
}

type talentProfiles struct {
	repository.Repository[*TalentProfile]
	db  *bun.DB
	now Clock
}

type adminProfiles struct {
	repository.Repository[*AdminProfile]
	db  *bun.DB
	now Clock
}

var (
	_ TalentProfiles = (*talentProfiles)(nil)
	_ AdminProfiles  = (*adminProfiles)(nil)
)

func NewTalentProfilesRepository(db *bun.DB) TalentProfiles {
	repo := repository.NewRepository[*TalentProfile](db, repository.ModelHandlers[*TalentProfile]{
		NewRecord: func() *TalentProfile { return &TalentProfile{} },
		GetID: func(p *TalentProfile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *TalentProfile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	})
	return &talentProfiles{Repository: repo, db: db, now: time.Now}
}

func (r *talentProfiles) GetByUserID(ctx context.Context, userID uuid.UUID) (*TalentProfile, error) {
	return r.GetByUserIDTx(ctx, r.db, userID)
}

func (r *talentProfiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*TalentProfile, error) {
	record := &TalentProfile{}
	if err := selectByUserID(ctx, tx, record, userID); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *talentProfiles) Patch(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*TalentProfile, error) {
	return r.PatchTx(ctx, r.db, userID, patch)
}

func (r *talentProfiles) PatchTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, patch ProfilePatch) (*TalentProfile, error) {
	if err := patchByUserID(ctx, tx, &TalentProfile{}, userID, patch, r.now()); err != nil {
		return nil, err
	}
	return r.GetByUserIDTx(ctx, tx, userID)
}

func NewAdminProfilesRepository(db *bun.DB) AdminProfiles {
	repo := repository.NewRepository[*AdminProfile](db, repository.ModelHandlers[*AdminProfile]{
		NewRecord: func() *AdminProfile { return &AdminProfile{} },
		GetID: func(p *AdminProfile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *AdminProfile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	})
	return &adminProfiles{Repository: repo, db: db, now: time.Now}
}

func (r *adminProfiles) GetByUserID(ctx context.Context, userID uuid.UUID) (*AdminProfile, error) {
	return r.GetByUserIDTx(ctx, r.db, userID)
}

func (r *adminProfiles) GetByUserIDTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*AdminProfile, error) {
	record := &AdminProfile{}
	if err := selectByUserID(ctx, tx, record, userID); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *adminProfiles) Patch(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*AdminProfile, error) {
	return r.PatchTx(ctx, r.db, userID, patch)
}

func (r *adminProfiles) PatchTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, patch ProfilePatch) (*AdminProfile, error) {
	if err := patchByUserID(ctx, tx, &AdminProfile{}, userID, patch, r.now()); err != nil {
		return nil, err
	}
	return r.GetByUserIDTx(ctx, tx, userID)
}

func selectByUserID(ctx context.Context, tx bun.IDB, model any, userID uuid.UUID) error {
	err := tx.NewSelect().
		Model(model).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil && repository.IsRecordNotFound(err) {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"user_id": userID.String(),
			})
	}
	return err
}

// patchByUserID only touches the patched columns plus updated_at.
func patchByUserID(ctx context.Context, tx bun.IDB, model any, userID uuid.UUID, patch ProfilePatch, now time.Time) error {
	if len(patch) == 0 {
		return invalidInput("profile patch is empty", nil)
	}

	q := tx.NewUpdate().
		Model(model).
		Where("user_id = ?", userID)

	for _, col := range patch.Columns() {
		q = q.Set("? = ?", bun.Ident(col), patch[col])
	}
	q = q.Set("updated_at = ?", now.UTC())

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"user_id": userID.String(),
			})
	}

	return nil
}
