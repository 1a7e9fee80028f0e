package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// BunStorage keeps client storage in the client_storage table.
type BunStorage struct {
	db  bun.IDB
	now Clock
}

// NewBunStorage returns a Storage backed by db. The table is created by CreateSchema.
func NewBunStorage(db bun.IDB) *BunStorage {
	return &BunStorage{db: db, now: time.Now}
}

func (s *BunStorage) Get(ctx context.Context, key string) (string, bool, error) {
	entry := &StorageEntry{}
	err := s.db.NewSelect().
		Model(entry).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read client storage").
			WithMetadata(map[string]any{"key": key})
	}
	return entry.Value, true, nil
}

func (s *BunStorage) Set(ctx context.Context, key, value string) error {
	entry := &StorageEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now(),
	}

	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write client storage").
			WithMetadata(map[string]any{"key": key})
	}
	return nil
}

func (s *BunStorage) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*StorageEntry)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete client storage").
			WithMetadata(map[string]any{"key": key})
	}
	return nil
}

var _ Storage = (*BunStorage)(nil)
