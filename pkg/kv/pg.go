package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type pgStorage struct {
	db *bun.DB
}

// NewPGStorage creates a postgres implementation of Storage
func NewPGStorage(db *bun.DB) Storage {
	return &pgStorage{db: db}
}

func (s *pgStorage) Get(ctx context.Context, key string) ([]byte, error) {
	dao := new(DocumentDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}
	return dao.Value, nil
}

func (s *pgStorage) Put(ctx context.Context, key string, value []byte) error {
	dao := &DocumentDao{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to put document %s: %w", key, err)
	}
	return nil
}
