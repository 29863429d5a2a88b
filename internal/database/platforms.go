package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/salesimport/internal/platform"
)

// PlatformRepo stores platform configs in the platforms table and resolves
// them by case-insensitive name.
type PlatformRepo struct {
	db               DBTX
	defaultBatchSize int
}

// NewPlatformRepo returns a repo. defaultBatchSize applies to configs that
// do not set batch_size.
func NewPlatformRepo(db DBTX, defaultBatchSize int) *PlatformRepo {
	return &PlatformRepo{db: db, defaultBatchSize: defaultBatchSize}
}

const resolvePlatform = `
SELECT platform_id, platform_name, platform_config
FROM platforms
WHERE lower(platform_name) = lower($1)
`

// Resolve implements platform.Resolver.
func (r *PlatformRepo) Resolve(ctx context.Context, name string) (*platform.Platform, error) {
	var (
		id     uuid.UUID
		stored string
		raw    platform.RawConfig
	)
	err := r.db.QueryRow(ctx, resolvePlatform, name).Scan(&id, &stored, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", platform.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query platform: %w", err)
	}

	cfg, err := platform.NewConfig(stored, raw, r.defaultBatchSize)
	if err != nil {
		return nil, err
	}
	return &platform.Platform{ID: id, Config: cfg}, nil
}

const upsertPlatform = `
INSERT INTO platforms (platform_id, platform_name, platform_config)
VALUES ($1, $2, $3)
ON CONFLICT ((lower(platform_name))) DO UPDATE
SET platform_config = EXCLUDED.platform_config,
    updated_at = now()
RETURNING platform_id, (xmax = 0) AS created
`

// Upsert stores cfg, updating the config of an existing platform with the
// same name or creating it. It reports whether a new row was created.
func (r *PlatformRepo) Upsert(ctx context.Context, cfg *platform.Config) (*platform.Platform, bool, error) {
	var (
		id      uuid.UUID
		created bool
	)
	err := r.db.QueryRow(ctx, upsertPlatform, platform.NameID(cfg.Name()), cfg.Name(), cfg.Raw()).Scan(&id, &created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert platform %q: %w", cfg.Name(), err)
	}
	return &platform.Platform{ID: id, Config: cfg}, created, nil
}

// LoadDocument upserts every platform in doc inside one transaction.
func LoadDocument(ctx context.Context, db TxBeginner, doc platform.Document, defaultBatchSize int) (created, updated int, err error) {
	configs, err := doc.Configs(defaultBatchSize)
	if err != nil {
		return 0, 0, err
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	repo := NewPlatformRepo(tx, defaultBatchSize)
	for _, cfg := range configs {
		_, isNew, err := repo.Upsert(ctx, cfg)
		if err != nil {
			return 0, 0, err
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return created, updated, nil
}
