package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/domain/model"
	apperrors "github.com/target/opsdesk/internal/errors"
)

// ActivitySnapshotKey is the settings row holding the latest entity scan.
const ActivitySnapshotKey = "activity_snapshot"

// SettingsRepo stores serialized settings blobs keyed by name.
type SettingsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.SettingsRepository = (*SettingsRepo)(nil)

// NewSettingsRepo creates a new SettingsRepo with real time provider.
func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewSettingsRepoWithTimeProvider creates a SettingsRepo with a custom time provider (useful for tests).
func NewSettingsRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *SettingsRepo {
	return &SettingsRepo{DB: db, timeProvider: tp}
}

// GetSnapshot loads the activity snapshot or returns model.ErrSnapshotNotFound.
func (r *SettingsRepo) GetSnapshot(ctx context.Context) (*model.ActivitySnapshot, error) {
	var raw []byte
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, ActivitySnapshotKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get activity snapshot: %w", apperrors.MapDBError(err))
	}

	var snap model.ActivitySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode activity snapshot: %w", err)
	}
	return &snap, nil
}

// PutSnapshot overwrites the stored snapshot.
func (r *SettingsRepo) PutSnapshot(ctx context.Context, snapshot *model.ActivitySnapshot) error {
	if snapshot == nil {
		return ErrSnapshotRequired
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode activity snapshot: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		ActivitySnapshotKey, raw, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put activity snapshot: %w", apperrors.MapDBError(err))
	}
	return nil
}
