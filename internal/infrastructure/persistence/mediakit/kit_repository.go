// Package mediakit provides the media kit and generated-content repositories.
package mediakit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/persistence/database"
)

// KitSummary lists a stored kit without its document.
type KitSummary struct {
	ID      string    `json:"id"`
	Version int64     `json:"version"`
	Created time.Time `json:"created"`
	Changed time.Time `json:"changed"`
}

// KitRepository stores serialized kit state, one row per kit.
type KitRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

func NewKitRepository(db *sql.DB, logger *logging.ChanneledLogger) *KitRepository {
	return &KitRepository{db: db, logger: logger}
}

// LoadState returns the stored document of a kit, or ErrNoStoredState.
func (r *KitRepository) LoadState(ctx context.Context, kitID string) ([]byte, error) {
	query := `SELECT state_json FROM media_kits WHERE id = ?`
	start := time.Now()

	var data string
	err := r.db.QueryRowContext(ctx, query, kitID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoStoredState
	}
	if err != nil {
		r.logger.Storage().Error("Kit load failed", "error", err.Error(), "kitId", kitID)
		return nil, fmt.Errorf("failed to load kit %s: %w", kitID, err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), kitID)
	return []byte(data), nil
}

// SaveState upserts the document of a kit and bumps its version.
func (r *KitRepository) SaveState(ctx context.Context, kitID string, data []byte) error {
	query := `INSERT INTO media_kits (id, state_json, version, created, changed) VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state_json = excluded.state_json, version = media_kits.version + 1, changed = excluded.changed`

	start := time.Now()
	now := database.NowMillis()
	r.logger.Storage().Debug("Executing kit upsert", "kitId", kitID, "bytes", len(data))

	if _, err := r.db.ExecContext(ctx, query, kitID, string(data), now, now); err != nil {
		r.logger.Storage().Error("Kit upsert failed", "error", err.Error(), "kitId", kitID)
		return fmt.Errorf("failed to save kit %s: %w", kitID, err)
	}

	duration := time.Since(start)
	r.logger.Storage().Info("Kit upsert completed", "kitId", kitID, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, kitID)
	return nil
}

// List returns every stored kit, most recently changed first.
func (r *KitRepository) List(ctx context.Context) ([]KitSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, version, created, changed FROM media_kits ORDER BY changed DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list kits: %w", err)
	}
	defer rows.Close()

	var kits []KitSummary
	for rows.Next() {
		var k KitSummary
		var created, changed int64
		if err := rows.Scan(&k.ID, &k.Version, &created, &changed); err != nil {
			return nil, fmt.Errorf("failed to scan kit: %w", err)
		}
		k.Created = time.UnixMilli(created).UTC()
		k.Changed = time.UnixMilli(changed).UTC()
		kits = append(kits, k)
	}
	return kits, rows.Err()
}

// Delete removes a kit and its generated content. It reports whether the
// kit existed.
func (r *KitRepository) Delete(ctx context.Context, kitID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM media_kits WHERE id = ?`, kitID)
	if err != nil {
		return false, fmt.Errorf("failed to delete kit %s: %w", kitID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mkcg_fields WHERE kit_id = ?`, kitID); err != nil {
		return false, fmt.Errorf("failed to delete generated content of %s: %w", kitID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete of %s: %w", kitID, err)
	}
	n, _ := res.RowsAffected()
	r.logger.Storage().Info("Kit deleted", "kitId", kitID, "existed", n > 0)
	return n > 0, nil
}
