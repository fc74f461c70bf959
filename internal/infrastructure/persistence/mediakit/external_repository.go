package mediakit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

// ExternalField is one generated value for a component type of a kit.
type ExternalField struct {
	ComponentType string       `json:"componentType"`
	Field         string       `json:"field"`
	Value         domain.Value `json:"value"`
}

// ExternalSourceRepository serves generated content stored in mkcg_fields.
// Field names are mapped onto prop names through the catalog.
type ExternalSourceRepository struct {
	db      *sql.DB
	catalog *catalog.Catalog
	logger  *logging.ChanneledLogger
}

func NewExternalSourceRepository(db *sql.DB, cat *catalog.Catalog, logger *logging.ChanneledLogger) *ExternalSourceRepository {
	return &ExternalSourceRepository{db: db, catalog: cat, logger: logger}
}

// FetchComponents groups the stored fields of a kit into one component per
// type, in the order the types first appear.
func (r *ExternalSourceRepository) FetchComponents(ctx context.Context, kitID string) ([]domain.ExternalComponent, error) {
	fields, err := r.Fields(ctx, kitID)
	if err != nil {
		return nil, err
	}

	var order []string
	grouped := make(map[string]map[string]domain.Value)
	for _, f := range fields {
		values, ok := grouped[f.ComponentType]
		if !ok {
			values = make(map[string]domain.Value)
			grouped[f.ComponentType] = values
			order = append(order, f.ComponentType)
		}
		values[f.Field] = f.Value
	}

	out := make([]domain.ExternalComponent, 0, len(order))
	for _, componentType := range order {
		out = append(out, domain.ExternalComponent{
			Type:  componentType,
			Props: r.catalog.MapExternal(componentType, grouped[componentType]),
		})
	}
	return out, nil
}

// Fields returns the raw stored fields of a kit in position order.
func (r *ExternalSourceRepository) Fields(ctx context.Context, kitID string) ([]ExternalField, error) {
	query := `SELECT component_type, field, value_json FROM mkcg_fields WHERE kit_id = ? ORDER BY position, component_type, field`
	start := time.Now()

	rows, err := r.db.QueryContext(ctx, query, kitID)
	if err != nil {
		r.logger.Storage().Error("Generated content query failed", "error", err.Error(), "kitId", kitID)
		return nil, fmt.Errorf("failed to load generated content for %s: %w", kitID, err)
	}
	defer rows.Close()

	var fields []ExternalField
	for rows.Next() {
		var f ExternalField
		var raw string
		if err := rows.Scan(&f.ComponentType, &f.Field, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan generated field: %w", err)
		}
		if err := f.Value.UnmarshalJSON([]byte(raw)); err != nil {
			r.logger.Storage().Warn("Skipping undecodable generated field",
				"kitId", kitID, "componentType", f.ComponentType, "field", f.Field, "error", err.Error())
			continue
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read generated content for %s: %w", kitID, err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), kitID)
	return fields, nil
}

// ReplaceFields swaps the generated content of a kit for fields.
func (r *ExternalSourceRepository) ReplaceFields(ctx context.Context, kitID string, fields []ExternalField) error {
	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mkcg_fields WHERE kit_id = ?`, kitID); err != nil {
		return fmt.Errorf("failed to clear generated content of %s: %w", kitID, err)
	}
	for i, f := range fields {
		if f.ComponentType == "" || f.Field == "" {
			return fmt.Errorf("%w: generated field %d needs a component type and a name", domain.ErrInvalidArgument, i)
		}
		raw, err := f.Value.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode %s.%s: %w", f.ComponentType, f.Field, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO mkcg_fields (id, kit_id, component_type, field, value_json, position) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(kit_id, component_type, field) DO UPDATE SET value_json = excluded.value_json, position = excluded.position`,
			security.GenerateULID(), kitID, f.ComponentType, f.Field, string(raw), i)
		if err != nil {
			return fmt.Errorf("failed to store %s.%s: %w", f.ComponentType, f.Field, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import for %s: %w", kitID, err)
	}

	duration := time.Since(start)
	r.logger.Storage().Info("Generated content replaced", "kitId", kitID, "fields", len(fields), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, "BULK_IMPORT_FIELDS", duration, kitID)
	return nil
}
