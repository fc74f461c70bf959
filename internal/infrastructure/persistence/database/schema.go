package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

// DemoKitID is the kit seeded with generated content on a fresh database.
const DemoKitID = "demo"

var tables = []string{
	`CREATE TABLE IF NOT EXISTS media_kits (
		id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created INTEGER NOT NULL,
		changed INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mkcg_fields (
		id TEXT PRIMARY KEY,
		kit_id TEXT NOT NULL,
		component_type TEXT NOT NULL,
		field TEXT NOT NULL,
		value_json TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		UNIQUE (kit_id, component_type, field)
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_media_kits_changed ON media_kits(changed)`,
	`CREATE INDEX IF NOT EXISTS idx_mkcg_fields_kit ON mkcg_fields(kit_id, position)`,
}

// TableCreator builds the schema of a new database.
type TableCreator struct{}

func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}
	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

type seedField struct {
	componentType string
	field         string
	value         any
}

var demoFields = []seedField{
	{"hero", "full_name", "Jordan Rivera"},
	{"hero", "tagline", "Podcast host and keynote speaker"},
	{"biography", "name", "Jordan Rivera"},
	{"biography", "long_bio", "Jordan has interviewed more than three hundred founders about the first year of building a company."},
	{"biography", "location", "Portland, OR"},
	{"topics", "heading", "Speaking Topics"},
	{"topics", "topic_list", []any{"Bootstrapping", "Remote teams", "Audio storytelling"}},
	{"questions", "heading", "Interview Questions"},
	{"questions", "question_list", []any{"What did your first customer teach you?", "Which mistake would you make again?"}},
	{"contact", "email", "jordan@example.com"},
}

// SeedInitialContent idempotently stores generated content for the demo kit
// so bulk sync has something to work with.
func (tc *TableCreator) SeedInitialContent(ctx context.Context, db *sql.DB) error {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM mkcg_fields WHERE kit_id = ?)`, DemoKitID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for demo content: %w", err)
	}
	if exists {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for i, f := range demoFields {
		raw, err := json.Marshal(f.value)
		if err != nil {
			return fmt.Errorf("failed to encode demo field %s.%s: %w", f.componentType, f.field, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO mkcg_fields (id, kit_id, component_type, field, value_json, position) VALUES (?, ?, ?, ?, ?, ?)`,
			security.GenerateULID(), DemoKitID, f.componentType, f.field, string(raw), i)
		if err != nil {
			return fmt.Errorf("failed to insert demo field %s.%s: %w", f.componentType, f.field, err)
		}
	}
	return tx.Commit()
}

// NowMillis is the timestamp format of every time column.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
