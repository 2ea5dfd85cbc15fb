package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	// incident_events - confirmed incidents, one row per emitted event.
	// source_id is the external camera/video identifier (TEXT, not UUID:
	// cameras register with arbitrary ids).
	`CREATE TABLE IF NOT EXISTS incident_events (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		source_id       TEXT NOT NULL,
		incident_type   TEXT NOT NULL,
		severity        TEXT NOT NULL,
		confidence      NUMERIC(5,4) NOT NULL,
		description     TEXT,
		frame_index     BIGINT NOT NULL,
		frame_time      NUMERIC(12,3) NOT NULL,
		snapshot_url    TEXT,
		raw_judgment    JSONB,
		dispatch_results JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_events_source_id ON incident_events(source_id);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_events_created_at ON incident_events(created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_events_incident_type ON incident_events(incident_type);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_events_source_time ON incident_events(source_id, created_at DESC);`,

	`ALTER TABLE incident_events ADD COLUMN IF NOT EXISTS dispatch_results JSONB;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
