package store

import (
	"fmt"
	"time"

	"github.com/haukened/surfguard/internal/guard/domain"
)

// SchemaVersion is the version the running binary expects. It is stored in
// the database's user_version pragma.
const SchemaVersion = 1

// TimeLayout is the timestamp format used in the discovery and sb_lookup
// columns.
const TimeLayout = "2006-01-02 15:04:05.000"

// FormatTime renders a timestamp for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp. Returns the zero time for empty or
// malformed values.
func ParseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Table names of the persisted schema.
const (
	TableSites     = "tlds"
	TableResources = "contents"
	TableTypes     = "types"
	TableLinks     = "contents_tlds"
	TableSiteTree  = "links"
)

// createStatements holds the DDL for a fresh database, one slice entry per
// table (indexes follow their table).
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS "tlds" (
		"id" INTEGER PRIMARY KEY,
		"domain" TEXT NOT NULL UNIQUE,
		"blocked" INTEGER DEFAULT NULL,
		"discovery" TEXT NOT NULL,
		"sb_lookup" TEXT DEFAULT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS "tlds_domain" ON "tlds" ("domain")`,

	`CREATE TABLE IF NOT EXISTS "types" (
		"id" INTEGER PRIMARY KEY,
		"name" TEXT NOT NULL,
		"tag" TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS "types_tag" ON "types" ("tag")`,

	`CREATE TABLE IF NOT EXISTS "contents" (
		"id" INTEGER PRIMARY KEY,
		"url" TEXT NOT NULL,
		"type_id" INTEGER NOT NULL,
		"blocked" INTEGER DEFAULT NULL,
		"discovery" TEXT NOT NULL,
		"sb_lookup" TEXT DEFAULT NULL,
		UNIQUE ("url", "type_id")
	)`,
	`CREATE INDEX IF NOT EXISTS "contents_url" ON "contents" ("url")`,

	`CREATE TABLE IF NOT EXISTS "contents_tlds" (
		"id" INTEGER PRIMARY KEY,
		"content_id" INTEGER NOT NULL,
		"tld_id" INTEGER NOT NULL,
		"discovery" TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS "contents_tlds_content_tld" ON "contents_tlds" ("content_id", "tld_id")`,

	// Site-to-site parent associations. Not written by the core yet; kept
	// for compatibility with the persisted format.
	`CREATE TABLE IF NOT EXISTS "links" (
		"id" INTEGER PRIMARY KEY,
		"tld_id" INTEGER NOT NULL,
		"parent_id" INTEGER NOT NULL,
		"discovery" TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS "links_tld_parent" ON "links" ("tld_id", "parent_id")`,
}

// migrations maps a (from, to) schema version pair to its migration step.
// A version on disk with no registered path to SchemaVersion is fatal.
var migrations = map[[2]int]func(*Store) error{}

// ensureSchema creates a fresh schema or migrates an existing one.
func (s *Store) ensureSchema() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case version == SchemaVersion:
		return nil
	case version == 0:
		return s.createSchema()
	default:
		return s.migrateSchema(version)
	}
}

func (s *Store) createSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema creation: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range createStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Seed the static resource-type catalog.
	for _, e := range domain.TypeCatalog {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO "types" ("id", "name", "tag") VALUES (?, ?, ?)`,
			e.ID, e.Name, string(e.Tag))
		if err != nil {
			return fmt.Errorf("seed types: %w", err)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema creation: %w", err)
	}

	s.logger.Info(map[string]any{"version": SchemaVersion}, "database schema created")
	return nil
}

func (s *Store) migrateSchema(from int) error {
	migrate, ok := migrations[[2]int{from, SchemaVersion}]
	if !ok {
		return fmt.Errorf("%w: %d -> %d", ErrNoMigrationPath, from, SchemaVersion)
	}
	if err := migrate(s); err != nil {
		return fmt.Errorf("migrate schema %d -> %d: %w", from, SchemaVersion, err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	s.logger.Info(map[string]any{"from": from, "to": SchemaVersion}, "database schema migrated")
	return nil
}
