package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), log.NewNoopLogger())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchemaAndSeedsTypes(t *testing.T) {
	s := openTestStore(t)

	types, err := s.FindAsMap(Table(TableTypes), "tag", []string{"id"}, nil)
	if err != nil {
		t.Fatalf("failed to read types: %v", err)
	}
	if len(types) != len(domain.TypeCatalog) {
		t.Fatalf("expected %d seeded types, got %d", len(domain.TypeCatalog), len(types))
	}
	for _, e := range domain.TypeCatalog {
		id, ok := types[string(e.Tag)]
		if !ok {
			t.Errorf("type %q not seeded", e.Tag)
			continue
		}
		if (Row{"id": id}).Int64("id") != e.ID {
			t.Errorf("type %q seeded with id %v, expected %d", e.Tag, id, e.ID)
		}
	}
}

func TestOpen_ReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	logger := log.NewNoopLogger()

	s, err := Open(path, logger)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, _, err := s.Insert(TableSites, Row{
		"domain":    "example.com",
		"discovery": "2026-01-02 03:04:05.000",
	}, ConflictFail); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	row, err := s2.FindFirst(Table(TableSites), Row{"domain": "example.com"})
	if err != nil {
		t.Fatalf("find after reopen: %v", err)
	}
	if row == nil {
		t.Fatal("data lost across reopen")
	}
}

func TestOpen_UnknownSchemaVersionFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("raw open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	db.Close()

	_, err = Open(path, log.NewNoopLogger())
	if !errors.Is(err, ErrNoMigrationPath) {
		t.Errorf("expected ErrNoMigrationPath, got %v", err)
	}
}

func TestInsert_ConflictIgnoreReportsDuplicate(t *testing.T) {
	s := openTestStore(t)

	row := Row{"domain": "example.com", "discovery": "2026-01-02 03:04:05.000"}
	id, affected, err := s.Insert(TableSites, row, ConflictIgnore)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if affected != 1 || id == 0 {
		t.Fatalf("expected fresh insert (id, 1), got (%d, %d)", id, affected)
	}

	_, affected, err = s.Insert(TableSites, row, ConflictIgnore)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if affected != 0 {
		t.Errorf("duplicate under ignore must report 0 affected, got %d", affected)
	}
}

func TestInsert_ConflictFailSurfacesError(t *testing.T) {
	s := openTestStore(t)

	row := Row{"domain": "example.com", "discovery": "2026-01-02 03:04:05.000"}
	if _, _, err := s.Insert(TableSites, row, ConflictFail); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, _, err := s.Insert(TableSites, row, ConflictFail); err == nil {
		t.Error("expected constraint error on duplicate")
	}
}

func TestInsert_ConflictReplaceOverwrites(t *testing.T) {
	s := openTestStore(t)

	row := Row{"domain": "example.com", "discovery": "2026-01-02 03:04:05.000", "blocked": int64(0)}
	if _, _, err := s.Insert(TableSites, row, ConflictFail); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	row["blocked"] = int64(1)
	_, affected, err := s.Insert(TableSites, row, ConflictReplace)
	if err != nil {
		t.Fatalf("replace insert: %v", err)
	}
	if affected == 0 {
		t.Fatal("replace must affect rows")
	}

	got, err := s.FindFirst(Table(TableSites), Row{"domain": "example.com"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Int64("blocked") != 1 {
		t.Errorf("expected replaced blocked=1, got %v", got["blocked"])
	}
}

func TestInsert_EmptyRowFails(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.Insert(TableSites, Row{}, ConflictFail); err == nil {
		t.Error("expected error for empty row")
	}
}

func TestInsertBatch_UnionsColumns(t *testing.T) {
	s := openTestStore(t)

	affected, err := s.InsertBatch(TableSites, []Row{
		{"domain": "a.example", "discovery": "2026-01-02 03:04:05.000", "blocked": int64(1)},
		{"domain": "b.example", "discovery": "2026-01-02 03:04:05.000"},
	}, ConflictFail)
	if err != nil {
		t.Fatalf("batch insert: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 affected, got %d", affected)
	}

	// The missing column is written as NULL.
	row, err := s.FindFirst(Table(TableSites), Row{"domain": "b.example"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if row["blocked"] != nil {
		t.Errorf("expected NULL blocked for b.example, got %v", row["blocked"])
	}
}

func TestUpdate_And_Remove(t *testing.T) {
	s := openTestStore(t)

	if _, _, err := s.Insert(TableSites, Row{
		"domain": "example.com", "discovery": "2026-01-02 03:04:05.000",
	}, ConflictFail); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := s.Update(TableSites, Row{"domain": "example.com"}, Row{"blocked": int64(1)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 updated row, got %d", n)
	}

	n, err = s.Update(TableSites, Row{"domain": "absent.example"}, Row{"blocked": int64(1)})
	if err != nil {
		t.Fatalf("update absent: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 updated rows for absent key, got %d", n)
	}

	n, err = s.Remove(TableSites, Row{"domain": "example.com"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed row, got %d", n)
	}
}

func TestFindFirst_EmptyResultIsNil(t *testing.T) {
	s := openTestStore(t)
	row, err := s.FindFirst(Table(TableSites), Row{"domain": "absent.example"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if row != nil {
		t.Errorf("expected nil row, got %v", row)
	}
}

func TestFind_NilPredicateMatchesNull(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertBatch(TableSites, []Row{
		{"domain": "checked.example", "discovery": "2026-01-02 03:04:05.000", "sb_lookup": "2026-01-02 03:04:05.000"},
		{"domain": "unchecked.example", "discovery": "2026-01-02 03:04:05.000"},
	}, ConflictFail); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := s.FindAll(Table(TableSites), Row{"sb_lookup": nil})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 || rows[0].String("domain") != "unchecked.example" {
		t.Errorf("expected only the unchecked site, got %v", rows)
	}
}

func TestFindAllIndexed(t *testing.T) {
	s := openTestStore(t)

	id, _, err := s.Insert(TableSites, Row{
		"domain": "example.com", "discovery": "2026-01-02 03:04:05.000",
	}, ConflictFail)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	indexed, err := s.FindAllIndexed(Table(TableSites).Associated(), nil)
	if err != nil {
		t.Fatalf("indexed find: %v", err)
	}
	row, ok := indexed[id]
	if !ok {
		t.Fatalf("expected row under id %d, got %v", id, indexed)
	}
	if row.String("domain") != "example.com" {
		t.Errorf("expected example.com, got %q", row.String("domain"))
	}

	if _, err := s.FindAllIndexed(Table(TableSites), nil); err == nil {
		t.Error("expected error for non-associated query")
	}
}

func TestFindAsMap_MultipleValueColumns(t *testing.T) {
	s := openTestStore(t)

	m, err := s.FindAsMap(Table(TableTypes), "tag", []string{"id", "name"}, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	vals, ok := m["script"].([]any)
	if !ok {
		t.Fatalf("expected slice value for multi-column map, got %T", m["script"])
	}
	if len(vals) != 2 || (Row{"id": vals[0]}).Int64("id") != 3 || vals[1] != "Script" {
		t.Errorf("unexpected values for script: %v", vals)
	}
}

func TestFind_JoinProjectsQualifiedColumns(t *testing.T) {
	s := openTestStore(t)

	resID, _, err := s.Insert(TableResources, Row{
		"url":       "https://cdn.example.com/a.js",
		"type_id":   int64(3),
		"discovery": "2026-01-02 03:04:05.000",
	}, ConflictFail)
	if err != nil {
		t.Fatalf("insert resource: %v", err)
	}

	q := Table(TableResources).
		WithColumns("id", "url", "types.tag", "types.name").
		WithJoin(TableTypes, map[string]string{"type_id": "id"}, "").
		Associated()
	rows, err := s.FindAllIndexed(q, nil)
	if err != nil {
		t.Fatalf("join find: %v", err)
	}
	row, ok := rows[resID]
	if !ok {
		t.Fatalf("expected joined row under id %d", resID)
	}
	if row.String("types.tag") != "script" {
		t.Errorf("expected joined tag under its qualified alias, got %v", row)
	}
	if row.String("types.name") != "Script" {
		t.Errorf("expected joined name Script, got %v", row)
	}
}

func TestContents_UniqueOnURLAndType(t *testing.T) {
	s := openTestStore(t)

	row := Row{
		"url":       "https://cdn.example.com/a",
		"type_id":   int64(3),
		"discovery": "2026-01-02 03:04:05.000",
	}
	if _, _, err := s.Insert(TableResources, row, ConflictFail); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Same URL under a different type is a distinct record.
	row["type_id"] = int64(5)
	_, affected, err := s.Insert(TableResources, row, ConflictIgnore)
	if err != nil {
		t.Fatalf("insert second type: %v", err)
	}
	if affected != 1 {
		t.Error("same url with different type must insert")
	}

	_, affected, err = s.Insert(TableResources, row, ConflictIgnore)
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if affected != 0 {
		t.Error("same url and type must be a duplicate")
	}
}
