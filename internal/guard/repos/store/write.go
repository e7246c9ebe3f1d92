package store

import (
	"fmt"
	"strings"
)

// OnConflict selects the insert conflict policy.
type OnConflict uint8

const (
	// ConflictFail surfaces a constraint violation as an error.
	ConflictFail OnConflict = iota
	// ConflictIgnore keeps the existing row; the insert reports zero
	// affected rows. Zero affected rows under this policy is how callers
	// recognize a benign duplicate; it is not an error.
	ConflictIgnore
	// ConflictReplace deletes the conflicting row and inserts the new one.
	ConflictReplace
)

func (c OnConflict) clause() string {
	switch c {
	case ConflictIgnore:
		return "OR IGNORE "
	case ConflictReplace:
		return "OR REPLACE "
	default:
		return ""
	}
}

// Insert writes one row. It returns the generated primary key and the
// number of affected rows; affected == 0 under ConflictIgnore signals a
// pre-existing record and the returned id must be disregarded.
func (s *Store) Insert(table string, row Row, conflict OnConflict) (id int64, affected int64, err error) {
	if len(row) == 0 {
		return 0, 0, fmt.Errorf("insert into %q: empty row", table)
	}

	cols := sortedKeys(row)
	args := make([]any, len(cols))
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		args[i] = row[c]
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}

	stmt := fmt.Sprintf("INSERT %sINTO %s (%s) VALUES (%s)",
		conflict.clause(), quoteIdent(table),
		strings.Join(quoted, ", "), strings.Join(marks, ", "))

	res, err := s.db.Exec(stmt, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("insert into %q: %w", table, err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	if affected == 0 {
		return 0, 0, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, affected, err
	}
	return id, affected, nil
}

// InsertBatch writes several rows in one multi-row statement. The rows'
// column sets are unioned; a column missing from a row is written as NULL.
// Returns the number of affected rows.
func (s *Store) InsertBatch(table string, rows []Row, conflict OnConflict) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	colSet := make(map[string]struct{})
	for _, r := range rows {
		for c := range r {
			colSet[c] = struct{}{}
		}
	}
	cols := sortedKeys(colSet)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}
	tuple := "(" + strings.Join(marks, ", ") + ")"

	var args []any
	tuples := make([]string, len(rows))
	for i, r := range rows {
		tuples[i] = tuple
		for _, c := range cols {
			args = append(args, r[c]) // nil for absent columns
		}
	}

	stmt := fmt.Sprintf("INSERT %sINTO %s (%s) VALUES %s",
		conflict.clause(), quoteIdent(table),
		strings.Join(quoted, ", "), strings.Join(tuples, ", "))

	res, err := s.db.Exec(stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert batch into %q: %w", table, err)
	}
	return res.RowsAffected()
}

// Update sets the given columns on every row matching the whereEquals
// conjunction. An empty where updates the whole table.
func (s *Store) Update(table string, where Row, set Row) (int64, error) {
	if len(set) == 0 {
		return 0, fmt.Errorf("update %q: empty set", table)
	}

	var args []any
	assigns := make([]string, 0, len(set))
	for _, c := range sortedKeys(set) {
		assigns = append(assigns, quoteIdent(c)+" = ?")
		args = append(args, set[c])
	}

	stmt := "UPDATE " + quoteIdent(table) + " SET " + strings.Join(assigns, ", ")
	whereSQL, whereArgs := renderWhere(where)
	stmt += whereSQL
	args = append(args, whereArgs...)

	res, err := s.db.Exec(stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("update %q: %w", table, err)
	}
	return res.RowsAffected()
}

// Remove deletes every row matching the whereEquals conjunction. An empty
// where empties the table.
func (s *Store) Remove(table string, where Row) (int64, error) {
	stmt := "DELETE FROM " + quoteIdent(table)
	whereSQL, args := renderWhere(where)
	stmt += whereSQL

	res, err := s.db.Exec(stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %q: %w", table, err)
	}
	return res.RowsAffected()
}

func renderWhere(where Row) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}
	var args []any
	preds := make([]string, 0, len(where))
	for _, c := range sortedKeys(where) {
		if where[c] == nil {
			preds = append(preds, quoteIdent(c)+" IS NULL")
			continue
		}
		preds = append(preds, quoteIdent(c)+" = ?")
		args = append(args, where[c])
	}
	return " WHERE " + strings.Join(preds, " AND "), args
}
