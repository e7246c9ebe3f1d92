package store

import (
	"fmt"
	"sort"
	"strings"
)

// Join describes one join clause of a Query. On maps a column of the base
// table (or a "table.column" reference) to a column of the joined table.
type Join struct {
	Table string
	On    map[string]string
	// Type is the optional join type ("LEFT", "INNER", ...). Empty means
	// a plain JOIN.
	Type string
}

// Query is a typed select specification: table, projected columns, joins,
// grouping and ordering. The zero value selects * from Table.
//
// Column names may be qualified as "table.column" to address joined
// tables; qualified columns surface in result Rows under that same alias.
type Query struct {
	Table   string
	Columns []string
	Joins   []Join
	GroupBy []string
	OrderBy []string
	// AssociateByID makes FindAllIndexed key results by the row's id-like
	// column ("id", falling back to "_id").
	AssociateByID bool
}

// Table is a convenience constructor for a plain single-table query.
func Table(name string) Query {
	return Query{Table: name}
}

// WithColumns returns a copy of the query projecting the given columns.
func (q Query) WithColumns(cols ...string) Query {
	q.Columns = cols
	return q
}

// WithJoin returns a copy of the query with an added join clause.
func (q Query) WithJoin(table string, on map[string]string, joinType string) Query {
	joins := make([]Join, len(q.Joins), len(q.Joins)+1)
	copy(joins, q.Joins)
	q.Joins = append(joins, Join{Table: table, On: on, Type: joinType})
	return q
}

// WithGroupBy returns a copy of the query with grouping.
func (q Query) WithGroupBy(cols ...string) Query {
	q.GroupBy = cols
	return q
}

// WithOrderBy returns a copy of the query with ordering terms.
func (q Query) WithOrderBy(terms ...string) Query {
	q.OrderBy = terms
	return q
}

// Associated returns a copy of the query with AssociateByID set.
func (q Query) Associated() Query {
	q.AssociateByID = true
	return q
}

// render compiles the query and the whereEquals conjunction into SQL.
func (q Query) render(where Row) (string, []any, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("query has no table")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		for i, col := range q.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(projectColumn(q.Table, col))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(q.Table))

	for _, j := range q.Joins {
		if j.Table == "" || len(j.On) == 0 {
			return "", nil, fmt.Errorf("join on %q has no condition", j.Table)
		}
		if j.Type != "" {
			b.WriteString(" " + j.Type)
		}
		b.WriteString(" JOIN ")
		b.WriteString(quoteIdent(j.Table))
		b.WriteString(" ON (")
		conds := make([]string, 0, len(j.On))
		for _, left := range sortedKeys(j.On) {
			conds = append(conds, qualifyColumn(q.Table, left)+" = "+qualifyColumn(j.Table, j.On[left]))
		}
		b.WriteString(strings.Join(conds, " AND "))
		b.WriteString(")")
	}

	var args []any
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		preds := make([]string, 0, len(where))
		for _, col := range sortedKeys(where) {
			v := where[col]
			if v == nil {
				preds = append(preds, qualifyColumn(q.Table, col)+" IS NULL")
				continue
			}
			preds = append(preds, qualifyColumn(q.Table, col)+" = ?")
			args = append(args, v)
		}
		b.WriteString(strings.Join(preds, " AND "))
	}

	if len(q.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		terms := make([]string, len(q.GroupBy))
		for i, col := range q.GroupBy {
			terms[i] = qualifyColumn(q.Table, col)
		}
		b.WriteString(strings.Join(terms, ", "))
	}

	if len(q.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.OrderBy, ", "))
	}

	return b.String(), args, nil
}

// Find streams the query result row by row; return false from visit to
// stop early.
func (s *Store) Find(q Query, where Row, visit func(Row) bool) error {
	stmt, args, err := q.render(where)
	if err != nil {
		return err
	}
	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return fmt.Errorf("query %q: %w", stmt, err)
	}
	defer rows.Close()
	return scanRows(rows, visit)
}

// FindAll returns every row of the query result.
func (s *Store) FindAll(q Query, where Row) ([]Row, error) {
	var out []Row
	err := s.Find(q, where, func(r Row) bool {
		out = append(out, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindAllIndexed returns the result keyed by the id-like column. The query
// must have AssociateByID set and project an "id" (or "_id") column.
func (s *Store) FindAllIndexed(q Query, where Row) (map[int64]Row, error) {
	if !q.AssociateByID {
		return nil, fmt.Errorf("query on %q is not id-associated", q.Table)
	}
	out := make(map[int64]Row)
	var idErr error
	err := s.Find(q, where, func(r Row) bool {
		id, ok := rowID(r)
		if !ok {
			idErr = fmt.Errorf("table %q exposes no id-like column", q.Table)
			return false
		}
		out[id] = r
		return true
	})
	if err != nil {
		return nil, err
	}
	if idErr != nil {
		return nil, idErr
	}
	return out, nil
}

// FindFirst returns the first row of the result, or nil without error when
// the result is empty.
func (s *Store) FindFirst(q Query, where Row) (Row, error) {
	var first Row
	err := s.Find(q, where, func(r Row) bool {
		first = r
		return false
	})
	if err != nil {
		return nil, err
	}
	return first, nil
}

// FindAsMap returns the result keyed by keyCol. With one value column the
// map value is that column's value; with several it is a slice in column
// order.
func (s *Store) FindAsMap(q Query, keyCol string, valueCols []string, where Row) (map[any]any, error) {
	if keyCol == "" || len(valueCols) == 0 {
		return nil, fmt.Errorf("FindAsMap needs a key column and at least one value column")
	}
	cols := append([]string{keyCol}, valueCols...)
	out := make(map[any]any)
	err := s.Find(q.WithColumns(cols...), where, func(r Row) bool {
		key := r[columnAlias(keyCol)]
		if len(valueCols) == 1 {
			out[key] = r[columnAlias(valueCols[0])]
			return true
		}
		vals := make([]any, len(valueCols))
		for i, c := range valueCols {
			vals[i] = r[columnAlias(c)]
		}
		out[key] = vals
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func rowID(r Row) (int64, bool) {
	if _, ok := r["id"]; ok {
		return r.Int64("id"), true
	}
	if _, ok := r["_id"]; ok {
		return r.Int64("_id"), true
	}
	return 0, false
}

// quoteIdent wraps an identifier in double quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualifyColumn renders a column reference, defaulting unqualified names
// to the base table.
func qualifyColumn(table, col string) string {
	if t, c, ok := strings.Cut(col, "."); ok {
		return quoteIdent(t) + "." + quoteIdent(c)
	}
	return quoteIdent(table) + "." + quoteIdent(col)
}

// projectColumn renders a select-list entry. Qualified columns keep their
// "table.column" spelling as the result alias so joined columns do not
// collide with base-table ones.
func projectColumn(table, col string) string {
	return qualifyColumn(table, col) + ` AS "` + columnAlias(col) + `"`
}

// columnAlias is the name a projected column appears under in a Row.
func columnAlias(col string) string {
	return col
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
