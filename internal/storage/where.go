package storage

import (
	"fmt"
	"strings"
)

// whereClause accumulates AND-ed conditions with positional arguments.
type whereClause struct {
	conds []string
	args  []any
}

// arg appends v and returns its placeholder.
func (w *whereClause) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereClause) add(cond string) {
	w.conds = append(w.conds, cond)
}

// search adds a case-insensitive substring match of q over columns.
func (w *whereClause) search(q string, columns ...string) {
	q = strings.TrimSpace(q)
	if q == "" {
		return
	}
	p := w.arg("%" + escapeLike(q) + "%")
	ors := make([]string, len(columns))
	for i, c := range columns {
		ors[i] = c + " ILIKE " + p
	}
	w.add("(" + strings.Join(ors, " OR ") + ")")
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page appends LIMIT and OFFSET placeholders.
func (w *whereClause) page(limit, offset int) string {
	return " LIMIT " + w.arg(limit) + " OFFSET " + w.arg(offset)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
