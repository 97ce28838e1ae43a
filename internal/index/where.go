package index

import (
	"fmt"
	"slices"
	"strings"

	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/predicate"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// whereClause renders p as a parameterised SQL condition. It returns an
// empty string when p matches everything. Column names come only from the
// models.Columns whitelist.
func whereClause(p predicate.Predicate) (string, []any, error) {
	if p.Empty() {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(p.Clauses))
	var args []any

	for _, c := range p.Clauses {
		switch c := c.(type) {
		case predicate.Contains:
			if err := checkColumn(c.Column); err != nil {
				return "", nil, err
			}
			clauses = append(clauses, fmt.Sprintf(`(%s LIKE ? ESCAPE '\')`, c.Column))
			args = append(args, "%"+likeEscaper.Replace(c.Substring)+"%")

		case predicate.Equals:
			if err := checkColumn(c.Column); err != nil {
				return "", nil, err
			}
			// Legacy rows may hold NULL, which reads as 0.
			clauses = append(clauses, fmt.Sprintf("(COALESCE(%s, 0) = ?)", c.Column))
			args = append(args, c.Value)

		case predicate.DateRange:
			if err := checkColumn(c.Column); err != nil {
				return "", nil, err
			}
			parts := []string{c.Column + " IS NOT NULL", c.Column + " != ''"}
			if c.Lower != nil {
				op := ">"
				if c.Lower.Inclusive {
					op = ">="
				}
				parts = append(parts, fmt.Sprintf("%s %s ?", c.Column, op))
				args = append(args, c.Lower.Value)
			}
			if c.Upper != nil {
				op := "<"
				if c.Upper.Inclusive {
					op = "<="
				}
				parts = append(parts, fmt.Sprintf("%s %s ?", c.Column, op))
				args = append(args, c.Upper.Value)
			}
			clauses = append(clauses, "("+strings.Join(parts, " AND ")+")")

		default:
			return "", nil, fmt.Errorf("index: unsupported clause %T: %w", c, apperr.ErrInvalidFilterSpec)
		}
	}

	joiner := " AND "
	if p.Combinator == models.Or {
		joiner = " OR "
	}
	return strings.Join(clauses, joiner), args, nil
}

// orderClause renders o, rejecting anything outside the column whitelist.
func orderClause(o models.Order) (string, error) {
	col := o.Column
	if col == "" {
		col = models.ColumnPath
	}
	if err := checkColumn(col); err != nil {
		return "", err
	}
	dir := o.Direction
	if dir == "" {
		dir = models.Asc
	}
	if dir != models.Asc && dir != models.Desc {
		return "", fmt.Errorf("index: direction %q: %w", dir, apperr.ErrInvalidFilterSpec)
	}
	if col == models.ColumnPath {
		return fmt.Sprintf("%s %s", col, dir), nil
	}
	return fmt.Sprintf("%s %s, %s ASC", col, dir, models.ColumnPath), nil
}

func checkColumn(col string) error {
	if !slices.Contains(models.Columns(), col) {
		return fmt.Errorf("index: column %q: %w", col, apperr.ErrInvalidFilterSpec)
	}
	return nil
}
