// Package predicate turns a FilterSpec into a backend-neutral clause tree.
//
// Clauses are joined by a single combinator. The date clause is one term like
// any other, so under OR it is an alternative rather than a requirement.
package predicate

import (
	"strings"

	"github.com/starford/picshelf/internal/models"
)

// Clause is one filter term. The concrete types are Contains, Equals and
// DateRange.
type Clause interface {
	clause()
}

// Contains matches records whose Column contains Substring.
type Contains struct {
	Column    string
	Substring string
}

// Equals matches records whose integer Column equals Value.
type Equals struct {
	Column string
	Value  int
}

// Bound is one end of a DateRange.
type Bound struct {
	Value     string
	Inclusive bool
}

// DateRange matches records whose Column is set, non-empty and within the
// given bounds. A nil bound is open.
type DateRange struct {
	Column string
	Lower  *Bound
	Upper  *Bound
}

func (Contains) clause()  {}
func (Equals) clause()    {}
func (DateRange) clause() {}

// Predicate is the compiled form of a FilterSpec's filter part.
// An empty clause list matches every record.
type Predicate struct {
	Clauses    []Clause
	Combinator models.Combinator
}

// Empty reports whether p matches everything.
func (p Predicate) Empty() bool {
	return len(p.Clauses) == 0
}

// Build compiles spec into a Predicate. It does not validate; see query.Engine.
func Build(spec models.FilterSpec) Predicate {
	p := Predicate{Combinator: spec.Combinator}
	if p.Combinator != models.Or {
		p.Combinator = models.And
	}

	if s := strings.TrimSpace(spec.PathContains); s != "" {
		p.Clauses = append(p.Clauses, Contains{Column: models.ColumnPath, Substring: s})
	}
	if s := strings.TrimSpace(spec.KeywordsContains); s != "" {
		p.Clauses = append(p.Clauses, Contains{Column: models.ColumnKeywords, Substring: s})
	}

	switch spec.Used {
	case models.UsedTrue:
		p.Clauses = append(p.Clauses, Equals{Column: models.ColumnUsed, Value: 1})
	case models.UsedFalse:
		p.Clauses = append(p.Clauses, Equals{Column: models.ColumnUsed, Value: 0})
	}

	if dr, ok := dateClause(spec.Date); ok {
		p.Clauses = append(p.Clauses, dr)
	}

	return p
}

// dateClause returns the single date term for f, if any. before and after
// read only From; a To-only before/after filter yields nothing.
func dateClause(f models.DateFilter) (DateRange, bool) {
	from := strings.TrimSpace(f.From)
	to := strings.TrimSpace(f.To)
	dr := DateRange{Column: models.ColumnUsedDate}

	switch f.Mode {
	case models.DateBefore:
		if from == "" {
			return dr, false
		}
		dr.Upper = &Bound{Value: from}
	case models.DateAfter:
		if from == "" {
			return dr, false
		}
		dr.Lower = &Bound{Value: from}
	case models.DateBetween:
		if from == "" && to == "" {
			return dr, false
		}
		if from != "" {
			dr.Lower = &Bound{Value: from, Inclusive: true}
		}
		if to != "" {
			dr.Upper = &Bound{Value: to, Inclusive: true}
		}
	default:
		return dr, false
	}
	return dr, true
}
