package models

// UsedFilter is the tri-state used filter.
type UsedFilter string

const (
	UsedAny   UsedFilter = "any"
	UsedTrue  UsedFilter = "true"
	UsedFalse UsedFilter = "false"
)

// DateMode selects how the usedDate bounds apply.
type DateMode string

const (
	DateNone    DateMode = "none"
	DateBefore  DateMode = "before"
	DateAfter   DateMode = "after"
	DateBetween DateMode = "between"
)

// Combinator joins the clauses of a query.
type Combinator string

const (
	And Combinator = "AND"
	Or  Combinator = "OR"
)

// Direction is the sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// DateFilter restricts usedDate. From and To are YYYY.MM.DD or empty.
type DateFilter struct {
	Mode DateMode `json:"mode" yaml:"mode"`
	From string   `json:"from,omitempty" yaml:"from"`
	To   string   `json:"to,omitempty" yaml:"to"`
}

// FilterSpec is a user-level query description.
type FilterSpec struct {
	PathContains     string     `json:"path_contains,omitempty"`
	KeywordsContains string     `json:"keywords_contains,omitempty"`
	Used             UsedFilter `json:"used,omitempty"`
	Date             DateFilter `json:"date"`
	Combinator       Combinator `json:"combinator,omitempty"`
	Limit            int        `json:"limit"`
	OrderBy          string     `json:"order_by,omitempty"`
	Direction        Direction  `json:"direction,omitempty"`
}

// Order is a validated sort instruction.
type Order struct {
	Column    string
	Direction Direction
}
