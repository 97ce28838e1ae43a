// Package models defines the domain types for picshelf.
package models

import "time"

// DateLayout is the on-disk format of usedDate values (YYYY.MM.DD).
const DateLayout = "2006.01.02"

// Record is one catalogued image file.
type Record struct {
	Path     string  `json:"path"`
	Keywords *string `json:"keywords"`
	UsedDate *string `json:"used_date"`
	Used     bool    `json:"used"`
}

// Field names an updatable record column.
type Field string

// Updatable fields. The path is identity and never updatable.
const (
	FieldKeywords Field = "ai_keywords"
	FieldUsedDate Field = "used_date"
	FieldUsed     Field = "used"
)

// Column names usable for ordering.
const (
	ColumnPath     = "file_path"
	ColumnKeywords = string(FieldKeywords)
	ColumnUsedDate = string(FieldUsedDate)
	ColumnUsed     = string(FieldUsed)
)

// Fields lists every updatable field.
func Fields() []Field {
	return []Field{FieldKeywords, FieldUsedDate, FieldUsed}
}

// Valid reports whether f is a known updatable field.
func (f Field) Valid() bool {
	switch f {
	case FieldKeywords, FieldUsedDate, FieldUsed:
		return true
	}
	return false
}

// Columns lists the columns a query may order by.
func Columns() []string {
	return []string{ColumnPath, ColumnKeywords, ColumnUsedDate, ColumnUsed}
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidDate reports whether s parses as DateLayout.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
