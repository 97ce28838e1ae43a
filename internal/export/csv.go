// Package export serialises catalog records.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/starford/picshelf/internal/models"
)

// Header is the column row written before the records.
var Header = []string{"file_path", "ai_keywords", "used_date", "used"}

// WriteCSV writes every record as one CSV row. Unset values become empty
// cells and used is written as 0 or 1.
func WriteCSV(w io.Writer, records []models.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	for _, r := range records {
		used := "0"
		if r.Used {
			used = "1"
		}
		if err := cw.Write([]string{r.Path, deref(r.Keywords), deref(r.UsedDate), used}); err != nil {
			return fmt.Errorf("export: %s: %w", r.Path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
