package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/LeventeLantos/schedule-dispatch/internal/model"
)

// WriteCSV renders entries as quote-escaped delimited text in the audit
// export column order.
func WriteCSV(w io.Writer, entries []model.LogEntry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"time", "to", "filename", "message", "status"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.Time.Format("2006-01-02 15:04:05"),
			e.To,
			e.Filename,
			e.Message,
			string(e.Status),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
