package export

import "fmt"

// Column describes one exported field. Width is a relative weight used by the PDF layout.
type Column struct {
	Key   string
	Title string
	Width float64
}

// Table is the tabular content of an export. Each row holds values keyed by Column.Key.
type Table struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

// Validate checks that the table can be rendered.
func (t Table) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export table requires at least one column")
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, column := range t.Columns {
		if column.Key == "" {
			return fmt.Errorf("export column without key")
		}
		if _, dup := seen[column.Key]; dup {
			return fmt.Errorf("duplicate export column %q", column.Key)
		}
		seen[column.Key] = struct{}{}
	}
	return nil
}

func (t Table) record(row map[string]string) []string {
	record := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		record[i] = row[column.Key]
	}
	return record
}

func (c Column) heading() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Key
}
