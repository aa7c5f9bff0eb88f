package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/brandondunbar/GiftSubTracker/internal/domain"
)

// readRange covers every cell the adapter ever addresses. Sheets returns only
// populated rows, so reading a mostly-empty grid is cheap.
const readRange = "A1:Z1000"

// Sheet is a single spreadsheet tab with an explicit column schema. The first
// schema column is the upsert key. Sheet performs no business logic, only row
// addressing.
type Sheet struct {
	api           ValuesAPI
	spreadsheetID string
	schema        []string
}

func NewSheet(api ValuesAPI, spreadsheetID string, schema []string) *Sheet {
	return &Sheet{api: api, spreadsheetID: spreadsheetID, schema: schema}
}

func (s *Sheet) SpreadsheetID() string { return s.spreadsheetID }

func (s *Sheet) Schema() []string { return s.schema }

// ValidateSchema compares the sheet's header row to the declared schema.
// A header mismatch, or a completely blank sheet, is a *SchemaError: a blank
// sheet is "not provisioned", which is distinct from a provisioned sheet with
// zero data rows.
func (s *Sheet) ValidateSchema(ctx context.Context) error {
	grid, err := s.api.Get(ctx, s.spreadsheetID, readRange)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return &domain.SchemaError{Expected: s.schema, Got: nil}
	}
	if !equalColumns(grid[0], s.schema) {
		return &domain.SchemaError{Expected: s.schema, Got: grid[0]}
	}
	return nil
}

// Rows returns all data rows in sheet order, keyed by schema column name.
// Row 1 is the header; data rows start at sheet row 2.
func (s *Sheet) Rows(ctx context.Context) ([]domain.Row, error) {
	grid, err := s.api.Get(ctx, s.spreadsheetID, readRange)
	if err != nil {
		return nil, err
	}
	if len(grid) <= 1 {
		return []domain.Row{}, nil
	}

	rows := make([]domain.Row, 0, len(grid)-1)
	for i, raw := range grid[1:] {
		cells := make(map[string]string, len(s.schema))
		for j, column := range s.schema {
			if j < len(raw) {
				cells[column] = raw[j]
			} else {
				cells[column] = ""
			}
		}
		rows = append(rows, domain.Row{Number: i + 2, Cells: cells})
	}
	return rows, nil
}

// FindRow returns the first row whose column equals value, or ErrRowNotFound.
func (s *Sheet) FindRow(ctx context.Context, column, value string) (domain.Row, error) {
	if !s.hasColumn(column) {
		return domain.Row{}, &domain.SchemaError{Expected: s.schema, Got: []string{column}}
	}

	rows, err := s.Rows(ctx)
	if err != nil {
		return domain.Row{}, err
	}

	for _, row := range rows {
		if row.Cells[column] == value {
			return row, nil
		}
	}
	return domain.Row{}, domain.ErrRowNotFound
}

// Upsert finds the row whose key column matches the supplied key value and
// overwrites every cell in it, or appends a new row after the last data row.
// The cell set must match the schema exactly.
func (s *Sheet) Upsert(ctx context.Context, cells map[string]string) error {
	if err := s.checkCells(cells); err != nil {
		return err
	}

	key := s.schema[0]
	values := make([]string, len(s.schema))
	for i, column := range s.schema {
		values[i] = cells[column]
	}

	row, err := s.FindRow(ctx, key, cells[key])
	if errors.Is(err, domain.ErrRowNotFound) {
		return s.appendRow(ctx, values)
	}
	if err != nil {
		return err
	}

	target := s.rowRange(row.Number)
	return s.api.Update(ctx, s.spreadsheetID, target, [][]string{values})
}

func (s *Sheet) appendRow(ctx context.Context, values []string) error {
	rows, err := s.Rows(ctx)
	if err != nil {
		return err
	}
	// Data starts at sheet row 2, right under the header.
	target := s.rowRange(len(rows) + 2)
	return s.api.Append(ctx, s.spreadsheetID, target, [][]string{values})
}

// WriteHeader writes the schema as the header row. Used when provisioning.
func (s *Sheet) WriteHeader(ctx context.Context) error {
	return s.api.Update(ctx, s.spreadsheetID, s.rowRange(1), [][]string{s.schema})
}

func (s *Sheet) rowRange(number int) string {
	last := columnLetter(len(s.schema) - 1)
	return fmt.Sprintf("A%d:%s%d", number, last, number)
}

func (s *Sheet) hasColumn(column string) bool {
	for _, c := range s.schema {
		if c == column {
			return true
		}
	}
	return false
}

func (s *Sheet) checkCells(cells map[string]string) error {
	if len(cells) == len(s.schema) {
		ok := true
		for _, column := range s.schema {
			if _, present := cells[column]; !present {
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	}

	got := make([]string, 0, len(cells))
	for column := range cells {
		got = append(got, column)
	}
	sort.Strings(got)
	return &domain.SchemaError{Expected: s.schema, Got: got}
}

// columnLetter converts a 0-based column index to its A1 letter.
func columnLetter(index int) string {
	return string(rune('A' + index))
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
