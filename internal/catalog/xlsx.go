package catalog

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/duckmesh/duckviz/internal/dataset"
)

// DecodeXLSX reads one worksheet held in memory into a Table. The first row
// names the columns and an empty sheet selects the first one. A column whose
// cells all parse as integers becomes BIGINT, as numbers DOUBLE, and
// anything else VARCHAR. Blank cells are null.
func DecodeXLSX(name string, data []byte, sheet string) (dataset.Table, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return dataset.Table{}, fmt.Errorf("open xlsx dataset %q: %w", name, err)
	}
	defer func() { _ = book.Close() }()

	if sheet == "" {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return dataset.Table{}, fmt.Errorf("xlsx dataset %q has no sheets", name)
		}
		sheet = sheets[0]
	}
	records, err := book.GetRows(sheet)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("read sheet %q of xlsx dataset %q: %w", sheet, name, err)
	}
	if len(records) == 0 {
		return dataset.Table{}, fmt.Errorf("sheet %q of xlsx dataset %q is empty", sheet, name)
	}

	body := records[1:]
	columns := make([]dataset.Column, len(records[0]))
	for i, title := range records[0] {
		title = strings.TrimSpace(title)
		if title == "" {
			title = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = dataset.Column{Name: title, Type: inferCellType(body, i)}
	}

	rows := make([][]any, 0, len(body))
	for _, record := range body {
		if blankRecord(record) {
			continue
		}
		row := make([]any, len(columns))
		for i := range columns {
			if cell := cellAt(record, i); strings.TrimSpace(cell) != "" {
				row[i] = cell
			}
		}
		rows = append(rows, row)
	}
	return dataset.NewTable(name, columns, rows)
}

func inferCellType(records [][]string, column int) dataset.ColumnType {
	integer, number, seen := true, true, false
	for _, record := range records {
		cell := strings.TrimSpace(cellAt(record, column))
		if cell == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			integer = false
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			number = false
		}
	}
	switch {
	case !seen:
		return dataset.TypeText
	case integer:
		return dataset.TypeInteger
	case number:
		return dataset.TypeFloat
	default:
		return dataset.TypeText
	}
}

// cellAt tolerates the short records excelize returns when trailing cells
// are empty.
func cellAt(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
