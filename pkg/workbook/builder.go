// Package workbook builds the xlsx artifacts the pipelines publish and reads
// back the version metadata embedded in them. The metadata sheet is a plain
// key/value table; everything the publisher needs to version a file travels
// inside the file itself.
package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type for xlsx content.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// KV is one row of a key/value metadata sheet.
type KV struct {
	Key   string
	Value any
}

// Table is a header-plus-rows block. Widths are column widths by position;
// a zero width keeps the sheet default.
type Table struct {
	Header     []string
	Rows       [][]any
	Widths     []float64
	WrapHeader bool
}

// Builder assembles a workbook sheet by sheet. The first added sheet renames
// the default one so no empty Sheet1 is left behind.
type Builder struct {
	f     *excelize.File
	named bool
}

// NewBuilder creates an empty workbook builder.
func NewBuilder() *Builder {
	return &Builder{f: excelize.NewFile()}
}

func (b *Builder) addSheet(name string) error {
	if !b.named {
		b.named = true
		return b.f.SetSheetName("Sheet1", name)
	}
	_, err := b.f.NewSheet(name)
	return err
}

// AddKVSheet creates a sheet holding a key/value table with the given header
// labels, starting at A1.
func (b *Builder) AddKVSheet(name, keyLabel, valueLabel string, rows []KV, keyWidth, valueWidth float64) error {
	if err := b.addSheet(name); err != nil {
		return fmt.Errorf("add sheet %q: %w", name, err)
	}
	if err := b.writeKV(name, 1, keyLabel, valueLabel, rows); err != nil {
		return err
	}
	if keyWidth > 0 {
		if err := b.f.SetColWidth(name, "A", "A", keyWidth); err != nil {
			return err
		}
	}
	if valueWidth > 0 {
		if err := b.f.SetColWidth(name, "B", "B", valueWidth); err != nil {
			return err
		}
	}
	return nil
}

// AddTableSheet creates a sheet holding a single table starting at A1.
func (b *Builder) AddTableSheet(name string, tbl Table) error {
	if err := b.addSheet(name); err != nil {
		return fmt.Errorf("add sheet %q: %w", name, err)
	}
	return b.AppendTable(name, 1, tbl)
}

// AppendTable writes a table block onto an existing sheet starting at the
// given 1-based row. Used for the secondary variable-description blocks the
// quarterly pipelines place below their metadata rows.
func (b *Builder) AppendTable(sheet string, startRow int, tbl Table) error {
	for c, h := range tbl.Header {
		cell, err := excelize.CoordinatesToCellName(c+1, startRow)
		if err != nil {
			return err
		}
		if err := b.f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write header on %q: %w", sheet, err)
		}
	}
	for rIdx, row := range tbl.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, startRow+1+rIdx)
			if err != nil {
				return err
			}
			if v == nil {
				continue
			}
			if err := b.f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d on %q: %w", rIdx, sheet, err)
			}
		}
	}

	for c, w := range tbl.Widths {
		if w <= 0 {
			continue
		}
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := b.f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}

	if tbl.WrapHeader && len(tbl.Header) > 0 {
		style, err := b.f.NewStyle(&excelize.Style{
			Alignment: &excelize.Alignment{WrapText: true},
		})
		if err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(tbl.Header), startRow)
		if err != nil {
			return err
		}
		first, err := excelize.CoordinatesToCellName(1, startRow)
		if err != nil {
			return err
		}
		if err := b.f.SetCellStyle(sheet, first, last, style); err != nil {
			return err
		}
	}
	return nil
}

// SetColWidths applies column widths by position to an existing sheet,
// overriding any widths set when its tables were written.
func (b *Builder) SetColWidths(sheet string, widths []float64) error {
	for c, w := range widths {
		if w <= 0 {
			continue
		}
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := b.f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeKV(sheet string, startRow int, keyLabel, valueLabel string, rows []KV) error {
	tbl := Table{Header: []string{keyLabel, valueLabel}, Rows: make([][]any, 0, len(rows))}
	for _, kv := range rows {
		tbl.Rows = append(tbl.Rows, []any{kv.Key, kv.Value})
	}
	return b.AppendTable(sheet, startRow, tbl)
}

// Bytes serializes the workbook.
func (b *Builder) Bytes() ([]byte, error) {
	buf, err := b.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
