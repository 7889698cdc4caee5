package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

const (
	SheetRecords = "Records"
	SheetItems   = "Items"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// columns collects the union of identity fields, header attributes, categories and
// item attributes across records. Identity fields keep first-seen order; the rest
// are sorted.
type columns struct {
	identity   []string
	header     []string
	categories []string
	itemAttrs  []string
}

func collectColumns(recs []*types.StoredRecord) columns {
	var c columns
	seenID := map[string]bool{}
	header := map[string]bool{}
	cats := map[string]bool{}
	attrs := map[string]bool{}
	for _, r := range recs {
		for _, f := range r.Identity.Fields {
			if !seenID[f] {
				seenID[f] = true
				c.identity = append(c.identity, f)
			}
		}
		for k := range r.Header {
			header[k] = true
		}
		for _, cat := range r.Categories {
			cats[cat.Category] = true
		}
		for _, it := range r.Items {
			for k := range it.Attributes {
				attrs[k] = true
			}
		}
	}
	c.header = sortedKeys(header)
	c.categories = sortedKeys(cats)
	c.itemAttrs = sortedKeys(attrs)
	return c
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildWorkbook renders records into a workbook with a Records sheet (one row per
// identity, one column per category count) and an Items sheet (one row per item).
func BuildWorkbook(recs []*types.StoredRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetRecords); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetItems); err != nil {
		_ = f.Close()
		return nil, err
	}
	cols := collectColumns(recs)

	head := []any{"source_type", "identity_key"}
	for _, c := range cols.identity {
		head = append(head, c)
	}
	for _, c := range cols.header {
		head = append(head, c)
	}
	head = append(head, "item_total")
	for _, c := range cols.categories {
		head = append(head, "category:"+c)
	}
	head = append(head, "loaded_at")
	if err := setRow(f, SheetRecords, 1, head); err != nil {
		_ = f.Close()
		return nil, err
	}

	itemHead := []any{"identity_key", "item", "count"}
	for _, c := range cols.itemAttrs {
		itemHead = append(itemHead, c)
	}
	if err := setRow(f, SheetItems, 1, itemHead); err != nil {
		_ = f.Close()
		return nil, err
	}

	itemRow := 2
	for i, r := range recs {
		idVals := r.Identity.Map()
		row := []any{string(r.SourceType), r.Key}
		for _, c := range cols.identity {
			row = append(row, idVals[c])
		}
		for _, c := range cols.header {
			row = append(row, cellValue(r.Header[c]))
		}
		row = append(row, r.ItemTotal())
		counts := make(map[string]int64, len(r.Categories))
		for _, cat := range r.Categories {
			counts[cat.Category] += cat.Count
		}
		for _, c := range cols.categories {
			row = append(row, counts[c])
		}
		row = append(row, r.LoadedAt.UTC().Format(time.RFC3339))
		if err := setRow(f, SheetRecords, i+2, row); err != nil {
			_ = f.Close()
			return nil, err
		}

		for _, it := range r.Items {
			irow := []any{r.Key, it.Name, it.Count}
			for _, c := range cols.itemAttrs {
				irow = append(irow, cellValue(it.Attributes[c]))
			}
			if err := setRow(f, SheetItems, itemRow, irow); err != nil {
				_ = f.Close()
				return nil, err
			}
			itemRow++
		}
	}
	return f, nil
}

// Write renders recs and streams the workbook to w.
func Write(w io.Writer, recs []*types.StoredRecord) error {
	f, err := BuildWorkbook(recs)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
