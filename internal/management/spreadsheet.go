package management

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/metrics"
)

func exportHeaders(t DataType) []string {
	switch t {
	case Categories:
		return []string{"ID", "Name", "Created At"}
	case PopMaterials:
		return []string{"ID", "Name", "Category", "Model", "Created At"}
	default:
		return []string{"ID", "Name", "Category", "Created At"}
	}
}

func exportValues(t DataType, r Row) []interface{} {
	switch t {
	case Categories:
		return []interface{}{r.ID, r.Name, r.CreatedAt}
	case PopMaterials:
		return []interface{}{r.ID, r.Name, r.Category, r.Model, r.CreatedAt}
	default:
		return []interface{}{r.ID, r.Name, r.Category, r.CreatedAt}
	}
}

// ExportXLSX writes the rows of table as a single-sheet workbook.
func ExportXLSX(w io.Writer, table TableState) error {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	sheet := table.Label
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	headers := exportHeaders(table.Type)
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := file.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	if err := file.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return err
	}

	for i, r := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := exportValues(table.Type, r)
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return file.Write(w)
}

const maxImportRows = 5000

var importExtensions = map[string]bool{".xlsx": true, ".xlsm": true, ".xls": true}

const unreadableSpreadsheet = "The file is not a readable spreadsheet"

func fileError(format string, args ...interface{}) error {
	return &ValidationError{Field: "file", Message: fmt.Sprintf(format, args...)}
}

// ReadRows returns the rows of an import upload, header row first. Legacy
// .xls workbooks must hold a single sheet; for .xlsx the sheet that was
// active when the workbook was saved is read. Trailing blank rows are
// dropped before the row limit is checked.
func ReadRows(reader io.Reader, filename string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !importExtensions[ext] {
		return nil, fileError("Please upload an .xlsx or .xls file")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if ext == ".xls" {
		rows, err = readLegacyRows(data)
	} else {
		rows, err = readWorkbookRows(data)
	}
	if err != nil {
		return nil, err
	}

	rows = trimBlankTail(rows)
	switch {
	case len(rows) == 0:
		return nil, fileError("worksheet is empty")
	case len(rows)-1 > maxImportRows:
		return nil, fileError("Too many rows: at most %d items can be imported at once", maxImportRows)
	}
	return rows, nil
}

func readLegacyRows(data []byte) ([][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fileError(unreadableSpreadsheet)
	}
	switch n := book.NumSheets(); {
	case n == 0:
		return nil, fileError("no worksheet found")
	case n > 1:
		return nil, fileError("The workbook has %d worksheets. Import one table per file.", n)
	}
	return book.ReadAllCells(maxImportRows + 2), nil
}

func readWorkbookRows(data []byte) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileError(unreadableSpreadsheet)
	}
	defer func() { _ = book.Close() }()

	sheet := book.GetSheetName(book.GetActiveSheetIndex())
	if sheet == "" {
		sheet = book.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fileError("no worksheet found")
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fileError(unreadableSpreadsheet)
	}
	return rows, nil
}

func trimBlankTail(rows [][]string) [][]string {
	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

type ImportRow struct {
	Line    int    `json:"line"`
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type ImportReport struct {
	Type   DataType    `json:"type"`
	Added  int         `json:"added"`
	Failed int         `json:"failed"`
	Rows   []ImportRow `json:"rows"`
}

// Import adds every data row of rows to table t, one request at a time,
// and then reloads t. A failing row does not stop the ones after it.
func (s *Synchronizer) Import(ctx context.Context, t DataType, rows [][]string) (ImportReport, error) {
	if _, err := ParseDataType(string(t)); err != nil {
		return ImportReport{}, err
	}
	if len(rows) == 0 {
		return ImportReport{}, &ValidationError{Field: "file", Message: "worksheet is empty"}
	}

	headerIndex := map[string]int{}
	for i, header := range rows[0] {
		headerIndex[normalizeHeader(header)] = i
	}
	nameIdx, ok := headerIndex["name"]
	if !ok {
		return ImportReport{}, &ValidationError{Field: "file", Message: "missing required column: name"}
	}
	categoryIdx := -1
	if t != Categories {
		if categoryIdx, ok = headerIndex["category"]; !ok {
			return ImportReport{}, &ValidationError{Field: "file", Message: "missing required column: category"}
		}
	}
	modelIdx := -1
	if t == PopMaterials {
		if modelIdx, ok = headerIndex["model"]; !ok {
			return ImportReport{}, &ValidationError{Field: "file", Message: "missing required column: model"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := ImportReport{Type: t}
	for i, row := range rows[1:] {
		name := cellValue(row, nameIdx)
		if name == "" && cellValue(row, categoryIdx) == "" && cellValue(row, modelIdx) == "" {
			continue
		}
		line := ImportRow{Line: i + 2, Name: name}
		msg, err := s.importRowLocked(ctx, t, name, cellValue(row, categoryIdx), cellValue(row, modelIdx))
		if err != nil {
			line.Message = backend.UserMessage(err, err.Error())
			report.Failed++
			metrics.MutationsTotal.WithLabelValues(string(t), "import", metrics.OutcomeError).Inc()
		} else {
			line.OK = true
			line.Message = msg
			report.Added++
			metrics.MutationsTotal.WithLabelValues(string(t), "import", metrics.OutcomeOK).Inc()
		}
		report.Rows = append(report.Rows, line)
		if errors.Is(ctx.Err(), context.Canceled) {
			break
		}
	}

	s.log.WithFields(logrus.Fields{"type": t, "added": report.Added, "failed": report.Failed}).Info("import finished")

	if report.Added > 0 {
		switch t {
		case Categories:
			s.invalidateCategoriesLocked()
		case Models:
			s.invalidateModelsLocked()
		}
	}
	if _, err := s.loadLocked(ctx, t); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (s *Synchronizer) importRowLocked(ctx context.Context, t DataType, name, category, model string) (string, error) {
	form := ItemForm{Type: t, Name: name}
	if t != Categories && category != "" {
		opts, err := s.categoryOptionsLocked(ctx)
		if err != nil {
			return "", err
		}
		o, ok := findByName(opts, category)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
		form.CategoryID = fmt.Sprint(o.ID)

		if t == PopMaterials && model != "" {
			models, err := s.modelOptionsLocked(ctx, o.Name)
			if err != nil {
				return "", err
			}
			m, ok := findByName(models, model)
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
			}
			form.ModelID = fmt.Sprint(m.ID)
		}
	}

	req, err := form.Request()
	if err != nil {
		return "", err
	}
	msg, err := s.src.ManageData(ctx, req)
	if err != nil {
		return "", err
	}
	if t == Categories {
		s.invalidateCategoriesLocked()
	} else if t == Models {
		for key := range s.models {
			if strings.EqualFold(key, category) {
				delete(s.models, key)
			}
		}
	}
	return msg, nil
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
