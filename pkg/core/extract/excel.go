package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/models"

	"github.com/phuslu/log"
	"github.com/xuri/excelize/v2"
)

// ExcelExtractor reads workbooks of arbitrary layout.
type ExcelExtractor struct {
	engine *TabularEngine
	logger *log.Logger
}

// NewExcelExtractor returns an Excel-source extractor.
func NewExcelExtractor(opts TabularOptions, logger *log.Logger) *ExcelExtractor {
	logger = logging.OrNop(logger)
	return &ExcelExtractor{engine: NewTabularEngine(opts, logger), logger: logger}
}

func (x *ExcelExtractor) Name() string { return "excel" }
func (x *ExcelExtractor) Kind() Kind   { return KindExcel }

func (x *ExcelExtractor) Requirements() Requirements {
	return Requirements{
		Kind:        KindExcel,
		Description: "Office Open XML workbook; any sheet layout with fiscal years as a header row or column",
		Extensions:  []string{".xlsx", ".xlsm", ".xltx", ".xltm"},
	}
}

// Extract opens the workbook, flattens every sheet into a grid and hands the
// grids to the tabular engine.
func (x *ExcelExtractor) Extract(ctx context.Context, src Source) (*models.RawRecord, error) {
	if _, err := os.Stat(src.Locator); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Unavailable(x.Name(), "workbook %s not found", src.Locator)
		}
		return nil, Upstream(x.Name(), err)
	}

	f, err := excelize.OpenFile(src.Locator)
	if err != nil {
		return nil, Malformed(x.Name(), fmt.Errorf("open %s: %w", src.Locator, err))
	}
	defer f.Close()

	var grids []Grid
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		grid, err := sheetGrid(f, sheet)
		if err != nil {
			x.logger.Warn().Str("sheet", sheet).Err(err).Msg("skipping unreadable sheet")
			continue
		}
		grids = append(grids, grid)
	}
	if len(grids) == 0 {
		return nil, Malformed(x.Name(), fmt.Errorf("%s has no readable sheets", src.Locator))
	}

	if src.Company.Name == "" {
		src.Company.Name = companyFromPath(src.Locator)
	}
	return x.engine.Assemble(x.Name(), src, grids, nil)
}

// sheetGrid reads a sheet and copies each merged range's anchor value across
// the whole range so headers spanning several columns still line up.
func sheetGrid(f *excelize.File, sheet string) (Grid, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Grid{}, err
	}
	g := Grid{Name: sheet, Cells: rows}

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return g, nil
	}
	for _, mc := range merges {
		c1, r1, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		c2, r2, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		value := mc.GetCellValue()
		for r := r1; r <= r2; r++ {
			for c := c1; c <= c2; c++ {
				g.set(r-1, c-1, value)
			}
		}
	}
	return g, nil
}

func (g *Grid) set(r, c int, value string) {
	for len(g.Cells) <= r {
		g.Cells = append(g.Cells, nil)
	}
	for len(g.Cells[r]) <= c {
		g.Cells[r] = append(g.Cells[r], "")
	}
	g.Cells[r][c] = value
}

func companyFromPath(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}
