package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/phuslu/log"
)

// HTMLExtractor reads financial tables out of an HTML document (saved filings,
// exported reports).
type HTMLExtractor struct {
	engine *TabularEngine
	logger *log.Logger
}

// NewHTMLExtractor returns an HTML-table extractor.
func NewHTMLExtractor(opts TabularOptions, logger *log.Logger) *HTMLExtractor {
	logger = logging.OrNop(logger)
	return &HTMLExtractor{engine: NewTabularEngine(opts, logger), logger: logger}
}

func (x *HTMLExtractor) Name() string { return "html" }
func (x *HTMLExtractor) Kind() Kind   { return KindHTML }

func (x *HTMLExtractor) Requirements() Requirements {
	return Requirements{
		Kind:        KindHTML,
		Description: "HTML document containing one or more <table> statements",
		Extensions:  []string{".html", ".htm"},
	}
}

func (x *HTMLExtractor) Extract(ctx context.Context, src Source) (*models.RawRecord, error) {
	file, err := os.Open(src.Locator)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Unavailable(x.Name(), "document %s not found", src.Locator)
		}
		return nil, Upstream(x.Name(), err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, Malformed(x.Name(), fmt.Errorf("parse %s: %w", src.Locator, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var grids []Grid
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		g := tableGrid(table)
		if g.Name == "" {
			g.Name = fmt.Sprintf("table %d", i+1)
		}
		grids = append(grids, g)
	})
	x.logger.Debug().Str("locator", src.Locator).Int("tables", len(grids)).Msg("parsed html tables")

	var docContext []string
	doc.Find("title, h1, h2, h3, h4, h5, h6, p").Each(func(_ int, s *goquery.Selection) {
		if s.Closest("table").Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" && len(text) < 300 {
			docContext = append(docContext, text)
		}
	})

	if src.Company.Name == "" {
		src.Company.Name = collapse(doc.Find("title").First().Text())
		if src.Company.Name == "" {
			src.Company.Name = companyFromPath(src.Locator)
		}
	}
	return x.engine.Assemble(x.Name(), src, grids, docContext)
}

// tableGrid flattens a <table>, expanding colspan and rowspan so every
// covered position holds the spanning cell's text.
func tableGrid(table *goquery.Selection) Grid {
	g := Grid{Name: tableTitle(table)}
	if caption := collapse(table.Find("caption").First().Text()); caption != "" {
		g.Context = append(g.Context, caption)
	}

	occupied := make(map[[2]int]bool)
	table.Find("tr").Each(func(r int, row *goquery.Selection) {
		c := 0
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			for occupied[[2]int{r, c}] {
				c++
			}
			text := collapse(cell.Text())
			colspan := spanAttr(cell, "colspan")
			rowspan := spanAttr(cell, "rowspan")
			for dr := 0; dr < rowspan; dr++ {
				for dc := 0; dc < colspan; dc++ {
					occupied[[2]int{r + dr, c + dc}] = true
					g.set(r+dr, c+dc, text)
				}
			}
			c += colspan
		})
	})
	return g
}

// tableTitle looks for a statement heading right before the table, or a
// single-cell first row.
func tableTitle(table *goquery.Selection) string {
	if caption := collapse(table.Find("caption").First().Text()); caption != "" {
		return caption
	}
	if prev := table.Prev(); prev.Length() > 0 {
		text := collapse(prev.Text())
		lower := strings.ToLower(text)
		for _, kw := range []string{"balance", "statement", "income", "cash flow", "operations", "financial"} {
			if strings.Contains(lower, kw) && len(text) < 200 {
				return text
			}
		}
	}
	first := table.Find("tr").First().Find("td, th")
	if first.Length() == 1 {
		return collapse(first.Text())
	}
	return ""
}

func spanAttr(cell *goquery.Selection, name string) int {
	raw, ok := cell.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	if n > 50 {
		return 50
	}
	return n
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(strings.ReplaceAll(s, " ", " "), " "))
}
