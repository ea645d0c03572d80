package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/core/utils"
	"valuation_data/pkg/models"

	"github.com/phuslu/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor reads GitHub-flavoured pipe tables, the format filings
// end up in after an HTML-to-Markdown conversion.
type MarkdownExtractor struct {
	engine *TabularEngine
	md     goldmark.Markdown
	logger *log.Logger
}

// NewMarkdownExtractor returns a Markdown-table extractor.
func NewMarkdownExtractor(opts TabularOptions, logger *log.Logger) *MarkdownExtractor {
	logger = logging.OrNop(logger)
	return &MarkdownExtractor{
		engine: NewTabularEngine(opts, logger),
		md:     goldmark.New(goldmark.WithExtensions(extension.Table)),
		logger: logger,
	}
}

func (x *MarkdownExtractor) Name() string { return "markdown" }
func (x *MarkdownExtractor) Kind() Kind   { return KindMarkdown }

func (x *MarkdownExtractor) Requirements() Requirements {
	return Requirements{
		Kind:        KindMarkdown,
		Description: "Markdown document with pipe tables",
		Extensions:  []string{".md", ".markdown"},
	}
}

func (x *MarkdownExtractor) Extract(ctx context.Context, src Source) (*models.RawRecord, error) {
	source, err := os.ReadFile(src.Locator)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Unavailable(x.Name(), "document %s not found", src.Locator)
		}
		return nil, Upstream(x.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source = []byte(utils.StripCodeFence(string(source)))
	grids, docContext, title := x.parse(source)
	if len(grids) == 0 {
		return nil, Unavailable(x.Name(), "no tables in %s", src.Locator)
	}
	x.logger.Debug().Str("locator", src.Locator).Int("tables", len(grids)).Msg("parsed markdown tables")

	if src.Company.Name == "" {
		src.Company.Name = title
		if src.Company.Name == "" {
			src.Company.Name = companyFromPath(src.Locator)
		}
	}
	return x.engine.Assemble(x.Name(), src, grids, docContext)
}

// parse walks the document once: tables become grids named after the closest
// preceding heading; headings and paragraphs become context.
func (x *MarkdownExtractor) parse(source []byte) (grids []Grid, docContext []string, title string) {
	doc := x.md.Parser().Parse(text.NewReader(source))

	heading := ""
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			heading = nodeText(node, source)
			if node.Level == 1 && title == "" {
				title = heading
			}
			docContext = append(docContext, heading)
		case *ast.Paragraph:
			if t := nodeText(node, source); t != "" {
				docContext = append(docContext, t)
			}
		case *east.Table:
			g := Grid{Name: heading}
			if g.Name == "" {
				g.Name = fmt.Sprintf("table %d", len(grids)+1)
			}
			for row := node.FirstChild(); row != nil; row = row.NextSibling() {
				var cells []string
				for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
					cells = append(cells, nodeText(cell, source))
				}
				g.Cells = append(g.Cells, cells)
			}
			grids = append(grids, g)
		}
	}
	return grids, docContext, title
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return collapse(b.String())
}
