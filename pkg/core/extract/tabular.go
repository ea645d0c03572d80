package extract

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/models"

	"github.com/phuslu/log"
)

// =============================================================================
// GRID MODEL
// =============================================================================

// Grid is one rectangular block of cells: a worksheet, an HTML table or a
// Markdown table. Merged ranges are already filled with their anchor value.
type Grid struct {
	Name    string
	Cells   [][]string
	Context []string // headings, captions and notes found next to the grid
}

func (g Grid) cell(r, c int) string {
	if r < 0 || r >= len(g.Cells) || c < 0 || c >= len(g.Cells[r]) {
		return ""
	}
	return strings.TrimSpace(g.Cells[r][c])
}

func (g Grid) width() int {
	w := 0
	for _, row := range g.Cells {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// TabularOptions tune grid location and label matching.
type TabularOptions struct {
	SimilarityFloor float64 // minimum label similarity (default 0.80)
	AmbiguityMargin float64 // candidates this close to the best score count as a tie
	ScanRows        int     // year-axis search window
	ScanCols        int
}

// DefaultTabularOptions returns the standard window and thresholds.
func DefaultTabularOptions() TabularOptions {
	return TabularOptions{
		SimilarityFloor: DefaultSimilarityFloor,
		AmbiguityMargin: 0.02,
		ScanRows:        100,
		ScanCols:        50,
	}
}

func (o TabularOptions) withDefaults() TabularOptions {
	d := DefaultTabularOptions()
	if o.SimilarityFloor <= 0 {
		o.SimilarityFloor = d.SimilarityFloor
	}
	if o.AmbiguityMargin < 0 {
		o.AmbiguityMargin = 0
	}
	if o.ScanRows <= 0 {
		o.ScanRows = d.ScanRows
	}
	if o.ScanCols <= 0 {
		o.ScanCols = d.ScanCols
	}
	return o
}

// =============================================================================
// YEAR AXIS
// =============================================================================

// axis says where the fiscal years run inside a grid.
// With byColumn the years sit in header row `line` at columns positions[i];
// otherwise they sit in column `line` at rows positions[i].
type axis struct {
	byColumn  bool
	line      int
	years     []int
	positions []int
}

// at reads a cell relative to the axis: i runs along the statement lines,
// j across the year positions.
func (a axis) at(g Grid, i, j int) string {
	if a.byColumn {
		return g.cell(i, j)
	}
	return g.cell(j, i)
}

func (a axis) lines(g Grid) int {
	if a.byColumn {
		return len(g.Cells)
	}
	return g.width()
}

func (a axis) firstPosition() int {
	lo := math.MaxInt
	for _, p := range a.positions {
		if p < lo {
			lo = p
		}
	}
	return lo
}

// detectAxis scans a bounded window for the row or column that carries the
// most distinct year tokens. Rows win ties, then the topmost/leftmost line.
func detectAxis(g Grid, rows, cols int) (axis, bool) {
	var best axis
	found := false

	consider := func(byColumn bool, line int, read func(k int) string, n int) {
		var ax axis
		ax.byColumn, ax.line = byColumn, line
		seen := make(map[int]bool)
		for k := 0; k < n; k++ {
			y := ParseYear(read(k))
			if y == 0 || seen[y] {
				continue
			}
			seen[y] = true
			ax.years = append(ax.years, y)
			ax.positions = append(ax.positions, k)
		}
		if len(ax.years) == 0 {
			return
		}
		if !found || len(ax.years) > len(best.years) {
			best, found = ax, true
		}
	}

	maxRows := min(rows, len(g.Cells))
	maxCols := min(cols, g.width())
	for r := 0; r < maxRows; r++ {
		consider(true, r, func(c int) string { return g.cell(r, c) }, maxCols)
	}
	for c := 0; c < maxCols; c++ {
		consider(false, c, func(r int) string { return g.cell(r, c) }, maxRows)
	}
	return best, found
}

// =============================================================================
// ROW CANDIDATES
// =============================================================================

type candidate struct {
	field  models.Field
	score  float64
	line   int
	label  string
	values map[int]float64 // year -> value
}

// scanGrid matches every statement line below/right of the year axis to a
// canonical field. Lines without a single numeric value are skipped.
func scanGrid(g Grid, ax axis, matcher *LabelMatcher) (cands []candidate, labels map[[2]int]bool) {
	labels = make(map[[2]int]bool)
	first := ax.firstPosition()
	for i := ax.line + 1; i < ax.lines(g); i++ {
		label, labelPos := "", -1
		for j := 0; j < first; j++ {
			if v := ax.at(g, i, j); isTextCell(v) {
				label, labelPos = v, j
				break
			}
		}
		if label == "" {
			continue
		}

		values := make(map[int]float64)
		for k, pos := range ax.positions {
			if v := ParseNumber(ax.at(g, i, pos)); v != nil {
				values[ax.years[k]] = *v
			}
		}
		if len(values) == 0 {
			continue
		}

		field, score, ok := matcher.Match(label)
		if !ok {
			continue
		}
		labels[[2]int{i, labelPos}] = true
		cands = append(cands, candidate{field: field, score: score, line: i, label: label, values: values})
	}
	return cands, labels
}

// gridScore ranks grids by how much recognizable financial data they hold.
func gridScore(name string, cands []candidate) float64 {
	fields := make(map[models.Field]bool)
	for _, c := range cands {
		fields[c.field] = true
	}
	score := float64(len(fields))
	lower := strings.ToLower(name)
	for _, kw := range []string{"income", "p&l", "profit", "balance", "cash flow", "financial", "statement", "summary"} {
		if strings.Contains(lower, kw) {
			score += 0.5
		}
	}
	return score
}

// =============================================================================
// ASSEMBLY
// =============================================================================

var fiscalYearEnd = regexp.MustCompile(`(?i)fiscal\s+year\s+(?:end|ends|ended|ending)\s*:?\s*((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?(?:\s+\d{1,2})?)`)

// TabularEngine turns grids from any table-shaped source into a RawRecord.
type TabularEngine struct {
	opts    TabularOptions
	matcher *LabelMatcher
	logger  *log.Logger
	now     func() time.Time
}

// NewTabularEngine returns an engine with the given options.
func NewTabularEngine(opts TabularOptions, logger *log.Logger) *TabularEngine {
	opts = opts.withDefaults()
	return &TabularEngine{
		opts:    opts,
		matcher: NewLabelMatcher(opts.SimilarityFloor),
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

type scannedGrid struct {
	grid   Grid
	axis   axis
	cands  []candidate
	labels map[[2]int]bool
	score  float64
}

// Assemble locates the most probable data grid, reads it, and fills fields it
// lacks from lower-ranked grids. docContext carries text found outside grids.
func (e *TabularEngine) Assemble(source string, src Source, grids []Grid, docContext []string) (*models.RawRecord, error) {
	var scanned []scannedGrid
	for _, g := range grids {
		ax, ok := detectAxis(g, e.opts.ScanRows, e.opts.ScanCols)
		if !ok {
			continue
		}
		cands, labels := scanGrid(g, ax, e.matcher)
		if len(cands) == 0 {
			continue
		}
		scanned = append(scanned, scannedGrid{grid: g, axis: ax, cands: cands, labels: labels, score: gridScore(g.Name, cands)})
	}
	if len(scanned) == 0 {
		return nil, Unavailable(source, "no grid with fiscal years and recognizable line items in %s", src.Locator)
	}
	sort.SliceStable(scanned, func(i, j int) bool { return scanned[i].score > scanned[j].score })

	primary := scanned[0]
	e.logger.Debug().Str("source", source).Str("grid", primary.grid.Name).
		Int("years", len(primary.axis.years)).Float64("score", primary.score).Msg("selected data grid")

	years := append([]int(nil), primary.axis.years...)
	sort.Ints(years)
	if src.Years > 0 && len(years) > src.Years {
		years = years[len(years)-src.Years:]
	}
	labels := make([]string, len(years))
	index := make(map[int]int, len(years))
	for i, y := range years {
		labels[i] = strconv.Itoa(y)
		index[y] = i
	}

	rec := models.NewRawRecord(source, labels)
	rec.Locator = src.Locator
	rec.Company = src.Company
	rec.ExtractedAt = e.now()

	for _, sg := range scanned {
		for _, field := range orderedFields(sg.cands) {
			if rec.Presence[field] {
				continue
			}
			pick, tied := e.choose(sg.cands, field)
			series := models.NewSeries(len(years))
			for y, v := range pick.values {
				if i, ok := index[y]; ok {
					series[i] = models.Float(v)
				}
			}
			if !series.HasAny() {
				continue
			}
			if tied {
				rec.Warn("ambiguous label match for %s in %q: chose %q (line %d)", field, sg.grid.Name, pick.label, pick.line+1)
			}
			if models.IsMarket(field) {
				if v, ok := series.Last(); ok {
					rec.SetMarket(field, v)
				}
				continue
			}
			rec.Set(field, series)
		}
	}

	rec.Context = e.context(scanned, docContext)
	if rec.Company.FiscalYearEnd == "" {
		if m := fiscalYearEnd.FindStringSubmatch(rec.Context); m != nil {
			rec.Company.FiscalYearEnd = strings.TrimSpace(m[1])
		}
	}
	rec.Completeness = Completeness(rec.Presence, src.Analyses)

	e.logger.Info().Str("source", source).Str("locator", src.Locator).Str("years", describeYears(rec.Years)).
		Int("fields", len(rec.Values)+len(rec.Market)).
		Float64("completeness", rec.Completeness).Int("warnings", len(rec.Warnings)).Msg("tabular extraction complete")
	return rec, nil
}

// choose picks the candidate for field. Candidates within the ambiguity
// margin of the best score are a tie; the topmost line wins a tie.
func (e *TabularEngine) choose(cands []candidate, field models.Field) (candidate, bool) {
	var pool []candidate
	best := 0.0
	for _, c := range cands {
		if c.field != field {
			continue
		}
		pool = append(pool, c)
		if c.score > best {
			best = c.score
		}
	}
	var tied []candidate
	for _, c := range pool {
		if best-c.score <= e.opts.AmbiguityMargin {
			tied = append(tied, c)
		}
	}
	sort.SliceStable(tied, func(i, j int) bool { return tied[i].line < tied[j].line })
	return tied[0], len(tied) > 1
}

func orderedFields(cands []candidate) []models.Field {
	seen := make(map[models.Field]bool)
	var out []models.Field
	for _, c := range cands {
		if !seen[c.field] {
			seen[c.field] = true
			out = append(out, c.field)
		}
	}
	return out
}

// context collects grid names, nearby text and every non-label text cell in
// the scan window. Unit statements ("in thousands") usually live here.
func (e *TabularEngine) context(scanned []scannedGrid, docContext []string) string {
	var parts []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		parts = append(parts, s)
	}

	for _, s := range docContext {
		add(s)
	}
	for _, sg := range scanned {
		add(sg.grid.Name)
		for _, s := range sg.grid.Context {
			add(s)
		}
		g := sg.grid
		for r := 0; r < min(e.opts.ScanRows, len(g.Cells)); r++ {
			for c := 0; c < min(e.opts.ScanCols, len(g.Cells[r])); c++ {
				line, pos := r, c
				if !sg.axis.byColumn {
					line, pos = c, r
				}
				if sg.labels[[2]int{line, pos}] {
					continue
				}
				if v := g.cell(r, c); isTextCell(v) && ParseYear(v) == 0 {
					add(v)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

// describeYears renders a year list for log lines and messages.
func describeYears(years []string) string {
	if len(years) == 0 {
		return "no years"
	}
	return fmt.Sprintf("%s-%s", years[0], years[len(years)-1])
}
