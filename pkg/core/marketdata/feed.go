package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/core/utils"
	"valuation_data/pkg/models"

	"github.com/phuslu/log"
)

const feedName = "feed"

// feedExtensions are tried in order for <TICKER><ext>.
var feedExtensions = []string{".json", ".hjson"}

// Feed serves fundamentals snapshots from a directory, one file per ticker.
// Files are usually hand-maintained, so they are decoded leniently:
//
//	{
//	  company: {name: "XYZ Inc", fiscal_year_end: "December 31"}
//	  unit: millions
//	  periods: [{year: "2023", values: {revenue: 2500, net_income: 210}}]
//	  market: {share_price: 42, shares_outstanding: 150000000}
//	}
type Feed struct {
	dir    string
	logger *log.Logger
}

// NewFeed returns a snapshot backend rooted at dir.
func NewFeed(dir string, logger *log.Logger) *Feed {
	return &Feed{dir: dir, logger: logging.OrNop(logger)}
}

func (f *Feed) Name() string { return feedName }

type feedFile struct {
	Company struct {
		Name          string `json:"name"`
		FiscalYearEnd string `json:"fiscal_year_end"`
	} `json:"company"`
	Unit    string `json:"unit"`
	Periods []struct {
		Year   any                `json:"year"`
		Values map[string]float64 `json:"values"`
	} `json:"periods"`
	Market map[string]float64 `json:"market"`
}

// Fetch reads the ticker's snapshot. The whole file is returned; the
// extractor applies the year window.
func (f *Feed) Fetch(ctx context.Context, ticker string, years int) (*extract.Fundamentals, error) {
	if f.dir == "" {
		return nil, extract.Unavailable(feedName, "no feed directory configured")
	}
	path, data, err := f.read(ticker)
	if err != nil {
		return nil, err
	}

	var doc feedFile
	strategy, err := utils.DecodeLenient(data, &doc)
	if err != nil {
		return nil, extract.Malformed(feedName, fmt.Errorf("%s: %w", path, err))
	}
	if strategy != utils.StrategyJSON {
		f.logger.Warn().Str("path", path).Str("strategy", string(strategy)).Msg("feed snapshot needed lenient parsing")
	}

	unit := models.ScaleActual
	if doc.Unit != "" {
		if unit, err = models.ParseScale(doc.Unit); err != nil {
			return nil, extract.Malformed(feedName, fmt.Errorf("%s: %w", path, err))
		}
	}

	periods := newPeriodSet()
	for _, p := range doc.Periods {
		year := yearString(p.Year)
		for name, v := range p.Values {
			field, ok := f.field(path, name)
			if !ok || models.IsMarket(field) {
				continue
			}
			periods.set(year, field, v)
		}
	}

	fund := &extract.Fundamentals{
		Company: models.Company{
			Ticker:        strings.ToUpper(ticker),
			Name:          doc.Company.Name,
			FiscalYearEnd: doc.Company.FiscalYearEnd,
		},
		Unit:    unit,
		Periods: periods.list(),
		Market:  make(map[models.Field]float64),
	}
	for name, v := range doc.Market {
		if field, ok := f.field(path, name); ok && models.IsMarket(field) {
			fund.Market[field] = v
		}
	}
	return fund, nil
}

func (f *Feed) read(ticker string) (string, []byte, error) {
	base := strings.ToUpper(strings.TrimSpace(ticker))
	for _, ext := range feedExtensions {
		path := filepath.Join(f.dir, base+ext)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, extract.Upstream(feedName, err)
		}
	}
	return "", nil, extract.Unavailable(feedName, "no snapshot for %s in %s", base, f.dir)
}

func (f *Feed) field(path, name string) (models.Field, bool) {
	field := models.Field(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := models.Lookup(field); !ok {
		f.logger.Debug().Str("path", path).Str("key", name).Msg("ignoring unknown feed field")
		return "", false
	}
	return field, true
}

// yearString accepts both "2023" and 2023.
func yearString(v any) string {
	switch y := v.(type) {
	case string:
		return y
	case float64:
		return fmt.Sprintf("%.0f", y)
	default:
		return fmt.Sprint(y)
	}
}
