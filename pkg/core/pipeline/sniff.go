package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"valuation_data/pkg/core/extract"
)

// ErrUnsupportedSource is returned when a source is neither a known file type
// nor something that looks like a ticker.
var ErrUnsupportedSource = errors.New("unsupported source")

var extensionKinds = map[string]extract.Kind{
	".xlsx":     extract.KindExcel,
	".xlsm":     extract.KindExcel,
	".html":     extract.KindHTML,
	".htm":      extract.KindHTML,
	".md":       extract.KindMarkdown,
	".markdown": extract.KindMarkdown,
}

// tickerPattern accepts AAPL, BRK.B, RDS-A, 7203.T, 0700.HK.
var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,6}([.\-][A-Za-z0-9]{1,2})?$`)

// Sniff decides which extractor family handles source. File extensions win
// over the ticker pattern.
func Sniff(source string) (extract.Kind, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("%w: empty source", ErrUnsupportedSource)
	}
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(source))]; ok {
		return kind, nil
	}
	if !strings.ContainsAny(source, `/\`) && tickerPattern.MatchString(source) {
		return extract.KindAPI, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, source)
}

// identity is the part of the cache key that names the source's content.
// Files hash their bytes so an edited workbook never hits a stale entry; an
// unreadable file falls back to its path and lets the extractor report why.
func identity(kind extract.Kind, locator string) string {
	if kind == extract.KindAPI {
		return "ticker:" + strings.ToUpper(strings.TrimSpace(locator))
	}
	sum, err := fileDigest(locator)
	if err != nil {
		abs, absErr := filepath.Abs(locator)
		if absErr != nil {
			abs = locator
		}
		return "path:" + abs
	}
	return "sha256:" + sum
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
