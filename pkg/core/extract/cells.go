package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// CELL PARSING
// =============================================================================

var (
	numberPattern = regexp.MustCompile(`^\d*\.?\d+(?:[eE][+-]?\d+)?$`)
	yearCell      = regexp.MustCompile(`(?i)^(?:fy|cy)?\s*'?((?:19|20)\d{2})\s*(?:a|e|\(a\)|\(e\)|actual|estimate|forecast)?$`)
	yearToken     = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	yearHeaderHit = regexp.MustCompile(`(?i)\b(year|fy|fiscal|ended|ending|period)\b`)
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	nonWord       = regexp.MustCompile(`[^a-z0-9 ]+`)
	spaces        = regexp.MustCompile(`\s+`)
)

// IsBlankMarker reports the placeholders statements use for "no value".
func IsBlankMarker(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "-", "—", "–", "--", "n/a", "na", "nm", "n.m.", "none":
		return true
	}
	return false
}

// ParseNumber parses a statement cell.
// "(1,234)" and "-1,234" are negative; "$" and "," are ignored; blank markers,
// percentages and free text return nil.
func ParseNumber(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if IsBlankMarker(s) || strings.Contains(s, "%") {
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "", " ", "", "€", "", "£", "").Replace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "−") {
		negative = !negative
		s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "−")
	}

	if !numberPattern.MatchString(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if negative {
		v = -v
	}
	return &v
}

// ParseYear recognizes a fiscal-year header cell: "2021", "FY2021", "FY 2021", "2022E",
// or a short date phrase such as "Year ended December 31, 2023".
// Returns 0 when the cell is not a year header.
func ParseYear(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	if m := yearCell.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	if len(s) > 60 || !yearHeaderHit.MatchString(s) {
		return 0
	}
	matches := yearToken.FindAllStringSubmatch(s, -1)
	if len(matches) != 1 {
		return 0
	}
	y, _ := strconv.Atoi(matches[0][1])
	return y
}

// NormalizeLabel lower-cases a row label and strips punctuation, footnote
// markers and parenthesized qualifiers so it can be compared with aliases.
func NormalizeLabel(label string) string {
	s := strings.ToLower(label)
	s = parenthetical.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonWord.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " net")
	for _, prefix := range []string{"less ", "add ", "plus "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

// isTextCell reports a cell that carries words rather than a number.
func isTextCell(raw string) bool {
	s := strings.TrimSpace(raw)
	return s != "" && !IsBlankMarker(s) && ParseNumber(s) == nil && strings.IndexFunc(s, isLetter) >= 0
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
