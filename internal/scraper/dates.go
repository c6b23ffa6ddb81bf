package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayout is the normalized date format stored on listings.
const dateLayout = "2006-01-02"

var (
	numericDatePattern = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{4})`)

	dutchMonths = map[string]time.Month{
		"januari":   time.January,
		"februari":  time.February,
		"maart":     time.March,
		"april":     time.April,
		"mei":       time.May,
		"juni":      time.June,
		"juli":      time.July,
		"augustus":  time.August,
		"september": time.September,
		"oktober":   time.October,
		"november":  time.November,
		"december":  time.December,
	}

	dutchMonthPattern = regexp.MustCompile(`(?i)(\d{1,2})\s+(januari|februari|maart|april|mei|juni|juli|augustus|september|oktober|november|december)\s+(\d{4})`)
)

// NormalizeISODate parses an ISO-8601 timestamp and returns a YYYY-MM-DD
// string. The 1970 epoch sentinel some portals emit for "no date" is treated
// as absent.
func NormalizeISODate(raw string) string {
	if raw == "" || strings.Contains(raw, "1970-01-01") {
		return ""
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.000Z",
		time.RFC3339Nano,
		time.RFC3339,
		dateLayout,
	} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format(dateLayout)
		}
	}
	return ""
}

// ParseAvailability extracts an availability date from either an explicit
// timestamp or a Dutch free-text description ("per direct", "1 maart 2025",
// "01-03-2025").
func ParseAvailability(dateStr, availableText string, now time.Time) string {
	if normalized := NormalizeISODate(dateStr); normalized != "" {
		return normalized
	}
	if availableText == "" {
		return ""
	}
	lower := strings.ToLower(availableText)
	if strings.Contains(lower, "direct") {
		return now.Format(dateLayout)
	}
	if m := numericDatePattern.FindStringSubmatch(availableText); m != nil {
		if ts, ok := buildDate(m[3], m[2], m[1]); ok {
			return ts.Format(dateLayout)
		}
	}
	if m := dutchMonthPattern.FindStringSubmatch(availableText); m != nil {
		month := dutchMonths[strings.ToLower(m[2])]
		day, dayErr := strconv.Atoi(m[1])
		year, yearErr := strconv.Atoi(m[3])
		if dayErr == nil && yearErr == nil && validDay(year, month, day) {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format(dateLayout)
		}
	}
	return ""
}

func buildDate(yearStr, monthStr, dayStr string) (time.Time, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || !validDay(year, time.Month(month), day) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func validDay(year int, month time.Month, day int) bool {
	if day < 1 || day > 31 {
		return false
	}
	ts := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return ts.Day() == day && ts.Month() == month
}
