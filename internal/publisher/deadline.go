package publisher

import (
	"regexp"
	"strings"
	"time"
)

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Monday, 2 January 2006",
	"Monday, January 2, 2006",
}

var (
	deadlinePrefix = regexp.MustCompile(`(?i)^\s*(application\s+)?(deadline|closing\s+date|closes|close\s+date|apply\s+by|due(\s+date)?|expires|expiry\s+date|ends)\s*(on)?\s*[:\-]?\s*`)
	ordinalSuffix  = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	dateFragments  = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2}))?`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
		regexp.MustCompile(`\d{1,2}\s+[A-Za-z]{3,9}\.?,?\s+\d{4}`),
		regexp.MustCompile(`[A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4}`),
	}
	spaceRun        = regexp.MustCompile(`\s+`)
	fragmentCleaner = strings.NewReplacer(".", "", ",", "")
)

// ParseDeadline turns a raw deadline string into a UTC timestamp. It
// accepts ISO dates, US slash dates and spelled-out month formats, with or
// without a leading label such as "Deadline:". Anything else yields nil.
func ParseDeadline(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = deadlinePrefix.ReplaceAllString(s, "")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")

	if t, ok := parseLayouts(s); ok {
		return &t
	}
	for _, re := range dateFragments {
		if fragment := re.FindString(s); fragment != "" {
			if t, ok := parseLayouts(fragmentCleaner.Replace(fragment)); ok {
				return &t
			}
		}
	}
	return nil
}

func parseLayouts(s string) (time.Time, bool) {
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
