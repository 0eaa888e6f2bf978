package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var phonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)

// NormalizePhone strips spaces, dashes and brackets and checks the remaining digits.
func NormalizePhone(raw string) (string, bool) {
	p := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if !phonePattern.MatchString(p) {
		return "", false
	}
	return p, true
}

func parseInt(raw string, min, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

// DateLayout is how travel dates are stored and typed.
const DateLayout = "02.01.2006"

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseTravelDate accepts dd.mm.yyyy from today up to the end of next year, the same
// window the year buttons offer.
func parseTravelDate(raw string, now time.Time) (time.Time, string) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, "err.date.format"
	}
	if t.Before(day(now)) {
		return time.Time{}, "err.date.past"
	}
	if t.Year() > now.Year()+1 {
		return time.Time{}, "err.date.range"
	}
	return t, ""
}
