package marketdata

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rzzdr/quant-pricing-engine/pkg/utils/errors"
)

// Period is a calendar offset such as 1D, 2W, 3M or 1Y6M.
type Period struct {
	Years  int
	Months int
	Days   int
}

// ParsePeriod parses tenor strings like "1D", "-3M", "1Y6M" or "2W".
func ParsePeriod(s string) (Period, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return Period{}, errors.InvalidArgumentf("empty period")
	}

	sign := 1
	switch raw[0] {
	case '-':
		sign = -1
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	var p Period
	digits := ""
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits += string(r)
			continue
		}
		if digits == "" {
			return Period{}, errors.InvalidArgumentf("period %q: unit %q without a count", s, r)
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Period{}, errors.InvalidArgumentf("period %q: %v", s, err)
		}
		switch r {
		case 'D':
			p.Days += n
		case 'W':
			p.Days += 7 * n
		case 'M':
			p.Months += n
		case 'Y':
			p.Years += n
		default:
			return Period{}, errors.InvalidArgumentf("period %q: unknown unit %q", s, r)
		}
		digits = ""
	}
	if digits != "" {
		return Period{}, errors.InvalidArgumentf("period %q: trailing count without unit", s)
	}

	if sign < 0 {
		p = p.Negate()
	}
	return p, nil
}

// MustParsePeriod panics on malformed input. Intended for literals.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Negate flips the direction of the period.
func (p Period) Negate() Period {
	return Period{Years: -p.Years, Months: -p.Months, Days: -p.Days}
}

// IsZero reports whether the period moves nothing.
func (p Period) IsZero() bool {
	return p.Years == 0 && p.Months == 0 && p.Days == 0
}

// AddTo moves t by the period. Month arithmetic clamps to the last day of the
// target month, so 31 Jan + 1M is 28/29 Feb.
func (p Period) AddTo(t time.Time) time.Time {
	out := t
	if months := p.Years*12 + p.Months; months != 0 {
		out = addMonths(out, months)
	}
	if p.Days != 0 {
		out = out.AddDate(0, 0, p.Days)
	}
	return out
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func (p Period) String() string {
	if p.IsZero() {
		return "0D"
	}
	var b strings.Builder
	write := func(n int, unit byte) {
		if n != 0 {
			b.WriteString(strconv.Itoa(n))
			b.WriteByte(unit)
		}
	}
	write(p.Years, 'Y')
	write(p.Months, 'M')
	write(p.Days, 'D')
	return b.String()
}

// YearFraction is ACT/ACT ISDA on UTC calendar days: whole days are split at
// each 1 January and divided by the length of their own year. The time of day
// difference counts in days of the start year.
func YearFraction(start, end time.Time) float64 {
	if end.Before(start) {
		return -YearFraction(end, start)
	}
	s, e := start.UTC(), end.UTC()
	sDay, eDay := midnight(s), midnight(e)

	t := 0.0
	cur := sDay
	for cur.Year() < eDay.Year() {
		next := time.Date(cur.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		t += days(cur, next) / daysInYear(cur.Year())
		cur = next
	}
	t += days(cur, eDay) / daysInYear(cur.Year())

	intraday := (e.Sub(eDay) - s.Sub(sDay)).Hours() / 24.0
	return t + intraday/daysInYear(s.Year())
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// days between two UTC midnights is always whole.
func days(from, to time.Time) float64 {
	return math.Round(to.Sub(from).Hours() / 24.0)
}

func daysInYear(year int) float64 {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366.0
	}
	return 365.0
}

// AdjustFollowing rolls weekend dates forward to Monday.
func AdjustFollowing(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// Schedule returns the payment dates from start (exclusive) to end (inclusive)
// stepping by tenor, rolled backwards from end so any stub sits at the front.
func Schedule(start, end time.Time, tenor Period) ([]time.Time, error) {
	if !end.After(start) {
		return nil, errors.InvalidArgumentf("schedule end %s is not after start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if tenor.IsZero() {
		return []time.Time{end}, nil
	}
	back := tenor.Negate()
	dates := []time.Time{end}
	for i := 1; ; i++ {
		var next time.Time
		if months := back.Years*12 + back.Months; months != 0 {
			next = addMonths(end, months*i).AddDate(0, 0, back.Days*i)
		} else {
			next = end.AddDate(0, 0, back.Days*i)
		}
		if !next.After(start) {
			break
		}
		dates = append(dates, next)
	}
	for i, j := 0, len(dates)-1; i < j; i, j = i+1, j-1 {
		dates[i], dates[j] = dates[j], dates[i]
	}
	return dates, nil
}
