package reminder

import (
	"fmt"
	"time"
)

// CanonicalLayout is the only encoding written for last_reminder.
const CanonicalLayout = "2006-01-02"

// legacyLayouts are the timestamp encodings older releases wrote. Go accepts an
// optional fractional second after the seconds field, so microseconds need no
// separate layout.
var legacyLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15",
}

// legacyZonedLayouts carry a UTC offset and are converted into the clock's location.
var legacyZonedLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

// Date is a calendar day without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses the canonical YYYY-MM-DD encoding.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(CanonicalLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t, time.UTC), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// Midnight returns the start of d in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, n), time.UTC)
}

// DaysBetween returns to minus from in whole calendar days.
func DaysBetween(from, to Date) int {
	return int(to.Midnight(time.UTC).Sub(from.Midnight(time.UTC)) / (24 * time.Hour))
}

// StampKind tags the result of DecodeStamp.
type StampKind int

const (
	StampUnparseable StampKind = iota
	StampCanonical
	StampLegacy
)

func (k StampKind) String() string {
	switch k {
	case StampCanonical:
		return "canonical"
	case StampLegacy:
		return "legacy"
	default:
		return "unparseable"
	}
}

// Stamp is a decoded last_reminder value. Instant is set only for StampLegacy.
type Stamp struct {
	Kind    StampKind
	Date    Date
	Instant time.Time
}

// DecodeStamp tries the canonical encoding, then each legacy timestamp layout.
// Zone-less legacy values are read as wall clock time in loc.
func DecodeStamp(raw string, loc *time.Location) Stamp {
	if loc == nil {
		loc = time.Local
	}
	if d, err := ParseDate(raw); err == nil {
		return Stamp{Kind: StampCanonical, Date: d}
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return Stamp{Kind: StampLegacy, Date: DateOf(t, loc), Instant: t}
		}
	}
	for _, layout := range legacyZonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.In(loc)
			return Stamp{Kind: StampLegacy, Date: DateOf(t, loc), Instant: t}
		}
	}
	return Stamp{Kind: StampUnparseable}
}

// daysSince returns the whole days elapsed from s to the start of today, floored.
func (s Stamp) daysSince(today Date, loc *time.Location) int {
	if s.Kind != StampLegacy {
		return DaysBetween(s.Date, today)
	}
	const day = 24 * time.Hour
	elapsed := today.Midnight(loc).Sub(s.Instant)
	days := int(elapsed / day)
	if elapsed < 0 && elapsed%day != 0 {
		days--
	}
	return days
}
