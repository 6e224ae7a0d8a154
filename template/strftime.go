package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// strftime directive → reference-layout fragment. Directives without a Go
// layout equivalent are expanded manually in Strftime.
var strftimeLayouts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'a': "Mon",
	'A': "Monday",
	'b': "Jan",
	'B': "January",
	'p': "PM",
	'Z': "MST",
}

// Strftime formats t according to a strftime-style pattern.
func Strftime(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 >= len(pattern) {
			b.WriteByte(c)
			continue
		}
		i++
		d := pattern[i]
		if layout, ok := strftimeLayouts[d]; ok {
			b.WriteString(t.Format(layout))
			continue
		}
		switch d {
		case '%':
			b.WriteByte('%')
		case 'f':
			b.WriteString(fmt.Sprintf("%06d", t.Nanosecond()/1000))
		case 'j':
			b.WriteString(fmt.Sprintf("%03d", t.YearDay()))
		case 'w':
			b.WriteString(strconv.Itoa(int(t.Weekday())))
		case 'u':
			b.WriteString(strconv.Itoa(isoWeekday(t)))
		case 'U':
			b.WriteString(fmt.Sprintf("%02d", (t.YearDay()+6-int(t.Weekday()))/7))
		case 'W':
			b.WriteString(fmt.Sprintf("%02d", (t.YearDay()+6-isoWeekday(t))/7))
		default:
			b.WriteByte('%')
			b.WriteByte(d)
		}
	}
	return b.String()
}

// isoWeekday returns 1 for Monday through 7 for Sunday.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"20060102150405",
	"20060102",
}

var timeOnlyLayouts = []string{
	"15:04:05",
	"15:04",
}

// ParseTime parses s as a date/time, accepting the common layouts the
// config files use. A time without a date is placed on today's date.
func ParseTime(s string) (time.Time, error) {
	return ParseTimeAt(s, time.Now())
}

// ParseTimeAt is ParseTime with an explicit reference for the default date.
func ParseTimeAt(s string, ref time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, ref.Location()); err == nil {
			return t, nil
		}
	}
	for _, layout := range timeOnlyLayouts {
		if t, err := time.ParseInLocation(layout, s, ref.Location()); err == nil {
			return time.Date(ref.Year(), ref.Month(), ref.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, ref.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date/time", s)
}
