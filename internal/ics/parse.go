package ics

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"inkday/internal/apperr"
	appLog "inkday/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT as produced
// by the ICS parser. Recurrence expansion will operate on this type.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Status      string // upper-cased STATUS, e.g. "CANCELLED"

	// Start is always set. End is zero when the VEVENT has neither DTEND nor
	// DURATION.
	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	RDates     []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT is an override for a recurring instance
}

// Cancelled reports whether the VEVENT carries STATUS:CANCELLED.
func (e ParsedEvent) Cancelled() bool { return e.Status == "CANCELLED" }

// ParseICS parses a single ICS payload into a list of ParsedEvent.
//
//   - DATE-TIME values with TZID are resolved through the IANA database;
//     UTC values keep UTC; floating values and DATE values are placed in
//     loc (the display zone), as is any TZID Go cannot resolve.
//   - All-day events are detected from VALUE=DATE or a date-only DTSTART.
//   - RRULE/EXDATE/RDATE/RECURRENCE-ID are recorded but not expanded;
//     expansion is done in expand.go.
//
// A payload that is not a well-formed VCALENDAR yields a ParseError. A single
// bad VEVENT is logged and skipped.
func ParseICS(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	const op = "ics.parse"

	if loc == nil {
		loc = time.Local
	}
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, apperr.Parse(op, src.ID, errors.New("empty ICS body"))
	}
	if !bytes.HasPrefix(bytes.ToUpper(trimmed[:min(len(trimmed), 15)]), []byte("BEGIN:VCALENDAR")) {
		return nil, apperr.Parse(op, src.ID, errors.New("body is not a VCALENDAR"))
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(trimmed))
	if err != nil {
		return nil, apperr.Parse(op, src.ID, err)
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("ics vevent skipped", "id", src.ID, "err", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = strings.ToUpper(strings.TrimSpace(p.Value))
	}

	// SEQUENCE (optional, used for overrides/versioning)
	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}

	// DTSTART is the only hard requirement.
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || strings.TrimSpace(dtStart.Value) == "" {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseTimeValue(dtStart.Value, dtStart.ICalParameters, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil && strings.TrimSpace(p.Value) != "" {
		end, _, err := parseTimeValue(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	} else if p := ve.GetProperty("DURATION"); p != nil {
		d, err := parseDuration(p.Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.End = out.Start.Add(d)
	}

	// UID. Some exporters omit it; derive a stable one so the event survives.
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		out.UID = p.Value
	} else {
		sum := sha256.Sum256([]byte(out.Summary + "\x00" + dtStart.Value))
		out.UID = "nouid-" + hex.EncodeToString(sum[:8])
	}

	// RRULE (we only keep raw string here; expansion will be in expand.go).
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = strings.TrimSpace(p.Value)
	}

	// EXDATE / RDATE (can appear multiple times, each possibly a list).
	out.ExDates = parseTimeList(ve.GetProperties(ical.ComponentPropertyExdate), loc)
	out.RDates = parseTimeList(ve.GetProperties("RDATE"), loc)

	// RECURRENCE-ID (overridden instance)
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		rid, _, err := parseTimeValue(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.Recurrence = &rid
		out.IsOverride = true
	}

	return out, nil
}

func parseTimeList(props []*ical.IANAProperty, loc *time.Location) []time.Time {
	var out []time.Time
	for _, p := range props {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			// RDATE;VALUE=PERIOD values are start/end; only the start matters here.
			if i := strings.IndexByte(part, '/'); i > 0 {
				part = part[:i]
			}
			if t, _, err := parseTimeValue(part, p.ICalParameters, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// parseTimeValue parses an ICS DATE or DATE-TIME value with its parameters.
// It reports whether the value was a DATE (all-day).
func parseTimeValue(v string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	isDate := !strings.Contains(v, "T")
	if vs := params[string(ical.ParameterValue)]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}

	// Date-only (all-day), e.g., 20250101. A calendar date has no instant;
	// it is local midnight in the display zone.
	if isDate {
		if len(v) > 8 {
			v = v[:8]
		}
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}

	// Local date-time, e.g., 20250101T090000, in TZID or floating.
	tzLoc := loc
	if tzs := params[string(ical.ParameterTzid)]; len(tzs) > 0 {
		tzLoc = resolveTZID(tzs[0], loc)
	}
	t, err := time.ParseInLocation("20060102T150405", v, tzLoc)
	return t, false, err
}

// resolveTZID maps a TZID parameter onto a Go location, falling back to
// fallback for names the IANA database does not know (e.g. Windows zone names).
func resolveTZID(tzid string, fallback *time.Location) *time.Location {
	name := strings.Trim(strings.TrimSpace(tzid), `"`)
	// Some exporters prefix a path, e.g. "/mozilla.org/20050126_1/Europe/Berlin".
	if strings.HasPrefix(name, "/") {
		parts := strings.Split(strings.TrimPrefix(name, "/"), "/")
		if len(parts) >= 2 {
			name = strings.Join(parts[len(parts)-2:], "/")
		}
	}
	l, err := time.LoadLocation(name)
	if err != nil {
		appLog.Debug("ics unknown TZID; using display zone", "tzid", tzid)
		return fallback
	}
	return l
}

// parseDuration parses an RFC 5545 DURATION value such as "PT1H30M",
// "P1D", "P2W" or "-PT15M".
func parseDuration(v string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return 0, errors.New("empty duration")
	}
	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
			inTime = true
		default:
			if num == "" {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			n, _ := strconv.Atoi(num)
			num = ""
			var unit time.Duration
			switch {
			case r == 'W' && !inTime:
				unit = 7 * 24 * time.Hour
			case r == 'D' && !inTime:
				unit = 24 * time.Hour
			case r == 'H' && inTime:
				unit = time.Hour
			case r == 'M' && inTime:
				unit = time.Minute
			case r == 'S' && inTime:
				unit = time.Second
			default:
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			total += time.Duration(n) * unit
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return sign * total, nil
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

// unescapeText decodes RFC 5545 TEXT escapes.
func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
