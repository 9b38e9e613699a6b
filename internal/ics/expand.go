package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"inkday/internal/apperr"
	appLog "inkday/internal/log"
	"inkday/internal/model"
)

// maxInstancesPerDay is a safety cap for sub-daily rules (FREQ=MINUTELY etc).
const maxInstancesPerDay = 288

// ExpandResult wraps the list of occurrences for the day and information
// about truncation.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records UIDs that hit maxInstancesPerDay.
	TruncatedEvents []string
}

// uidGroup collects the base event and RECURRENCE-ID overrides sharing a UID.
type uidGroup struct {
	base      *ParsedEvent
	overrides []ParsedEvent
}

// ExpandDay turns parsed events into the occurrences that start on day. It
// handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence, evaluated only within the day
//   - EXDATE removal and RDATE additions
//   - RECURRENCE-ID overrides: a moved or cancelled instance replaces the
//     rule-generated one; the override appears only on its own new date
//   - SEQUENCE precedence between duplicate VEVENTs
//   - All-day semantics (no end time)
//
// Output order follows the feed order of UIDs so the merge step stays
// deterministic. All occurrences are in the day's display zone.
func ExpandDay(events []ParsedEvent, day model.Day) ExpandResult {
	var result ExpandResult

	order := make([]string, 0)
	groups := make(map[string]*uidGroup)

	for _, ev := range events {
		g, ok := groups[ev.UID]
		if !ok {
			g = &uidGroup{}
			groups[ev.UID] = g
			order = append(order, ev.UID)
		}
		if ev.IsOverride && ev.Recurrence != nil {
			g.overrides = addOverride(g.overrides, ev)
			continue
		}
		if g.base == nil || ev.Seq > g.base.Seq {
			ev := ev
			g.base = &ev
		}
	}

	out := make([]model.Occurrence, 0)
	for _, uid := range order {
		g := groups[uid]
		occ, truncated := expandGroup(g, day)
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", maxInstancesPerDay,
			)
		}
		out = append(out, occ...)
	}

	result.Occurrences = out
	return result
}

// addOverride keeps one override per RECURRENCE-ID, preferring the highest SEQUENCE.
func addOverride(list []ParsedEvent, ov ParsedEvent) []ParsedEvent {
	for i, cur := range list {
		if cur.Recurrence.Equal(*ov.Recurrence) {
			if ov.Seq >= cur.Seq {
				list[i] = ov
			}
			return list
		}
	}
	return append(list, ov)
}

func expandGroup(g *uidGroup, day model.Day) ([]model.Occurrence, bool) {
	var out []model.Occurrence
	truncated := false

	if g.base != nil && !g.base.Cancelled() {
		var starts []time.Time
		if g.base.RawRRule == "" {
			starts = singleStart(*g.base, day)
		} else {
			starts, truncated = recurringStarts(*g.base, day)
		}

		var dur time.Duration
		if !g.base.End.IsZero() {
			dur = g.base.End.Sub(g.base.Start)
		}

		for _, s := range starts {
			if _, ok := findOverrideForStart(g.overrides, s); ok {
				// The override decides where (and whether) this instance appears.
				continue
			}
			var end time.Time
			if dur > 0 {
				end = s.Add(dur)
			}
			out = append(out, makeOccurrence(*g.base, s, end, day.Location()))
		}
	}

	for _, ov := range g.overrides {
		if ov.Cancelled() || !day.Contains(ov.Start) {
			continue
		}
		out = append(out, makeOccurrence(ov, ov.Start, ov.End, day.Location()))
	}

	return out, truncated
}

func singleStart(ev ParsedEvent, day model.Day) []time.Time {
	if !day.Contains(ev.Start) {
		return nil
	}
	return []time.Time{ev.Start}
}

// recurringStarts evaluates the RRULE of ev only inside day. The rule runs in
// the event's own zone so wall-clock times survive DST transitions.
func recurringStarts(ev ParsedEvent, day model.Day) ([]time.Time, bool) {
	opt, err := rrule.StrToROptionInLocation(ev.RawRRule, ev.Start.Location())
	if err != nil {
		appLog.Error("expand: failed to parse RRULE; treating as single event", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return singleStart(ev, day), false
	}
	opt.Dtstart = ev.Start

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("expand: invalid RRULE; treating as single event", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return singleStart(ev, day), false
	}

	// Build a set so we can apply EXDATE / RDATE.
	var set rrule.Set
	set.RRule(r)
	for _, rd := range ev.RDates {
		set.RDate(rd)
	}
	for _, ex := range ev.ExDates {
		set.ExDate(ex)
	}

	candidates := set.Between(day.Start, day.End(), true)

	starts := make([]time.Time, 0, len(candidates))
	for _, t := range candidates {
		if !day.Contains(t) {
			continue
		}
		if len(starts) > 0 && starts[len(starts)-1].Equal(t) {
			continue
		}
		starts = append(starts, t)
	}

	if len(starts) > maxInstancesPerDay {
		return starts[:maxInstancesPerDay], true
	}
	return starts, false
}

// findOverrideForStart finds an override event whose RECURRENCE-ID matches
// the given instance start with exact instant equality.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeOccurrence converts a (possibly overridden) ParsedEvent + specific
// start/end time into a model.Occurrence normalized into displayLoc.
// All-day occurrences carry no end.
func makeOccurrence(ev ParsedEvent, start, end time.Time, displayLoc *time.Location) model.Occurrence {
	occ := model.Occurrence{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		Title:       ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		Color:       ev.Source.Color,
		AllDay:      ev.AllDay,
		Start:       start.In(displayLoc),
	}
	if !ev.AllDay && !end.IsZero() {
		occ.End = end.In(displayLoc)
	}
	return occ
}

// Normalize parses one feed and returns its occurrences for day. A malformed
// feed yields a ParseError and no occurrences.
func Normalize(src Source, body []byte, day model.Day) ([]model.Occurrence, error) {
	events, err := ParseICS(src, body, day.Location())
	if err != nil {
		return nil, err
	}
	res := ExpandDay(events, day)
	return res.Occurrences, nil
}

// IsParseError reports whether err came from a malformed feed.
func IsParseError(err error) bool { return errors.Is(err, apperr.ErrParse) }
