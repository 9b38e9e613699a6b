// Package agenda combines per-source occurrences and the forecast into the
// DayModel handed to the renderer.
package agenda

import (
	"sort"
	"time"

	"inkday/internal/model"
)

// dedupKey identifies the same entry shared across calendars.
type dedupKey struct {
	title string
	start int64
	end   int64
}

func keyOf(o model.Occurrence) dedupKey {
	k := dedupKey{title: o.Title, start: o.Start.UnixNano()}
	if o.HasEnd() {
		k.end = o.End.UnixNano()
	}
	return k
}

// Merge concatenates the lists in the given order, drops occurrences whose
// (title, start, end) already appeared and sorts the result: all-day entries
// first, then by start, then by title. Equal sort keys keep input order, so
// the first source listing a shared event wins.
func Merge(lists ...[]model.Occurrence) []model.Occurrence {
	n := 0
	for _, l := range lists {
		n += len(l)
	}

	seen := make(map[dedupKey]struct{}, n)
	out := make([]model.Occurrence, 0, n)
	for _, l := range lists {
		for _, o := range l {
			k := keyOf(o)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, o)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Title < b.Title
	})
	return out
}

// Compose builds the immutable snapshot for date. A forecast older than
// maxAge at now is left out rather than shown with a misleading age.
func Compose(date model.Day, lists [][]model.Occurrence, forecast *model.ForecastSummary, now time.Time, maxAge time.Duration) model.DayModel {
	m := model.DayModel{
		Version:  model.ModelVersion,
		Date:     date.Start,
		Timezone: date.Location().String(),
		Events:   Merge(lists...),
	}
	if forecast != nil && !forecast.Stale(now, maxAge) {
		fc := *forecast
		m.Forecast = &fc
	}
	return m
}
