package model

import "time"

// ModelVersion is bumped whenever the DayModel shape changes in a way the
// layout template must know about.
const ModelVersion = 1

// Day is a calendar day qualified by the display time zone.
type Day struct {
	// Start is local midnight of the day in Loc.
	Start time.Time
}

// DayOf returns the day containing t as observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return Day{Start: time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)}
}

// Location returns the display time zone of the day.
func (d Day) Location() *time.Location { return d.Start.Location() }

// End is local midnight of the following day. On DST transition days the
// span is 23 or 25 hours.
func (d Day) End() time.Time { return d.Start.AddDate(0, 0, 1) }

// Contains reports whether t falls within [Start, End).
func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End())
}

// String renders the day as YYYY-MM-DD.
func (d Day) String() string { return d.Start.Format("2006-01-02") }

// Occurrence represents a single concrete instance of an event on the target
// day, after recurrence expansion and time zone normalization.
type Occurrence struct {
	SourceID string `json:"source_id"` // calendar source ID
	UID      string `json:"uid"`       // iCalendar UID

	Title       string `json:"title"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`

	// Color is the source's optional color tag.
	Color string `json:"color,omitempty"`

	AllDay bool `json:"all_day"`

	// Start / End are in the configured display timezone. End is the zero
	// time when the event has no end (always the case for all-day events).
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// HasEnd reports whether the occurrence carries an end time.
func (o Occurrence) HasEnd() bool { return !o.End.IsZero() }

// ForecastSummary is the compact forecast shown next to the agenda.
type ForecastSummary struct {
	// Temperatures are always Celsius; conversion happens at render time.
	HighC     float64   `json:"high_c"`
	LowC      float64   `json:"low_c"`
	Condition string    `json:"condition"`
	IconID    string    `json:"icon_id"`
	AsOf      time.Time `json:"as_of"`
}

// Stale reports whether the summary is older than maxAge at now.
// A non-positive maxAge disables staleness.
func (f ForecastSummary) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(f.AsOf) > maxAge
}

// DayModel is the immutable snapshot consumed by rendering.
type DayModel struct {
	Version  int              `json:"version"`
	Date     time.Time        `json:"date"`
	Timezone string           `json:"timezone"`
	Events   []Occurrence     `json:"events"`
	Forecast *ForecastSummary `json:"forecast,omitempty"`
}

// Artifact is a published raster image and its content fingerprint.
type Artifact struct {
	Bytes       []byte    `json:"-"`
	Fingerprint string    `json:"fingerprint"`
	ProducedAt  time.Time `json:"produced_at"`
}

// Empty reports whether no artifact has been published yet.
func (a Artifact) Empty() bool { return len(a.Bytes) == 0 }
