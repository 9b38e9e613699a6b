package agenda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkday/internal/ics"
	"inkday/internal/model"
)

var london = func() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		panic(err)
	}
	return loc
}()

func at(h, m int) time.Time { return time.Date(2025, 6, 2, h, m, 0, 0, london) }

func occ(src, title string, start, end time.Time) model.Occurrence {
	return model.Occurrence{SourceID: src, Title: title, Start: start, End: end}
}

func titles(list []model.Occurrence) []string {
	out := make([]string, len(list))
	for i, o := range list {
		out[i] = o.Title
	}
	return out
}

func TestMergeSharedStandup(t *testing.T) {
	a := []model.Occurrence{occ("personal", "Standup", at(9, 0), at(9, 15))}
	b := []model.Occurrence{occ("work", "Standup", at(9, 0), at(9, 15))}

	merged := Merge(a, b)
	require.Len(t, merged, 1)
	assert.Equal(t, "personal", merged[0].SourceID)
}

func TestMergeDedupComparesInstants(t *testing.T) {
	// Same instant expressed in two zones is the same entry.
	a := []model.Occurrence{occ("a", "Sync", at(14, 0), at(15, 0))}
	b := []model.Occurrence{occ("b", "Sync", at(14, 0).UTC(), at(15, 0).UTC())}
	assert.Len(t, Merge(a, b), 1)
}

func TestMergeKeepsDistinctEntries(t *testing.T) {
	a := []model.Occurrence{
		occ("a", "Standup", at(9, 0), at(9, 15)),
		occ("a", "Standup", at(9, 0), at(9, 30)),
		occ("a", "Standup", at(9, 0), time.Time{}),
	}
	b := []model.Occurrence{occ("b", "standup", at(9, 0), at(9, 15))}
	assert.Len(t, Merge(a, b), 4)
}

func TestMergeOrdering(t *testing.T) {
	a := []model.Occurrence{
		occ("a", "Lunch", at(12, 0), at(13, 0)),
		occ("a", "Beta", at(9, 0), at(10, 0)),
		{SourceID: "a", Title: "Holiday", AllDay: true, Start: at(0, 0)},
	}
	b := []model.Occurrence{
		occ("b", "Alpha", at(9, 0), at(9, 30)),
		{SourceID: "b", Title: "Birthday", AllDay: true, Start: at(0, 0)},
	}

	merged := Merge(a, b)
	assert.Equal(t, []string{"Birthday", "Holiday", "Alpha", "Beta", "Lunch"}, titles(merged))
}

func TestMergeStableTies(t *testing.T) {
	a := []model.Occurrence{occ("a", "Review", at(10, 0), at(11, 0))}
	b := []model.Occurrence{occ("b", "Review", at(10, 0), at(10, 30))}

	merged := Merge(a, b)
	require.Len(t, merged, 2)
	assert.Equal(t, []string{"a", "b"}, []string{merged[0].SourceID, merged[1].SourceID})

	merged = Merge(b, a)
	assert.Equal(t, []string{"b", "a"}, []string{merged[0].SourceID, merged[1].SourceID})
}

func TestMergeEmpty(t *testing.T) {
	merged := Merge(nil, []model.Occurrence{})
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

func TestComposeDropsStaleForecast(t *testing.T) {
	day := model.DayOf(at(8, 0), london)
	now := at(8, 0)
	fc := &model.ForecastSummary{HighC: 21, LowC: 12, Condition: "Cloudy", IconID: "cloudy", AsOf: now.Add(-4 * time.Hour)}

	m := Compose(day, nil, fc, now, 3*time.Hour)
	assert.Nil(t, m.Forecast)

	fc.AsOf = now.Add(-time.Hour)
	m = Compose(day, nil, fc, now, 3*time.Hour)
	require.NotNil(t, m.Forecast)
	assert.Equal(t, "Cloudy", m.Forecast.Condition)
	assert.NotSame(t, fc, m.Forecast)
}

func TestComposeIsolatesMalformedSource(t *testing.T) {
	day := model.DayOf(at(8, 0), london)
	good := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\nUID:1\r\nSUMMARY:Dentist\r\nDTSTART;TZID=Europe/London:20250602T110000\r\nDTEND;TZID=Europe/London:20250602T113000\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n")
	bad := []byte("<html>503 Service Unavailable</html>")

	var lists [][]model.Occurrence
	for _, body := range [][]byte{bad, good} {
		got, err := ics.Normalize(ics.Source{ID: "x"}, body, day)
		if err != nil {
			assert.True(t, ics.IsParseError(err))
			continue
		}
		lists = append(lists, got)
	}

	m := Compose(day, lists, nil, at(8, 0), time.Hour)
	require.Len(t, m.Events, 1)
	assert.Equal(t, "Dentist", m.Events[0].Title)
}

func TestComposeDeterministic(t *testing.T) {
	day := model.DayOf(at(8, 0), london)
	lists := [][]model.Occurrence{
		{occ("a", "Standup", at(9, 0), at(9, 15)), occ("a", "Lunch", at(12, 0), at(13, 0))},
		{occ("b", "Standup", at(9, 0), at(9, 15))},
	}
	fc := &model.ForecastSummary{HighC: 18, LowC: 9, Condition: "Rain", IconID: "rain", AsOf: at(7, 0)}

	first := Compose(day, lists, fc, at(8, 0), 3*time.Hour)
	second := Compose(day, lists, fc, at(8, 0), 3*time.Hour)
	assert.Equal(t, first, second)
	assert.Equal(t, model.ModelVersion, first.Version)
	assert.Equal(t, "Europe/London", first.Timezone)
	assert.Equal(t, []string{"Standup", "Lunch"}, titles(first.Events))
}
