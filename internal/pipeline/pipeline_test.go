package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkday/internal/apperr"
	"inkday/internal/fingerprint"
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

func feedWith(events ...string) []byte {
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n"
	for _, e := range events {
		body += e
	}
	return []byte(body + "END:VCALENDAR\r\n")
}

func vevent(uid, title, start, end string) string {
	return fmt.Sprintf("BEGIN:VEVENT\r\nUID:%s\r\nSUMMARY:%s\r\nDTSTART;TZID=Europe/London:%s\r\nDTEND;TZID=Europe/London:%s\r\nEND:VEVENT\r\n",
		uid, title, start, end)
}

type fakeFetcher struct {
	bodies map[string][]byte
	fail   map[string]bool
}

func (f *fakeFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, error) {
	var out []ics.FetchResult
	var err error
	for _, s := range sources {
		if f.fail[s.ID] {
			err = apperr.Fetch("fake", s.ID, errors.New("unreachable"))
			continue
		}
		out = append(out, ics.FetchResult{Source: s, Body: f.bodies[s.ID]})
	}
	return out, err
}

type fakeForecaster struct {
	mu    sync.Mutex
	next  []*model.ForecastSummary
	calls int
}

func (f *fakeForecaster) Forecast(context.Context, float64, float64, model.Day) *model.ForecastSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.next) == 0 {
		return nil
	}
	fc := f.next[0]
	f.next = f.next[1:]
	return fc
}

// fakeRenderer encodes the titles so equal models give equal bytes.
type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, m model.DayModel) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := m.Date.Format("2006-01-02")
	for _, e := range m.Events {
		out += "|" + e.Title
	}
	if m.Forecast != nil {
		out += "|" + m.Forecast.Condition
	}
	return []byte(out), nil
}

type fakePublisher struct {
	published []model.Artifact
	err       error
}

func (p *fakePublisher) Publish(b []byte, at time.Time) (model.Artifact, error) {
	if p.err != nil {
		return model.Artifact{}, p.err
	}
	a := model.Artifact{Bytes: b, Fingerprint: fingerprint.Of(b), ProducedAt: at}
	p.published = append(p.published, a)
	return a, nil
}

func standupFeeds() *fakeFetcher {
	return &fakeFetcher{bodies: map[string][]byte{
		"personal": feedWith(vevent("p1", "Standup", "20250602T090000", "20250602T091500"), vevent("p2", "Gym", "20250602T180000", "20250602T190000")),
		"work":     feedWith(vevent("w1", "Standup", "20250602T090000", "20250602T091500")),
		"broken":   []byte("<html>oops</html>"),
	}}
}

func newPipeline(f CalendarFetcher, fc Forecaster, r DayRenderer, pub ArtifactPublisher, now *time.Time) *Pipeline {
	p := New(Deps{Fetcher: f, Forecaster: fc, Renderer: r, Publisher: pub},
		[]ics.Source{{ID: "personal"}, {ID: "broken"}, {ID: "work"}},
		london,
		ForecastOptions{Enabled: true, MaxAge: 3 * time.Hour},
	)
	p.SetClock(func() time.Time { return *now })
	return p
}

func TestRefreshIsolatesBadSourceAndDedups(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, london)
	p := newPipeline(standupFeeds(), nil, &fakeRenderer{}, &fakePublisher{}, &now)

	err := p.Refresh(context.Background())
	require.Error(t, err, "broken source is reported")
	assert.ErrorIs(t, err, apperr.ErrParse)

	m, ok := p.CurrentDay()
	require.True(t, ok)
	require.Len(t, m.Events, 2)
	assert.Equal(t, "Standup", m.Events[0].Title)
	assert.Equal(t, "personal", m.Events[0].SourceID)
	assert.Equal(t, "Gym", m.Events[1].Title)
	assert.Nil(t, m.Forecast)
}

func TestRefreshSurvivesFetchFailure(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, london)
	f := standupFeeds()
	f.fail = map[string]bool{"personal": true}
	p := newPipeline(f, nil, &fakeRenderer{}, &fakePublisher{}, &now)

	err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, apperr.ErrFetch)

	m, ok := p.CurrentDay()
	require.True(t, ok)
	require.Len(t, m.Events, 1)
	assert.Equal(t, "work", m.Events[0].SourceID)
}

func TestForecastCachedUntilStale(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, london)
	fc := &fakeForecaster{next: []*model.ForecastSummary{{Condition: "Sunny", AsOf: now}}}
	p := newPipeline(standupFeeds(), fc, &fakeRenderer{}, &fakePublisher{}, &now)

	_ = p.Refresh(context.Background())
	m, _ := p.CurrentDay()
	require.NotNil(t, m.Forecast)

	// Upstream down: the last summary is reused while fresh.
	now = now.Add(2 * time.Hour)
	_ = p.Refresh(context.Background())
	m, _ = p.CurrentDay()
	require.NotNil(t, m.Forecast)
	assert.Equal(t, "Sunny", m.Forecast.Condition)

	// And dropped once older than MaxAge.
	now = now.Add(2 * time.Hour)
	_ = p.Refresh(context.Background())
	m, _ = p.CurrentDay()
	assert.Nil(t, m.Forecast)
	assert.Equal(t, 3, fc.calls)
}

func TestRenderAndPublishIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, london)
	pub := &fakePublisher{}
	p := newPipeline(standupFeeds(), nil, &fakeRenderer{}, pub, &now)

	require.Error(t, p.RunOnce(context.Background()), "broken source surfaces")
	now = now.Add(5 * time.Minute)
	require.Error(t, p.RunOnce(context.Background()))

	require.Len(t, pub.published, 2)
	assert.Equal(t, pub.published[0].Fingerprint, pub.published[1].Fingerprint)
}

func TestRenderFailureAbortsCycle(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, london)
	pub := &fakePublisher{}
	r := &fakeRenderer{err: apperr.Render("render", errors.New("engine down"))}
	p := newPipeline(standupFeeds(), nil, r, pub, &now)

	err := p.RenderAndPublish(context.Background())
	assert.ErrorIs(t, err, apperr.ErrRender)
	assert.Empty(t, pub.published)

	_, ok := p.CurrentDay()
	assert.True(t, ok, "render without a model refreshes first")
}

func TestPublishFailureSurfaces(t *testing.T) {
	now := time.Date(2025, 6, 2, 7, 0, 0, 0, london)
	pub := &fakePublisher{err: apperr.Publish("publish", "/x", errors.New("disk full"))}
	p := newPipeline(standupFeeds(), nil, &fakeRenderer{}, pub, &now)

	assert.ErrorIs(t, p.RenderAndPublish(context.Background()), apperr.ErrPublish)
}

func TestRenderRefreshesOnNewDay(t *testing.T) {
	now := time.Date(2025, 6, 2, 23, 50, 0, 0, london)
	p := newPipeline(standupFeeds(), nil, &fakeRenderer{}, &fakePublisher{}, &now)
	_ = p.Refresh(context.Background())
	m, _ := p.CurrentDay()
	require.Len(t, m.Events, 2)

	now = time.Date(2025, 6, 3, 0, 5, 0, 0, london)
	require.NoError(t, p.RenderAndPublish(context.Background()))
	m, _ = p.CurrentDay()
	assert.True(t, m.Date.Equal(time.Date(2025, 6, 3, 0, 0, 0, 0, london)))
	assert.Empty(t, m.Events)
}
