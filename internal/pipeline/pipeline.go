// Package pipeline drives the server side: calendars and forecast are
// refreshed into a DayModel on one schedule, rendered and published on
// another.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"inkday/internal/agenda"
	"inkday/internal/ics"
	appLog "inkday/internal/log"
	"inkday/internal/model"
)

// CalendarFetcher retrieves raw feeds. Implemented by *ics.Fetcher.
type CalendarFetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, error)
}

// Forecaster returns today's forecast or nil. Implemented by *weather.OpenMeteo.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64, day model.Day) *model.ForecastSummary
}

// DayRenderer turns a model into PNG bytes. Implemented by *render.Renderer.
type DayRenderer interface {
	Render(ctx context.Context, m model.DayModel) ([]byte, error)
}

// ArtifactPublisher promotes bytes to the served artifact. Implemented by
// *publish.Publisher.
type ArtifactPublisher interface {
	Publish(b []byte, producedAt time.Time) (model.Artifact, error)
}

// ForecastOptions selects the coordinate and staleness threshold.
type ForecastOptions struct {
	Enabled   bool
	Latitude  float64
	Longitude float64
	MaxAge    time.Duration
}

// Deps groups the collaborators of a Pipeline. Forecaster may be nil.
type Deps struct {
	Fetcher    CalendarFetcher
	Forecaster Forecaster
	Renderer   DayRenderer
	Publisher  ArtifactPublisher
}

// Pipeline holds the most recent DayModel and the last good forecast.
type Pipeline struct {
	deps     Deps
	sources  []ics.Source
	loc      *time.Location
	forecast ForecastOptions
	now      func() time.Time

	mu        sync.RWMutex
	day       *model.DayModel
	lastFC    *model.ForecastSummary
	lastFCDay string

	// renderMu keeps RunOnce and the scheduled render from interleaving.
	renderMu sync.Mutex
}

func New(deps Deps, sources []ics.Source, loc *time.Location, fc ForecastOptions) *Pipeline {
	if loc == nil {
		loc = time.Local
	}
	return &Pipeline{
		deps:     deps,
		sources:  sources,
		loc:      loc,
		forecast: fc,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Location is the display time zone.
func (p *Pipeline) Location() *time.Location { return p.loc }

// CurrentDay returns the last composed model.
func (p *Pipeline) CurrentDay() (model.DayModel, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.day == nil {
		return model.DayModel{}, false
	}
	return *p.day, true
}

// sourceSummary is one line of the per-refresh report.
type sourceSummary struct {
	status string
	events int
}

// Refresh fetches every source, normalizes each feed for today and composes
// a new DayModel. A source that fails to fetch or parse contributes nothing;
// the model is still built from the rest. The returned error aggregates the
// per-source failures and never means the model was left unchanged.
func (p *Pipeline) Refresh(ctx context.Context) error {
	now := p.now()
	day := model.DayOf(now, p.loc)

	summary := make(map[string]sourceSummary, len(p.sources))
	for _, src := range p.sources {
		summary[src.ID] = sourceSummary{status: "fetch_failed"}
	}

	var errs *multierror.Error
	results, err := p.deps.Fetcher.FetchAll(ctx, p.sources)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	lists := make([][]model.Occurrence, 0, len(results))
	for _, res := range results {
		occ, err := ics.Normalize(res.Source, res.Body, day)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID)
			summary[res.Source.ID] = sourceSummary{status: "parse_failed"}
			errs = multierror.Append(errs, err)
			continue
		}
		summary[res.Source.ID] = sourceSummary{status: "ok", events: len(occ)}
		lists = append(lists, occ)
	}

	for _, src := range p.sources {
		s := summary[src.ID]
		appLog.Info("calendar summary", "id", src.ID, "status", s.status, "events", s.events, "date", day.String())
	}

	fc := p.refreshForecast(ctx, day)
	m := agenda.Compose(day, lists, fc, now, p.forecast.MaxAge)

	p.mu.Lock()
	p.day = &m
	p.mu.Unlock()

	appLog.Info("day model composed",
		"date", day.String(),
		"events", len(m.Events),
		"sources_ok", len(lists),
		"sources_total", len(p.sources),
		"forecast", m.Forecast != nil,
	)
	return errs.ErrorOrNil()
}

// refreshForecast asks for a new forecast and falls back to the last good
// one for the same day. Staleness is judged later, at composition.
func (p *Pipeline) refreshForecast(ctx context.Context, day model.Day) *model.ForecastSummary {
	if !p.forecast.Enabled || p.deps.Forecaster == nil {
		return nil
	}
	fc := p.deps.Forecaster.Forecast(ctx, p.forecast.Latitude, p.forecast.Longitude, day)

	p.mu.Lock()
	defer p.mu.Unlock()
	if fc != nil {
		p.lastFC, p.lastFCDay = fc, day.String()
		return fc
	}
	if p.lastFC != nil && p.lastFCDay == day.String() {
		appLog.Warn("forecast unavailable; reusing last summary", "as_of", p.lastFC.AsOf)
		return p.lastFC
	}
	return nil
}

// RenderAndPublish renders the current model and publishes it. If no model
// exists yet, or it belongs to a previous day, Refresh runs first. A render
// or publish failure aborts only this cycle; the previous artifact stays.
func (p *Pipeline) RenderAndPublish(ctx context.Context) error {
	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	m, ok := p.CurrentDay()
	today := model.DayOf(p.now(), p.loc)
	if !ok || !m.Date.Equal(today.Start) {
		if err := p.Refresh(ctx); err != nil {
			appLog.Warn("refresh before render had failures", "err", err)
		}
		m, ok = p.CurrentDay()
		if !ok {
			return errors.New("pipeline: no day model")
		}
	}

	img, err := p.deps.Renderer.Render(ctx, m)
	if err != nil {
		appLog.Error("render failed", err, "date", today.String())
		return err
	}

	a, err := p.deps.Publisher.Publish(img, p.now())
	if err != nil {
		appLog.Error("publish failed", err, "date", today.String())
		return err
	}

	appLog.Info("render cycle complete", "date", today.String(), "fingerprint", a.Fingerprint, "bytes", len(img))
	return nil
}

// RunOnce runs a full refresh followed by render and publish.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	var errs *multierror.Error
	if err := p.Refresh(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := p.RenderAndPublish(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
