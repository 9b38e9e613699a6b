// Package render turns a DayModel into the PNG served to the display.
package render

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"image/png"
	"math"
	"os"
	"time"

	"inkday/internal/apperr"
	"inkday/internal/model"
	"inkday/internal/weather"
)

//go:embed layout.html
var defaultLayout string

// Engine rasterizes an HTML document at a fixed viewport size.
type Engine interface {
	Capture(ctx context.Context, doc []byte, width, height int) ([]byte, error)
}

// Options controls the Renderer.
type Options struct {
	Width   int
	Height  int
	Timeout time.Duration
	// Units is "metric" or "imperial".
	Units string
	// TemplatePath replaces the embedded layout when set.
	TemplatePath string
}

// Renderer fills the layout template from a DayModel and hands the document
// to an Engine. Nothing but the model reaches the template, so equal models
// produce equal documents.
type Renderer struct {
	engine Engine
	opts   Options
	tmpl   *template.Template
}

func NewRenderer(engine Engine, opts Options) (*Renderer, error) {
	if engine == nil {
		return nil, errors.New("render: engine is nil")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("render: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	src := defaultLayout
	if opts.TemplatePath != "" {
		b, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("render: read template: %w", err)
		}
		src = string(b)
	}
	tmpl, err := template.New("layout").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}
	return &Renderer{engine: engine, opts: opts, tmpl: tmpl}, nil
}

// Document executes the layout for m.
func (r *Renderer) Document(m model.DayModel) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, newView(m, r.opts)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render produces PNG bytes of exactly Width x Height pixels. Any engine
// failure, timeout or wrongly sized output is a RenderError.
func (r *Renderer) Render(ctx context.Context, m model.DayModel) ([]byte, error) {
	const op = "render"

	doc, err := r.Document(m)
	if err != nil {
		return nil, apperr.Render(op, fmt.Errorf("execute template: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	img, err := r.engine.Capture(ctx, doc, r.opts.Width, r.opts.Height)
	if err != nil {
		return nil, apperr.Render(op, err)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, apperr.Render(op, fmt.Errorf("engine output is not a PNG: %w", err))
	}
	if cfg.Width != r.opts.Width || cfg.Height != r.opts.Height {
		return nil, apperr.Render(op, fmt.Errorf("engine produced %dx%d, want %dx%d",
			cfg.Width, cfg.Height, r.opts.Width, r.opts.Height))
	}
	return img, nil
}

type eventView struct {
	Time     string
	Title    string
	Location string
	Color    string
}

type forecastView struct {
	High      string
	Low       string
	Condition string
	Icon      string
}

type layoutView struct {
	Width    int
	Height   int
	Weekday  string
	DateLine string
	Timezone string
	AllDay   []eventView
	Timed    []eventView
	Forecast *forecastView
}

func newView(m model.DayModel, opts Options) layoutView {
	v := layoutView{
		Width:    opts.Width,
		Height:   opts.Height,
		Weekday:  m.Date.Format("Monday"),
		DateLine: m.Date.Format("2 January 2006"),
		Timezone: m.Timezone,
	}
	for _, o := range m.Events {
		ev := eventView{Title: o.Title, Location: o.Location, Color: o.Color}
		if o.AllDay {
			v.AllDay = append(v.AllDay, ev)
			continue
		}
		ev.Time = o.Start.Format("15:04")
		if o.HasEnd() {
			ev.Time += " – " + o.End.Format("15:04")
		}
		v.Timed = append(v.Timed, ev)
	}
	if f := m.Forecast; f != nil {
		v.Forecast = &forecastView{
			High:      formatTemp(f.HighC, opts.Units),
			Low:       formatTemp(f.LowC, opts.Units),
			Condition: f.Condition,
			Icon:      f.IconID,
		}
	}
	return v
}

func formatTemp(c float64, units string) string {
	unit := "C"
	if units == "imperial" {
		c, unit = weather.CelsiusToFahrenheit(c), "F"
	}
	r := math.Round(c)
	if r == 0 {
		r = 0 // no "-0"
	}
	return fmt.Sprintf("%.0f°%s", r, unit)
}
