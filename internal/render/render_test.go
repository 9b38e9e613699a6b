package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkday/internal/apperr"
	"inkday/internal/model"
)

// fakeEngine returns a blank PNG of the requested size and records documents.
type fakeEngine struct {
	mu    sync.Mutex
	docs  [][]byte
	err   error
	size  image.Point
	block bool
}

func (f *fakeEngine) Capture(ctx context.Context, doc []byte, w, h int) ([]byte, error) {
	f.mu.Lock()
	f.docs = append(f.docs, append([]byte(nil), doc...))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.size != (image.Point{}) {
		w, h = f.size.X, f.size.Y
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sampleModel() model.DayModel {
	loc := time.FixedZone("CET", 3600)
	at := func(h, m int) time.Time { return time.Date(2025, 6, 2, h, m, 0, 0, loc) }
	return model.DayModel{
		Version:  model.ModelVersion,
		Date:     at(0, 0),
		Timezone: "Europe/Berlin",
		Events: []model.Occurrence{
			{Title: "Bank holiday", AllDay: true, Start: at(0, 0)},
			{Title: "Standup", Start: at(9, 0), End: at(9, 15), Color: "red"},
			{Title: "Dentist", Location: "Hauptstr. 5", Start: at(14, 30)},
		},
		Forecast: &model.ForecastSummary{HighC: 21.4, LowC: -0.3, Condition: "Rain", IconID: "rain"},
	}
}

func newTestRenderer(t *testing.T, e Engine, units string) *Renderer {
	t.Helper()
	r, err := NewRenderer(e, Options{Width: 320, Height: 240, Timeout: time.Second, Units: units})
	require.NoError(t, err)
	return r
}

func TestRenderDeterministic(t *testing.T) {
	e := &fakeEngine{}
	r := newTestRenderer(t, e, "metric")

	first, err := r.Render(context.Background(), sampleModel())
	require.NoError(t, err)
	second, err := r.Render(context.Background(), sampleModel())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, e.docs, 2)
	assert.Equal(t, e.docs[0], e.docs[1])
}

func TestDocumentContents(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, "metric")
	doc, err := r.Document(sampleModel())
	require.NoError(t, err)

	s := string(doc)
	assert.Contains(t, s, `data-ready="true"`)
	assert.Contains(t, s, "Monday")
	assert.Contains(t, s, "2 June 2025")
	assert.Contains(t, s, "Bank holiday")
	assert.Contains(t, s, "09:00 – 09:15")
	assert.Contains(t, s, "14:30")
	assert.Contains(t, s, "Hauptstr. 5")
	assert.Contains(t, s, "21°C / 0°C")
	assert.NotContains(t, s, "-0°C")
	assert.Contains(t, s, "width: 320px")
}

func TestDocumentWithoutForecast(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, "metric")
	m := sampleModel()
	m.Forecast = nil
	m.Events = nil

	doc, err := r.Document(m)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), `class="weather"`)
	assert.Contains(t, string(doc), "Nothing scheduled")
}

func TestDocumentImperial(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, "imperial")
	doc, err := r.Document(sampleModel())
	require.NoError(t, err)
	assert.Contains(t, string(doc), "71°F / 31°F")
}

func TestRenderErrors(t *testing.T) {
	cases := map[string]*fakeEngine{
		"engine unavailable": {err: errors.New("chrome not found")},
		"timeout":            {block: true},
		"wrong size":         {size: image.Pt(100, 100)},
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := NewRenderer(e, Options{Width: 320, Height: 240, Timeout: 50 * time.Millisecond})
			require.NoError(t, err)

			out, err := r.Render(context.Background(), sampleModel())
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, apperr.ErrRender)
		})
	}
}

func TestNewRendererValidates(t *testing.T) {
	_, err := NewRenderer(nil, Options{Width: 1, Height: 1})
	assert.Error(t, err)
	_, err = NewRenderer(&fakeEngine{}, Options{Width: 0, Height: 10})
	assert.Error(t, err)
	_, err = NewRenderer(&fakeEngine{}, Options{Width: 10, Height: 10, TemplatePath: "/nonexistent/layout.html"})
	assert.Error(t, err)
}
