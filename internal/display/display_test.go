package display

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkday/internal/config"
)

type fakeDriver struct {
	calls  []string
	black  []byte
	err    error
	asleep bool
}

func (d *fakeDriver) Clear() { d.calls = append(d.calls, "clear") }

func (d *fakeDriver) Display(black, red []byte) error {
	d.calls = append(d.calls, "display")
	d.black = black
	return d.err
}

func (d *fakeDriver) Sleep() { d.asleep = true }

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})

	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestOpenRejectsWrongEPDSize(t *testing.T) {
	_, err := Open(config.PanelConfig{Driver: "epd", Width: 800, Height: 480})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel size 800x480")
}

func TestPanelFullRefreshClearsFirst(t *testing.T) {
	drv := &fakeDriver{}
	p := NewPanel(drv, 16, 8)

	require.NoError(t, p.Show(writePNG(t, 16, 8), true))
	assert.Equal(t, []string{"clear", "display"}, drv.calls)
	require.Len(t, drv.black, 16)
	assert.Equal(t, byte(0x7F), drv.black[0])

	drv.calls = nil
	require.NoError(t, p.Show(writePNG(t, 16, 8), false))
	assert.Equal(t, []string{"display"}, drv.calls)

	require.NoError(t, p.Close())
	assert.True(t, drv.asleep)
}

func TestPanelErrors(t *testing.T) {
	drv := &fakeDriver{err: errors.New("spi busy")}
	p := NewPanel(drv, 16, 8)
	assert.Error(t, p.Show(writePNG(t, 16, 8), false))

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o644))
	assert.Error(t, p.Show(bad, false))
	assert.Error(t, p.Show(filepath.Join(t.TempDir(), "missing.png"), false))
}

func TestNoop(t *testing.T) {
	d, err := Open(config.PanelConfig{Driver: "noop"})
	require.NoError(t, err)
	path := writePNG(t, 4, 4)
	require.NoError(t, d.Show(path, true))
	assert.Equal(t, path, d.(*Noop).Current())
	assert.Error(t, d.Show("/nonexistent.png", true))

	_, err = Open(config.PanelConfig{Driver: "hdmi"})
	assert.Error(t, err)
}
