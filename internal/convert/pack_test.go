package convert

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackPlanes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 10; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})     // black
	img.SetNRGBA(9, 0, color.NRGBA{220, 20, 20, 255}) // red
	img.SetNRGBA(1, 1, color.NRGBA{0, 0, 0, 10})      // transparent

	p := Pack(img)
	assert.Equal(t, 2, p.Stride)
	require.Len(t, p.Black, 4)
	require.Len(t, p.Red, 4)

	assert.Equal(t, byte(0x7F), p.Black[0], "x=0 inked black")
	assert.Equal(t, byte(0xFF), p.Black[1])
	assert.Equal(t, byte(0xFF), p.Red[0])
	assert.Equal(t, byte(0xBF), p.Red[1], "x=9 is bit 1 of the second byte")
	assert.Equal(t, byte(0xFF), p.Black[2], "transparent stays white")
}

func TestClassifyPixel(t *testing.T) {
	assert.Equal(t, inkBlack, classifyPixel(color.NRGBA{20, 20, 20, 255}))
	assert.Equal(t, inkWhite, classifyPixel(color.NRGBA{240, 240, 240, 255}))
	assert.Equal(t, inkRed, classifyPixel(color.NRGBA{221, 0, 0, 255}))
	assert.Equal(t, inkWhite, classifyPixel(color.NRGBA{255, 200, 200, 255}), "pale pink")
}

func TestFitExactSize(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 4))
	src.SetGray(3, 2, color.Gray{Y: 0})
	for i := range src.Pix {
		if i != 2*8+3 {
			src.Pix[i] = 255
		}
	}

	dst, err := Fit(src, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), dst.Bounds())
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, dst.NRGBAAt(3, 2))
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, dst.NRGBAAt(0, 0))
}

func TestFitLetterboxes(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 0, 0, 0, 255
	}

	dst, err := Fit(src, 20, 20)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 20), dst.Bounds())
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, dst.NRGBAAt(10, 1), "top band is white")
	mid := dst.NRGBAAt(10, 10)
	assert.Less(t, mid.R, uint8(16), "content centered")
	assert.Greater(t, mid.A, uint8(240))

	_, err = Fit(src, 0, 5)
	assert.Error(t, err)
}
