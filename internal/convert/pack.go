// Package convert turns a decoded artifact into the packed 1bpp black/red
// planes a tri-color e-paper controller expects.
package convert

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Planes holds one frame for a tri-color panel. Both planes are y-major,
// MSB-first 1bpp with Stride bytes per row; a 1 bit is white (no ink).
type Planes struct {
	Width  int
	Height int
	Stride int
	Black  []byte
	Red    []byte
}

// Fit returns img as an NRGBA of exactly width x height. An image that
// already has that size is copied as is; anything else is scaled to fit
// while keeping its aspect ratio and centered on white.
func Fit(img image.Image, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("convert: invalid target size %dx%d", width, height)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst, nil
	}
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("convert: empty source image")
	}

	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	// Scale by the tighter axis.
	w, h := width, b.Dy()*width/b.Dx()
	if h > height {
		w, h = b.Dx()*height/b.Dy(), height
	}
	x0, y0 := (width-w)/2, (height-h)/2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), img, b, draw.Over, nil)
	return dst, nil
}

// Pack classifies every pixel of img into white, black or red ink and packs
// the result:
//
//	byteIndex = y * Stride + (x >> 3)
//	mask      = 0x80 >> (x & 7)
//
// Planes start all white; only inked pixels clear their bit.
func Pack(img *image.NRGBA) Planes {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := (w + 7) / 8

	p := Planes{
		Width:  w,
		Height: h,
		Stride: stride,
		Black:  make([]byte, stride*h),
		Red:    make([]byte, stride*h),
	}
	for i := range p.Black {
		p.Black[i] = 0xFF
		p.Red[i] = 0xFF
	}

	// Walk Pix directly; At() per pixel is too slow on a Pi Zero.
	for py := 0; py < h; py++ {
		rowOff := py * img.Stride
		for px := 0; px < w; px++ {
			i := rowOff + px*4
			c := color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: img.Pix[i+3]}

			// Mostly transparent pixels are not visible.
			if c.A < 128 {
				continue
			}

			byteIndex := py*stride + (px >> 3)
			mask := byte(0x80 >> (px & 7))

			switch classifyPixel(c) {
			case inkBlack:
				p.Black[byteIndex] &^= mask
			case inkRed:
				p.Red[byteIndex] &^= mask
			}
		}
	}
	return p
}

// inkColor indicates which plane a pixel should be drawn to.
type inkColor int

const (
	inkWhite inkColor = iota
	inkBlack
	inkRed
)

// classifyPixel decides between black, red and white:
//
//   - luma Y = 0.299R + 0.587G + 0.114B below 128 → black
//   - R > 128 and R - max(G, B) > 64 → red
//   - otherwise white
func classifyPixel(c color.NRGBA) inkColor {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	maxGB := g
	if b > maxGB {
		maxGB = b
	}
	redness := r - maxGB

	if r > 128 && redness > 64 {
		return inkRed
	}
	if 0.299*r+0.587*g+0.114*b < 128 {
		return inkBlack
	}
	return inkWhite
}
