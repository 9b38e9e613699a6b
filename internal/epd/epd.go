// Package epd drives the Waveshare 12.48" tri-color e-paper panel.
package epd

// Panel geometry of the 12.48" B panel.
const (
	Width      = 1304
	Height     = 984
	ByteStride = Width / 8
	PlaneSize  = ByteStride * Height
)
