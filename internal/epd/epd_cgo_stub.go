//go:build !(linux && arm && cgo)

package epd

import "errors"

// ErrUnsupported is returned by InitC on builds without the C driver.
var ErrUnsupported = errors.New("epd(cgo): C driver is only available on linux/arm with cgo enabled")

// CDriver is a placeholder on platforms without the C driver; InitC never
// returns one.
type CDriver struct{}

func InitC() (*CDriver, error) { return nil, ErrUnsupported }

func (d *CDriver) Clear() {}

func (d *CDriver) Display(black, red []byte) error { return ErrUnsupported }

func (d *CDriver) Sleep() {}
