// Package battery reads the charge level of a PiSugar-style UPS over I2C so
// the display client can report it alongside each redraw.
package battery

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"inkday/internal/config"
)

// PiSugar3 registers.
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

var ErrUnavailable = errors.New("battery: i2c reader unavailable on this platform")

// Status is a single battery reading.
type Status struct {
	// Percent is the battery level in 0-100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, if known.
	VoltageMv int `json:"voltage_mv"`
}

// Reader abstracts how battery information is obtained.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// i2cReader talks to the controller at addr on busName ("" is the default
// bus, /dev/i2c-1 on a Raspberry Pi).
type i2cReader struct {
	busName string
	addr    uint16

	initOnce sync.Once
	initErr  error
}

// New returns a Reader for cfg, or nil when telemetry is disabled.
func New(cfg config.BatteryConfig) Reader {
	if !cfg.Enabled {
		return nil
	}
	return &i2cReader{busName: cfg.Bus, addr: cfg.Addr}
}

// Read implements Reader. The bus is opened per read; readings are rare.
func (r *i2cReader) Read(_ context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, ErrUnavailable
	}
	r.initOnce.Do(func() { _, r.initErr = host.Init() })
	if r.initErr != nil {
		return Status{}, r.initErr
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, err
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, err
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	return decode(high, low, pct), nil
}

func decode(high, low, pct byte) Status {
	if pct > 100 {
		pct = 100
	}
	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}
}
