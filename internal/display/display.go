// Package display puts a locally stored artifact on screen.
package display

import (
	"fmt"
	"image/png"
	"os"
	"sync"

	"inkday/internal/config"
	"inkday/internal/convert"
	"inkday/internal/epd"
	appLog "inkday/internal/log"
)

// Display shows the image stored at path. full requests a full-panel
// refresh instead of a partial one.
type Display interface {
	Show(path string, full bool) error
	Close() error
}

// Open returns the display selected by cfg.Driver.
func Open(cfg config.PanelConfig) (Display, error) {
	switch cfg.Driver {
	case "", "noop":
		return &Noop{}, nil
	case "epd":
		// The driver pushes fixed-size planes; any other geometry fails every frame.
		if cfg.Width != epd.Width || cfg.Height != epd.Height {
			return nil, fmt.Errorf("display: panel size %dx%d does not match epd %dx%d",
				cfg.Width, cfg.Height, epd.Width, epd.Height)
		}
		drv, err := epd.InitC()
		if err != nil {
			return nil, err
		}
		return NewPanel(drv, cfg.Width, cfg.Height), nil
	default:
		return nil, fmt.Errorf("display: unknown driver %q", cfg.Driver)
	}
}

// Noop logs what would be shown. Useful on development machines.
type Noop struct {
	mu      sync.Mutex
	current string
}

func (n *Noop) Show(path string, full bool) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	n.mu.Lock()
	n.current = path
	n.mu.Unlock()
	appLog.Info("display show (noop)", "path", path, "full", full)
	return nil
}

func (n *Noop) Close() error { return nil }

// Current is the path passed to the last successful Show.
func (n *Noop) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Driver is the panel hardware. Implemented by *epd.CDriver.
type Driver interface {
	Clear()
	Display(black, red []byte) error
	Sleep()
}

// Panel decodes the PNG, fits it to the panel and pushes packed planes.
type Panel struct {
	drv    Driver
	width  int
	height int
	mu     sync.Mutex
}

func NewPanel(drv Driver, width, height int) *Panel {
	return &Panel{drv: drv, width: width, height: height}
}

func (p *Panel) Show(path string, full bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("display: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return fmt.Errorf("display: decode %s: %w", path, err)
	}
	fitted, err := convert.Fit(img, p.width, p.height)
	if err != nil {
		return fmt.Errorf("display: %w", err)
	}
	planes := convert.Pack(fitted)

	p.mu.Lock()
	defer p.mu.Unlock()
	if full {
		// Clearing first avoids ghosting from the previous frame.
		p.drv.Clear()
	}
	if err := p.drv.Display(planes.Black, planes.Red); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	appLog.Info("panel refreshed", "path", path, "full", full)
	return nil
}

// Close puts the panel to sleep.
func (p *Panel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drv.Sleep()
	return nil
}
