//go:build linux && arm && cgo

// cgo-backed driver for the Waveshare 12.48" tri-color (B) panel.
//
// Built only for GOOS=linux GOARCH=arm with CGO_ENABLED=1. The Waveshare C
// SDK (DEV_Config.c, EPD_12in48b.c) is expected as a static library with its
// headers in internal/epd/c:
//
//	UBYTE DEV_ModuleInit(void);
//	void  DEV_ModuleExit(void);
//	void  EPD_12in48B_Init(void);
//	void  EPD_12in48B_Clear(void);
//	void  EPD_12in48B_Display(const unsigned char *black, const unsigned char *red);
//	void  EPD_12in48B_Sleep(void);

package epd

/*
#cgo linux,arm CFLAGS: -I${SRCDIR}/c
#cgo linux,arm LDFLAGS: -L${SRCDIR}/c -lepddrv -llgpio

#include <stdint.h>
#include "EPD_12in48b.h"
#include "DEV_Config.h"
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// CDriver calls into the Waveshare C driver.
type CDriver struct{}

// InitC brings up GPIO/SPI and initializes the panel.
//
//	d, err := epd.InitC()
//	if err != nil { ... }
//	defer d.Sleep()
func InitC() (*CDriver, error) {
	// DEV_ModuleInit returns 0 on success.
	if ret := C.DEV_ModuleInit(); ret != 0 {
		return nil, fmt.Errorf("epd(cgo): DEV_ModuleInit failed (ret=%d)", int(ret))
	}
	C.EPD_12in48B_Init()
	return &CDriver{}, nil
}

// Clear paints the whole panel white. Used before a full refresh.
func (d *CDriver) Clear() {
	C.EPD_12in48B_Clear()
}

// Display pushes both planes and triggers a panel refresh. Each plane must be
// PlaneSize bytes.
func (d *CDriver) Display(black, red []byte) error {
	if len(black) != PlaneSize || len(red) != PlaneSize {
		return fmt.Errorf("epd(cgo): invalid buffer size, expected %d bytes per plane", PlaneSize)
	}

	cb := (*C.uchar)(unsafe.Pointer(&black[0]))
	cr := (*C.uchar)(unsafe.Pointer(&red[0]))

	C.EPD_12in48B_Display(cb, cr)
	return nil
}

// Sleep puts the panel into deep sleep and releases GPIO/SPI.
func (d *CDriver) Sleep() {
	C.EPD_12in48B_Sleep()
	C.DEV_ModuleExit()
}
