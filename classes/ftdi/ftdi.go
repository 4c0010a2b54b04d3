// Package ftdi implements a bridge over FTDI's FT232/FT230-family USB-UART
// parts: baud rate programming, line format, flow control, latency timer,
// bit-bang mode, and bulk read/write on the chip's single data interface.
package ftdi

import (
	"time"

	usb "github.com/halvard-dev/usbdirect"
)

// Transferor is the subset of *usb.DeviceHandle this package depends on,
// kept narrow so tests can supply a fake handle.
type Transferor interface {
	ControlTransfer(req usb.ControlRequest, buf usb.TransferBuffer, timeout time.Duration) (int, error)
	BulkTransfer(endpoint uint8, buf usb.TransferBuffer, timeout time.Duration) (int, error)
}

// VendorID is FTDI's registered USB vendor ID.
const VendorID = 0x0403

// ProductIDs lists the FT232/FT230-family product IDs this package accepts.
var ProductIDs = []uint16{0x6001, 0x6010, 0x6011, 0x6014}

const (
	reqTypeVendorOut = 0x40

	reqReset        = 0x00
	reqSetModemCtrl = 0x01
	reqSetFlowCtrl  = 0x02
	reqSetBaudRate  = 0x03
	reqSetData      = 0x04
	reqSetLatency   = 0x09
)

// FlowControl selects the handshake mode programmed by SetFlowControl.
type FlowControl uint16

const (
	FlowNone    FlowControl = 0x0000
	FlowRTSCTS  FlowControl = 0x0100
	FlowDTRDSR  FlowControl = 0x0200
	FlowXONXOFF FlowControl = 0x0400
)

// Bridge wraps an opened FTDI device handle.
type Bridge struct {
	Handle    Transferor
	Interface uint8
	InEP      uint8
	OutEP     uint8
}

// Reset issues the SIO_RESET vendor request, clearing the chip's internal
// RX/TX FIFOs and pending transfers.
func (b *Bridge) Reset() error {
	return b.vendorOut(reqReset, 0, nil)
}

func (b *Bridge) vendorOut(request uint8, value uint16, data []byte) error {
	req := usb.ControlRequest{
		RequestType: reqTypeVendorOut,
		Request:     request,
		Value:       value,
		Index:       uint16(b.Interface),
	}
	_, err := b.Handle.ControlTransfer(req, usb.Out(data), time.Second)
	return err
}

// computeDivisor converts a requested baud rate into the chip's fractional
// divisor, derived from FTDI's 3MHz x8 oversampled reference clock, and
// clamped to the 17-bit divisor range the SIO_SET_BAUD_RATE request accepts.
func computeDivisor(baud uint32) uint32 {
	if baud == 0 {
		baud = 1
	}
	divisor := (3_000_000 * 8) / baud
	if divisor < 1 {
		divisor = 1
	}
	if divisor > 0x1FFFF {
		divisor = 0x1FFFF
	}
	return divisor
}

// SetBaudRate programs the chip's baud rate generator. The low 16 bits of
// the divisor go in the request value, the interface number in the index's
// high byte alongside the divisor's bit-16 overflow in its low byte.
func (b *Bridge) SetBaudRate(baud uint32) error {
	divisor := computeDivisor(baud)
	value := uint16(divisor & 0xFFFF)
	index := uint16(b.Interface)<<8 | uint16((divisor>>16)&0x01)
	req := usb.ControlRequest{
		RequestType: reqTypeVendorOut,
		Request:     reqSetBaudRate,
		Value:       value,
		Index:       index,
	}
	_, err := b.Handle.ControlTransfer(req, usb.Out(nil), time.Second)
	return err
}

// DataBits, StopBits, and Parity values for SetLineFormat, matching the
// bit layout of FTDI's SIO_SET_DATA request.
type DataBits uint16

const (
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

type StopBits uint16

const (
	StopBits1 StopBits = 0 << 11
	StopBits2 StopBits = 2 << 11
)

type Parity uint16

const (
	ParityNone  Parity = 0 << 8
	ParityOdd   Parity = 1 << 8
	ParityEven  Parity = 2 << 8
	ParityMark  Parity = 3 << 8
	ParitySpace Parity = 4 << 8
)

// SetLineFormat programs data bits, stop bits, and parity in a single
// SIO_SET_DATA request.
func (b *Bridge) SetLineFormat(data DataBits, stop StopBits, parity Parity) error {
	value := uint16(data) | uint16(stop) | uint16(parity)
	return b.vendorOut(reqSetData, value, nil)
}

// SetFlowControl programs the chip's handshake mode.
func (b *Bridge) SetFlowControl(mode FlowControl) error {
	req := usb.ControlRequest{
		RequestType: reqTypeVendorOut,
		Request:     reqSetFlowCtrl,
		Value:       0,
		Index:       uint16(b.Interface)<<8 | uint16(mode),
	}
	_, err := b.Handle.ControlTransfer(req, usb.Out(nil), time.Second)
	return err
}

// SetDTRRTS asserts or drops the DTR and RTS modem control lines.
func (b *Bridge) SetDTRRTS(dtr, rts bool) error {
	var value uint16
	if dtr {
		value |= 0x0001
	} else {
		value |= 0x0100
	}
	if rts {
		value |= 0x0002
	} else {
		value |= 0x0200
	}
	return b.vendorOut(reqSetModemCtrl, value, nil)
}

// SetLatencyTimer programs the chip's USB latency timer in milliseconds,
// clamped to a minimum of 1ms since the chip rejects zero.
func (b *Bridge) SetLatencyTimer(ms uint8) error {
	if ms < 1 {
		ms = 1
	}
	return b.vendorOut(reqSetLatency, uint16(ms), nil)
}

// reqSetBitMode is FTDI's SIO_SET_BITMODE vendor request for
// enabling/disabling bit-bang mode, with the mode byte packed into the
// value field's high byte.
const reqSetBitMode = 0x0B

// BitBangMode selects synchronous or asynchronous bit-bang operation.
type BitBangMode uint8

const (
	BitBangDisabled  BitBangMode = 0x00
	BitBangAsync     BitBangMode = 0x01
	BitBangSynchronous BitBangMode = 0x04
)

// SetBitBangMode enables bit-bang mode with the given direction mask
// (1 = output) or disables it when mode is BitBangDisabled.
func (b *Bridge) SetBitBangMode(mask uint8, mode BitBangMode) error {
	value := uint16(mask) | uint16(mode)<<8
	return b.vendorOut(reqSetBitMode, value, nil)
}

// Write performs a bulk OUT transfer on the chip's data endpoint.
func (b *Bridge) Write(data []byte, timeout time.Duration) (int, error) {
	return b.Handle.BulkTransfer(b.OutEP, usb.Out(data), timeout)
}

// Read performs a bulk IN transfer on the chip's data endpoint. The first
// two bytes of every FTDI bulk IN packet are modem/line status bytes, not
// payload, and the caller should discard them if present in buf.
func (b *Bridge) Read(buf []byte, timeout time.Duration) (int, error) {
	return b.Handle.BulkTransfer(b.InEP, usb.In(buf), timeout)
}
