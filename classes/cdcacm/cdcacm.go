// Package cdcacm implements a thin bridge over a USB-CDC ACM serial
// interface: line coding, control-line state, bulk read/write, SLIP
// framing, and the boot-mode handshake used by the CDC presets in this
// package.
package cdcacm

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

const (
	reqTypeHostToDeviceClassInterface = 0x21
	reqSetLineCoding                  = 0x20
	reqSetControlLineState            = 0x22
)

// LineCoding is the 7-byte SET_LINE_CODING payload: baud rate, stop bits,
// parity, and data bits.
type LineCoding struct {
	BaudRate uint32
	StopBits uint8 // 0 = 1 stop bit, 1 = 1.5, 2 = 2
	Parity   uint8 // 0 = none, 1 = odd, 2 = even, 3 = mark, 4 = space
	DataBits uint8 // 5, 6, 7, 8, or 16
}

func (l LineCoding) marshal() []byte {
	b := make([]byte, 7)
	b[0] = byte(l.BaudRate)
	b[1] = byte(l.BaudRate >> 8)
	b[2] = byte(l.BaudRate >> 16)
	b[3] = byte(l.BaudRate >> 24)
	b[4] = l.StopBits
	b[5] = l.Parity
	b[6] = l.DataBits
	return b
}

// Bridge wraps an opened CDC-ACM device handle plus the bulk IN/OUT
// endpoints carrying the data stream.
type Bridge struct {
	Handle   Transferor
	InEP     uint8
	OutEP    uint8
	Interface uint8
}

// SetLineCoding issues SET_LINE_CODING on the communication interface.
func (b *Bridge) SetLineCoding(lc LineCoding) error {
	req := usb.ControlRequest{
		RequestType: reqTypeHostToDeviceClassInterface,
		Request:     reqSetLineCoding,
		Index:       uint16(b.Interface),
	}
	_, err := b.Handle.ControlTransfer(req, usb.Out(lc.marshal()), time.Second)
	return err
}

// SetControlLineState issues SET_CONTROL_LINE_STATE, encoding DTR in bit 0
// and RTS in bit 1 of the request's value field.
func (b *Bridge) SetControlLineState(dtr, rts bool) error {
	var value uint16
	if dtr {
		value |= 0x01
	}
	if rts {
		value |= 0x02
	}
	req := usb.ControlRequest{
		RequestType: reqTypeHostToDeviceClassInterface,
		Request:     reqSetControlLineState,
		Value:       value,
		Index:       uint16(b.Interface),
	}
	_, err := b.Handle.ControlTransfer(req, usb.Out(nil), time.Second)
	return err
}

// Write performs a bulk OUT transfer on the data endpoint.
func (b *Bridge) Write(data []byte, timeout time.Duration) (int, error) {
	return b.Handle.BulkTransfer(b.OutEP, usb.Out(data), timeout)
}

// Read performs a bulk IN transfer on the data endpoint.
func (b *Bridge) Read(buf []byte, timeout time.Duration) (int, error) {
	return b.Handle.BulkTransfer(b.InEP, usb.In(buf), timeout)
}

// EnterBootloader drives the four control-line states, 50ms apart, that
// mirror the public boot-mode handshake for the ESP32/STM32 family of
// USB-serial bootloaders: DTR only, then RTS only, then DTR and RTS
// together, then neither.
func (b *Bridge) EnterBootloader() error {
	steps := []struct{ dtr, rts bool }{
		{true, false},
		{false, true},
		{true, true},
		{false, false},
	}
	for _, s := range steps {
		if err := b.SetControlLineState(s.dtr, s.rts); err != nil {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

// SLIP sentinel and escape bytes.
const (
	slipEnd     = 0xC0
	slipEsc     = 0xDB
	slipEscEnd  = 0xDC
	slipEscEsc  = 0xDD
)

// EncodeSLIP escapes 0xC0 and 0xDB with the standard SLIP two-byte
// sequences and wraps the result in frame-boundary 0xC0 bytes.
func EncodeSLIP(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, slipEnd)
	for _, b := range data {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, slipEnd)
	return out
}

// DecodeSLIP reverses EncodeSLIP. The leading and trailing frame-boundary
// bytes, if present, are stripped before unescaping.
func DecodeSLIP(frame []byte) []byte {
	if len(frame) > 0 && frame[0] == slipEnd {
		frame = frame[1:]
	}
	if len(frame) > 0 && frame[len(frame)-1] == slipEnd {
		frame = frame[:len(frame)-1]
	}
	out := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); i++ {
		if frame[i] == slipEsc && i+1 < len(frame) {
			i++
			switch frame[i] {
			case slipEscEnd:
				out = append(out, slipEnd)
			case slipEscEsc:
				out = append(out, slipEsc)
			default:
				out = append(out, frame[i])
			}
			continue
		}
		out = append(out, frame[i])
	}
	return out
}

// ReceiveSLIPFrame reads 64-byte bulk chunks from the data endpoint until a
// complete SLIP frame (leading 0xC0 through trailing 0xC0) is assembled,
// then decodes it.
func (b *Bridge) ReceiveSLIPFrame(timeout time.Duration) ([]byte, error) {
	var frame []byte
	chunk := make([]byte, 64)
	for {
		n, err := b.Read(chunk, timeout)
		if err != nil {
			return nil, err
		}
		frame = append(frame, chunk[:n]...)
		if len(frame) >= 2 && frame[0] == slipEnd && frame[len(frame)-1] == slipEnd {
			break
		}
	}
	return DecodeSLIP(frame), nil
}

// WriteFlashBlock prepends a 32-bit little-endian address and length to
// payload, wraps the result in SLIP, and transmits it.
func (b *Bridge) WriteFlashBlock(address uint32, payload []byte) error {
	body := make([]byte, 8+len(payload))
	body[0] = byte(address)
	body[1] = byte(address >> 8)
	body[2] = byte(address >> 16)
	body[3] = byte(address >> 24)
	length := uint32(len(payload))
	body[4] = byte(length)
	body[5] = byte(length >> 8)
	body[6] = byte(length >> 16)
	body[7] = byte(length >> 24)
	copy(body[8:], payload)

	frame := EncodeSLIP(body)
	_, err := b.Write(frame, 5*time.Second)
	return err
}
