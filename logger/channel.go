package logger

import (
	"io"
	"time"

	usb "github.com/halvard-dev/usbdirect"
)

// Transferor is the subset of *usb.DeviceHandle a Channel depends on, kept
// narrow so tests can supply a fake handle.
type Transferor interface {
	BulkTransfer(endpoint uint8, buf usb.TransferBuffer, timeout time.Duration) (int, error)
	ControlTransfer(req usb.ControlRequest, buf usb.TransferBuffer, timeout time.Duration) (int, error)
}

// Channel wraps a device handle and a pair of bulk IN/OUT endpoints,
// recording every successful read or write (and, optionally, every
// control transfer) as one line in the underlying Logger's sink. The
// transfer itself holds no lock; only the sink write is serialized.
type Channel struct {
	Handle Transferor
	InEP   uint8
	OutEP  uint8
	*Logger
}

// NewChannel wraps handle and writes TX/RX/CTRL lines to sink.
func NewChannel(handle Transferor, inEP, outEP uint8, sink io.Writer) *Channel {
	return &Channel{Handle: handle, InEP: inEP, OutEP: outEP, Logger: New(sink)}
}

// Write performs a bulk OUT transfer and logs the bytes actually written
// as a TX line. A transfer failure is logged and returned without being
// converted into a sink error.
func (c *Channel) Write(data []byte, timeout time.Duration) (int, error) {
	n, err := c.Handle.BulkTransfer(c.OutEP, usb.Out(data), timeout)
	if err != nil {
		c.LogError(TX, c.OutEP, err)
		return n, err
	}
	c.Log(TX, c.OutEP, data[:n])
	return n, nil
}

// Read performs a bulk IN transfer and logs the bytes actually received
// as an RX line.
func (c *Channel) Read(buf []byte, timeout time.Duration) (int, error) {
	n, err := c.Handle.BulkTransfer(c.InEP, usb.In(buf), timeout)
	if err != nil {
		c.LogError(RX, c.InEP, err)
		return n, err
	}
	c.Log(RX, c.InEP, buf[:n])
	return n, nil
}

// ControlTransfer performs a control transfer and logs its outcome as a
// CTRL line, independent of the bulk TX/RX endpoints.
func (c *Channel) ControlTransfer(req usb.ControlRequest, buf usb.TransferBuffer, timeout time.Duration) (int, error) {
	n, err := c.Handle.ControlTransfer(req, buf, timeout)
	if err != nil {
		c.LogError(CTRL, 0, err)
		return n, err
	}
	logged := buf.Data
	if n < len(logged) {
		logged = logged[:n]
	}
	c.Log(CTRL, 0, logged)
	return n, nil
}
