// Package dfu implements the USB Device Firmware Upgrade class protocol:
// DNLOAD/UPLOAD transfers, status polling, and the mass-erase sequence
// used by STM32 and compatible DFU bootloaders.
package dfu

import (
	"encoding/binary"
	"time"

	usb "github.com/halvard-dev/usbdirect"
)

// Transferor is the subset of *usb.DeviceHandle this package depends on,
// kept narrow so tests can supply a fake handle.
type Transferor interface {
	ControlTransfer(req usb.ControlRequest, buf usb.TransferBuffer, timeout time.Duration) (int, error)
}

const (
	reqTypeHostToDeviceClassInterface = 0x21
	reqTypeDeviceToHostClassInterface = 0xA1

	ReqDetach    = 0x00
	ReqDNLoad    = 0x01
	ReqUpload    = 0x02
	ReqGetStatus = 0x03
	ReqClrStatus = 0x04
	ReqGetState  = 0x05
	ReqAbort     = 0x06
)

// State values reported in the status block's bState field.
const (
	StateAppIdle              = 0
	StateAppDetach            = 1
	StateDFUIdle              = 2
	StateDFUDNLoadSync        = 3
	StateDFUDNBusy            = 4
	StateDFUDNLoadIdle        = 5
	StateDFUManifestSync      = 6
	StateDFUManifest          = 7
	StateDFUManifestWaitReset = 8
	StateDFUUploadIdle        = 9
	StateDFUError             = 10
)

// Status is the 6-byte GETSTATUS response.
type Status struct {
	Status      uint8
	PollTimeout time.Duration
	State       uint8
	StringIndex uint8
}

func parseStatus(b []byte) (Status, error) {
	if len(b) < 6 {
		return Status{}, &usb.Error{Kind: usb.Io, Op: "dfu: parse status", Code: len(b)}
	}
	pollMillis := uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16
	return Status{
		Status:      b[0],
		PollTimeout: time.Duration(pollMillis) * time.Millisecond,
		State:       b[4],
		StringIndex: b[5],
	}, nil
}

// STM32 preset: DfuSe devices enumerate under ST's vendor ID with a fixed
// bootloader product ID.
const (
	STVendorID  = 0x0483
	STProductID = 0xDF11
)

// Bridge wraps an opened DFU interface handle.
type Bridge struct {
	Handle    Transferor
	Interface uint8
}

// GetStatus issues GETSTATUS and parses the 6-byte response.
func (b *Bridge) GetStatus() (Status, error) {
	req := usb.ControlRequest{
		RequestType: reqTypeDeviceToHostClassInterface,
		Request:     ReqGetStatus,
		Index:       uint16(b.Interface),
	}
	buf := make([]byte, 6)
	n, err := b.Handle.ControlTransfer(req, usb.In(buf), time.Second)
	if err != nil {
		return Status{}, err
	}
	return parseStatus(buf[:n])
}

// ClearStatus issues CLRSTATUS, acknowledging an error state reported by
// GetStatus so the device returns to dfuIDLE.
func (b *Bridge) ClearStatus() error {
	req := usb.ControlRequest{
		RequestType: reqTypeHostToDeviceClassInterface,
		Request:     ReqClrStatus,
		Index:       uint16(b.Interface),
	}
	_, err := b.Handle.ControlTransfer(req, usb.Out(nil), time.Second)
	return err
}

// waitWhileBusy polls GetStatus until the device leaves dfuDNBUSY. A
// reported poll timeout of zero is not treated as "no wait": bootloaders
// commonly report 0ms while genuinely busy (e.g. during a block erase),
// and spinning the host's control pipe at full rate against that window
// wastes bus bandwidth without speeding up the device. A minimum 1ms poll
// interval is enforced so the loop always yields between GETSTATUS calls.
func (b *Bridge) waitWhileBusy() (Status, error) {
	for {
		status, err := b.GetStatus()
		if err != nil {
			return Status{}, err
		}
		if status.State != StateDFUDNBusy {
			return status, nil
		}
		wait := status.PollTimeout
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		time.Sleep(wait)
	}
}

// Download sends one DNLOAD block at the given block number and waits for
// the device to leave dfuDNBUSY. A zero-length block signals the end of
// the download sequence per the DFU spec.
func (b *Bridge) Download(block uint16, data []byte) error {
	req := usb.ControlRequest{
		RequestType: reqTypeHostToDeviceClassInterface,
		Request:     ReqDNLoad,
		Value:       block,
		Index:       uint16(b.Interface),
	}
	if _, err := b.Handle.ControlTransfer(req, usb.Out(data), time.Second); err != nil {
		return err
	}
	_, err := b.waitWhileBusy()
	return err
}

// Upload reads one UPLOAD block at the given block number into buf,
// returning the number of bytes received; a short read indicates the end
// of the upload.
func (b *Bridge) Upload(block uint16, buf []byte) (int, error) {
	req := usb.ControlRequest{
		RequestType: reqTypeDeviceToHostClassInterface,
		Request:     ReqUpload,
		Value:       block,
		Index:       uint16(b.Interface),
	}
	return b.Handle.ControlTransfer(req, usb.In(buf), time.Second)
}

// MassErase issues DfuSe's special block-0 erase command (the two-byte
// payload 0x41 0x00), which erases the target's full flash array, then
// polls GETSTATUS, sleeping the reported poll timeout (at least 1ms)
// between polls, for up to 5 seconds before reporting Timeout.
func (b *Bridge) MassErase() error {
	req := usb.ControlRequest{
		RequestType: reqTypeHostToDeviceClassInterface,
		Request:     ReqDNLoad,
		Value:       0,
		Index:       uint16(b.Interface),
	}
	if _, err := b.Handle.ControlTransfer(req, usb.Out([]byte{0x41, 0x00}), time.Second); err != nil {
		return err
	}
	return b.waitMassErase()
}

// EraseSector issues DfuSe's page-erase command for the given flash page
// address.
func (b *Bridge) EraseSector(address uint32) error {
	payload := make([]byte, 5)
	payload[0] = 0x41
	binary.LittleEndian.PutUint32(payload[1:], address)
	if err := b.Download(0, payload); err != nil {
		return err
	}
	return b.waitMassErase()
}

func (b *Bridge) waitMassErase() error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := b.GetStatus()
		if err != nil {
			return err
		}
		if status.State != StateDFUDNBusy {
			return nil
		}
		wait := status.PollTimeout
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		time.Sleep(wait)
	}
	return &usb.Error{Kind: usb.Timeout, Op: "dfu: mass erase"}
}

// SetAddressPointer issues DfuSe's address-pointer command, selecting the
// flash address the next DNLOAD block targets.
func (b *Bridge) SetAddressPointer(address uint32) error {
	payload := make([]byte, 5)
	payload[0] = 0x21
	binary.LittleEndian.PutUint32(payload[1:], address)
	return b.Download(0, payload)
}

// Leave exits DFU mode and starts the newly programmed application by
// sending an empty DNLOAD block, per the DfuSe manifestation sequence.
func (b *Bridge) Leave() error {
	return b.Download(2, nil)
}
