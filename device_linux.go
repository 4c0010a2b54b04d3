package usb

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// usbdevfs ioctl command numbers, from linux/usbdevice_fs.h. Computed the
// same way as the kernel header (_IOR/_IOW/_IOWR over 'U'); kept as
// constants rather than importing a macro package for nine numbers (see
// SPEC_FULL.md §4.14).
const (
	usbdevfsControl          = 0xc0185500
	usbdevfsBulk             = 0xc0185502
	usbdevfsResetEP          = 0x80045503
	usbdevfsSetInterface     = 0x80085504
	usbdevfsGetCapabilities  = 0x8004551a
	usbdevfsClaimInterface   = 0x8004550f
	usbdevfsReleaseInterface = 0x80045510
	usbdevfsClearHalt        = 0x80045515
	usbdevfsReset            = 0x00005514
)

// USBDEVFS_CAP_NO_PACKET_SIZE_LIM is the capability bit that exempts a
// device node from the 16 KiB bulk-transfer chunking below.
const usbdevfsCapNoPacketSizeLim = 0x04

const bulkChunkSize = 16384

type usbdevfsCtrlTransfer struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Timeout     uint32
	_           [4]byte // align Data to 8 bytes like the kernel struct
	Data        uintptr
}

type usbdevfsBulkTransfer struct {
	Endpoint uint32
	Length   uint32
	Timeout  uint32
	Data     uintptr
}

// Device is a bus-attached USB device discovered via sysfs. It is
// immutable after construction and does not guarantee the device is still
// attached; Open may fail.
type Device struct {
	Path       string
	Bus        uint8
	Address    uint8
	Descriptor DeviceDescriptor
}

// DeviceHandle is an opened device. It exclusively owns the usbfs file
// descriptor and the set of claimed interfaces.
type DeviceHandle struct {
	mu           sync.Mutex
	fd           int
	closed       bool
	claimed      map[uint8]bool
	descriptor   DeviceDescriptor
	capabilities uint32
}

// Enumerate scans the kernel's USB device tree via sysfs and returns a
// snapshot of attached devices. An empty, non-error result means no
// devices are attached.
func Enumerate() ([]*Device, error) {
	return enumerateSysfs()
}

// Open opens the device's node at /dev/bus/usb/BBB/DDD read-write, falling
// back to read-only on permission-denied, then caches the usbfs
// capabilities word.
func (d *Device) Open() (*DeviceHandle, error) {
	fd, err := unix.Open(d.Path, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.EACCES || err == unix.EPERM {
			fd, err = unix.Open(d.Path, unix.O_RDONLY, 0)
		}
		if err != nil {
			return nil, translateErrno("usb: open device", err)
		}
	}
	h := &DeviceHandle{
		fd:         fd,
		claimed:    make(map[uint8]bool),
		descriptor: d.Descriptor,
	}
	var caps uint32
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsGetCapabilities, uintptr(unsafe.Pointer(&caps))); errno == 0 {
		h.capabilities = caps
	}
	return h, nil
}

// Descriptor returns the cached device descriptor.
func (h *DeviceHandle) Descriptor() DeviceDescriptor { return h.descriptor }

// Close releases every claimed interface (best effort), then closes the
// underlying file descriptor. Safe to call more than once.
func (h *DeviceHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for iface := range h.claimed {
		_ = h.releaseInterfaceLocked(iface)
	}
	h.closed = true
	if err := unix.Close(h.fd); err != nil {
		return translateErrno("usb: close device", err)
	}
	return nil
}

// ClaimInterface reserves an interface for transfers. Re-claiming an
// already-claimed interface is a no-op.
func (h *DeviceHandle) ClaimInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return newErr("usb: claim interface", Disconnected)
	}
	if h.claimed[iface] {
		return nil
	}
	n := uint32(iface)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsClaimInterface, uintptr(unsafe.Pointer(&n))); errno != 0 {
		return translateErrno("usb: claim interface", errno)
	}
	h.claimed[iface] = true
	return nil
}

// ReleaseInterface releases a previously claimed interface. Releasing an
// interface that was never claimed is a no-op.
func (h *DeviceHandle) ReleaseInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return newErr("usb: release interface", Disconnected)
	}
	return h.releaseInterfaceLocked(iface)
}

func (h *DeviceHandle) releaseInterfaceLocked(iface uint8) error {
	if !h.claimed[iface] {
		return nil
	}
	n := uint32(iface)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsReleaseInterface, uintptr(unsafe.Pointer(&n))); errno != 0 {
		return translateErrno("usb: release interface", errno)
	}
	delete(h.claimed, iface)
	return nil
}

// SetAltSetting sets the alternate setting for an interface.
func (h *DeviceHandle) SetAltSetting(iface, alt uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return newErr("usb: set alt setting", Disconnected)
	}
	req := struct{ Interface, AltSetting uint32 }{uint32(iface), uint32(alt)}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsSetInterface, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return translateErrno("usb: set alt setting", errno)
	}
	return nil
}

// ClearHalt clears a stalled endpoint's halt condition.
func (h *DeviceHandle) ClearHalt(endpoint uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return newErr("usb: clear halt", Disconnected)
	}
	ep := uint32(endpoint)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsClearHalt, uintptr(unsafe.Pointer(&ep))); errno != 0 {
		return translateErrno("usb: clear halt", errno)
	}
	return nil
}

// ResetDevice issues a USB port reset on the device.
func (h *DeviceHandle) ResetDevice() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return newErr("usb: reset device", Disconnected)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsReset, 0); errno != 0 {
		return translateErrno("usb: reset device", errno)
	}
	return nil
}

// ControlTransfer performs a control transfer on endpoint zero.
func (h *DeviceHandle) ControlTransfer(req ControlRequest, buf TransferBuffer, timeout time.Duration) (int, error) {
	if err := checkControlDirection(req, buf); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, newErr("usb: control transfer", Disconnected)
	}
	var dataPtr uintptr
	if len(buf.Data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&buf.Data[0]))
	}
	xfer := usbdevfsCtrlTransfer{
		RequestType: req.RequestType,
		Request:     req.Request,
		Value:       req.Value,
		Index:       req.Index,
		Length:      uint16(len(buf.Data)),
		Timeout:     timeoutMillis(timeout),
		Data:        dataPtr,
	}
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsControl, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return 0, translateErrno("usb: control transfer", errno)
	}
	return int(n), nil
}

// BulkTransfer performs a bulk transfer on the given endpoint, chunking at
// 16384 bytes on devices that lack the no-packet-size-limit capability and
// stopping at the first short submission.
func (h *DeviceHandle) BulkTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.transfer(endpoint, buf, timeout)
}

// InterruptTransfer shares its implementation with BulkTransfer at this
// layer; usbfs does not distinguish the two ioctls.
func (h *DeviceHandle) InterruptTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.transfer(endpoint, buf, timeout)
}

func (h *DeviceHandle) transfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	if err := checkEndpointDirection(endpoint, buf); err != nil {
		return 0, err
	}
	h.mu.Lock()
	chunked := h.capabilities&usbdevfsCapNoPacketSizeLim == 0
	fd := h.fd
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, newErr("usb: transfer", Disconnected)
	}

	return chunkedTransfer(buf.Data, chunked, func(chunk []byte) (int, error) {
		return submitBulk(fd, endpoint, chunk, timeout)
	})
}

// chunkedTransfer submits data to submit in chunks of at most
// bulkChunkSize when chunked is true (the device lacks the
// no-packet-size-limit capability), stopping at the first short
// submission — the normal USB bulk end-of-stream signal — or once all of
// data has been submitted. Pulled out of (*DeviceHandle).transfer as a
// pure function so the chunking/short-packet logic is testable without a
// real usbfs file descriptor.
func chunkedTransfer(data []byte, chunked bool, submit func(chunk []byte) (int, error)) (int, error) {
	total := 0
	for {
		chunk := data
		if chunked && len(chunk) > bulkChunkSize {
			chunk = chunk[:bulkChunkSize]
		}
		n, err := submit(chunk)
		total += n
		if err != nil {
			return total, err
		}
		data = data[len(chunk):]
		if n < len(chunk) {
			// short packet: end of stream
			break
		}
		if len(data) == 0 {
			break
		}
	}
	return total, nil
}

func submitBulk(fd int, endpoint uint8, chunk []byte, timeout time.Duration) (int, error) {
	var dataPtr uintptr
	if len(chunk) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&chunk[0]))
	}
	xfer := usbdevfsBulkTransfer{
		Endpoint: uint32(endpoint),
		Length:   uint32(len(chunk)),
		Timeout:  timeoutMillis(timeout),
		Data:     dataPtr,
	}
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbdevfsBulk, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return 0, translateErrno("usb: bulk transfer", errno)
	}
	return int(n), nil
}

// ReadStringDescriptor issues GET_DESCRIPTOR(STRING) on endpoint zero with
// a one-second timeout.
func (h *DeviceHandle) ReadStringDescriptor(index uint8, langID uint16, buf []byte) (int, error) {
	req := ControlRequest{
		RequestType: 0x80,
		Request:     ReqGetDescriptor,
		Value:       uint16(DescriptorTypeString)<<8 | uint16(index),
		Index:       langID,
	}
	return h.ControlTransfer(req, In(buf), time.Second)
}

// ReadStringDescriptorASCII reads the string descriptor at index using
// LangIDUS and converts it to ASCII.
func (h *DeviceHandle) ReadStringDescriptorASCII(index uint8) (string, error) {
	buf := make([]byte, 255)
	n, err := h.ReadStringDescriptor(index, LangIDUS, buf)
	if err != nil {
		return "", err
	}
	return StringDescriptorASCII(buf[:n])
}

func translateErrno(op string, err error) error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return wrapErr(op, Unknown, 0, err)
	}
	switch errno {
	case unix.ENOENT, unix.ENODEV:
		return wrapErr(op, Disconnected, int(errno), err)
	case unix.ETIMEDOUT:
		return wrapErr(op, Timeout, int(errno), err)
	case unix.EINVAL:
		return wrapErr(op, InvalidArgument, int(errno), err)
	default:
		return wrapErr(op, Io, int(errno), fmt.Errorf("%w", err))
	}
}
