package usb

import (
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modwinusb = windows.NewLazySystemDLL("winusb.dll")

	procWinUsbInitialize             = modwinusb.NewProc("WinUsb_Initialize")
	procWinUsbFree                   = modwinusb.NewProc("WinUsb_Free")
	procWinUsbGetAssociatedInterface = modwinusb.NewProc("WinUsb_GetAssociatedInterface")
	procWinUsbQueryInterfaceSettings = modwinusb.NewProc("WinUsb_QueryInterfaceSettings")
	procWinUsbControlTransfer        = modwinusb.NewProc("WinUsb_ControlTransfer")
	procWinUsbReadPipe               = modwinusb.NewProc("WinUsb_ReadPipe")
	procWinUsbWritePipe              = modwinusb.NewProc("WinUsb_WritePipe")
	procWinUsbSetPipePolicy          = modwinusb.NewProc("WinUsb_SetPipePolicy")
	procWinUsbResetPipe              = modwinusb.NewProc("WinUsb_ResetPipe")
	procWinUsbGetDescriptor          = modwinusb.NewProc("WinUsb_GetDescriptor")
)

const pipeTransferTimeout = 0x03 // WINUSB_PIPE_POLICY_PIPE_TRANSFER_TIMEOUT

type winUsbSetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

type usbInterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	Interface         uint8
}

// Device is a USB device discovered through the WinUSB device-interface
// set. Path is the wide-string device path returned by SetupAPI, stored
// verbatim.
type Device struct {
	Path       string
	Descriptor DeviceDescriptor
}

// DeviceHandle is an opened WinUSB device. handles[0] is the initial
// interface handle from WinUsb_Initialize; additional entries (composite
// devices) are obtained via WinUsb_GetAssociatedInterface and indexed by
// interface number.
type DeviceHandle struct {
	mu         sync.Mutex
	file       windows.Handle
	handles    map[uint8]uintptr
	descriptor DeviceDescriptor
	closed     bool
}

// Enumerate walks the WinUSB device-interface set and reads the device
// descriptor of each device found.
func Enumerate() ([]*Device, error) {
	set, err := setupDiGetClassDevs()
	if err != nil {
		return nil, wrapErr("usb: enumerate", Io, 0, err)
	}
	defer setupDiDestroyDeviceInfoList(set)

	paths, err := enumDeviceInterfacePaths(set)
	if err != nil {
		return nil, wrapErr("usb: enumerate", Io, 0, err)
	}

	devices := make([]*Device, 0, len(paths))
	for _, path := range paths {
		d := &Device{Path: path}
		if h, err := d.Open(); err == nil {
			d.Descriptor = h.descriptor
			h.Close()
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Open creates an overlapped file handle on the device path and
// initializes the WinUSB interface handle on it.
func (d *Device) Open() (*DeviceHandle, error) {
	pathPtr, err := windows.UTF16PtrFromString(d.Path)
	if err != nil {
		return nil, wrapErr("usb: open device", InvalidArgument, 0, err)
	}
	file, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, translateHRESULT("usb: open device", err)
	}

	var winusbHandle uintptr
	ret, _, callErr := procWinUsbInitialize.Call(uintptr(file), uintptr(unsafe.Pointer(&winusbHandle)))
	if ret == 0 {
		windows.CloseHandle(file)
		return nil, translateHRESULT("usb: open device", callErr)
	}

	h := &DeviceHandle{
		file:    file,
		handles: map[uint8]uintptr{0: winusbHandle},
	}
	buf := make([]byte, DeviceDescriptorLength)
	if n, err := h.ControlTransfer(ControlRequest{
		RequestType: 0x80, Request: ReqGetDescriptor, Value: uint16(DescriptorTypeDevice) << 8,
	}, In(buf), time.Second); err == nil && n == DeviceDescriptorLength {
		if desc, derr := ParseDeviceDescriptor(buf); derr == nil {
			h.descriptor = desc
		}
	}
	return h, nil
}

// Descriptor returns the cached device descriptor.
func (h *DeviceHandle) Descriptor() DeviceDescriptor { return h.descriptor }

// Close frees every interface handle, then closes the file handle.
func (h *DeviceHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for _, handle := range h.handles {
		procWinUsbFree.Call(handle)
	}
	h.closed = true
	if err := windows.CloseHandle(h.file); err != nil {
		return translateHRESULT("usb: close device", err)
	}
	return nil
}

// ClaimInterface walks the initial handle and its associated-interface
// series, inserting the handle whose interface number matches iface.
func (h *DeviceHandle) ClaimInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return newErr("usb: claim interface", Disconnected)
	}
	if _, ok := h.handles[iface]; ok {
		return nil
	}
	base := h.handles[0]
	for assoc := uint8(0); ; assoc++ {
		var candidate uintptr
		ret, _, callErr := procWinUsbGetAssociatedInterface.Call(base, uintptr(assoc), uintptr(unsafe.Pointer(&candidate)))
		if ret == 0 {
			return translateHRESULT("usb: claim interface", callErr)
		}
		var desc usbInterfaceDescriptor
		var length uint32 = uint32(unsafe.Sizeof(desc))
		procWinUsbQueryInterfaceSettings.Call(candidate, 0, uintptr(unsafe.Pointer(&desc)), uintptr(unsafe.Pointer(&length)))
		if desc.InterfaceNumber == iface {
			h.handles[iface] = candidate
			return nil
		}
		procWinUsbFree.Call(candidate)
	}
}

// ReleaseInterface frees the interface handle for iface. Releasing
// interface 0 (the initial handle) is a no-op; it is freed on Close.
func (h *DeviceHandle) ReleaseInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if iface == 0 {
		return nil
	}
	handle, ok := h.handles[iface]
	if !ok {
		return nil
	}
	procWinUsbFree.Call(handle)
	delete(h.handles, iface)
	return nil
}

// SetAltSetting is reported as NotSupported: the teacher's corpus exposes
// no WinUSB call for this that doesn't require re-selecting the
// associated interface entirely, which this backend does not model.
func (h *DeviceHandle) SetAltSetting(iface, alt uint8) error {
	return newErr("usb: set alt setting", NotSupported)
}

// ClearHalt resets the pipe's data toggle and clears its stall condition.
func (h *DeviceHandle) ClearHalt(endpoint uint8) error {
	h.mu.Lock()
	handle := h.handles[0]
	h.mu.Unlock()
	ret, _, callErr := procWinUsbResetPipe.Call(handle, uintptr(endpoint))
	if ret == 0 {
		return translateHRESULT("usb: clear halt", callErr)
	}
	return nil
}

// ResetDevice is NotSupported on WinUSB, per §4.5.
func (h *DeviceHandle) ResetDevice() error {
	return newErr("usb: reset device", NotSupported)
}

func (h *DeviceHandle) setPipeTimeout(handle uintptr, endpoint uint8, timeout time.Duration) {
	ms := timeoutMillis(timeout)
	if ms == 0 {
		return
	}
	procWinUsbSetPipePolicy.Call(handle, uintptr(endpoint), pipeTransferTimeout, 4, uintptr(unsafe.Pointer(&ms)))
}

// ControlTransfer issues a control transfer on the default pipe. OUT
// payloads are copied to a freshly allocated buffer before submission, per
// §4.5's documented requirement.
func (h *DeviceHandle) ControlTransfer(req ControlRequest, buf TransferBuffer, timeout time.Duration) (int, error) {
	if err := checkControlDirection(req, buf); err != nil {
		return 0, err
	}
	h.mu.Lock()
	handle := h.handles[0]
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, newErr("usb: control transfer", Disconnected)
	}

	setup := winUsbSetupPacket{
		RequestType: req.RequestType,
		Request:     req.Request,
		Value:       req.Value,
		Index:       req.Index,
		Length:      uint16(len(buf.Data)),
	}

	var dataPtr unsafe.Pointer
	data := buf.Data
	if buf.Dir == DirectionOut && len(data) > 0 {
		owned := make([]byte, len(data))
		copy(owned, data)
		data = owned
	}
	if len(data) > 0 {
		dataPtr = unsafe.Pointer(&data[0])
	}

	var transferred uint32
	ret, _, callErr := procWinUsbControlTransfer.Call(
		handle,
		uintptr(unsafe.Pointer(&setup)),
		uintptr(dataPtr),
		uintptr(len(data)),
		uintptr(unsafe.Pointer(&transferred)),
		0,
	)
	if ret == 0 {
		return 0, translateHRESULT("usb: control transfer", callErr)
	}
	return int(transferred), nil
}

// BulkTransfer reads or writes a pipe, selected by the endpoint's
// direction bit.
func (h *DeviceHandle) BulkTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.pipeTransfer(endpoint, buf, timeout)
}

// InterruptTransfer shares its implementation with BulkTransfer; WinUSB
// does not distinguish the two at this layer.
func (h *DeviceHandle) InterruptTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.pipeTransfer(endpoint, buf, timeout)
}

func (h *DeviceHandle) pipeTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	if err := checkEndpointDirection(endpoint, buf); err != nil {
		return 0, err
	}
	h.mu.Lock()
	handle := h.handles[0]
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, newErr("usb: transfer", Disconnected)
	}
	h.setPipeTimeout(handle, endpoint, timeout)

	var dataPtr unsafe.Pointer
	if len(buf.Data) > 0 {
		dataPtr = unsafe.Pointer(&buf.Data[0])
	}
	var transferred uint32
	var proc *windows.LazyProc
	if buf.Dir == DirectionIn {
		proc = procWinUsbReadPipe
	} else {
		proc = procWinUsbWritePipe
	}
	ret, _, callErr := proc.Call(
		handle, uintptr(endpoint),
		uintptr(dataPtr), uintptr(len(buf.Data)),
		uintptr(unsafe.Pointer(&transferred)), 0,
	)
	if ret == 0 {
		return 0, translateHRESULT("usb: transfer", callErr)
	}
	return int(transferred), nil
}

// ReadStringDescriptor issues GET_DESCRIPTOR(STRING) on the default pipe.
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

func translateHRESULT(op string, err error) error {
	errno, ok := err.(syscall.Errno)
	if !ok {
		return wrapErr(op, Unknown, 0, err)
	}
	switch errno {
	case windows.ERROR_DEVICE_NOT_CONNECTED, windows.ERROR_DEV_NOT_EXIST:
		return wrapErr(op, Disconnected, int(errno), err)
	case windows.WAIT_TIMEOUT:
		return wrapErr(op, Timeout, int(errno), err)
	case windows.ERROR_INVALID_PARAMETER:
		return wrapErr(op, InvalidArgument, int(errno), err)
	default:
		return wrapErr(op, Io, int(errno), err)
	}
}
