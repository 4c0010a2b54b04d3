//go:build darwin

package usb

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation
#include <IOKit/IOKitLib.h>
#include <IOKit/usb/IOUSBLib.h>
*/
import "C"

import (
	"sync"
	"time"
	"unsafe"
)

// Device is a USB device discovered via IOKit's USB device class matching.
// The device descriptor is cached at enumeration time (it is the only
// enumeration-time I/O). Only the IOKit service object is kept: the plug-in
// used to fetch the descriptor is released before Enumerate returns, and
// Open creates its own.
type Device struct {
	service    C.io_service_t
	Descriptor DeviceDescriptor
}

// DeviceHandle is an opened IOKit device. It holds the device-interface
// pointer plus a mutex-guarded map of claimed interfaces.
type DeviceHandle struct {
	mu         sync.Mutex
	iokit      *iokitDevice
	interfaces map[uint8]*iokitInterface
	descriptor DeviceDescriptor
	closed     bool
}

// Enumerate matches on the standard USB device class name, creates a
// plug-in interface for each service, and fetches its 18-byte device
// descriptor.
func Enumerate() ([]*Device, error) {
	iter := C.usbdirect_matching_services()
	if iter == 0 {
		return nil, nil
	}
	defer C.IOObjectRelease(iter)

	var devices []*Device
	for {
		service := C.IOIteratorNext(iter)
		if service == 0 {
			break
		}
		d := &Device{service: service}
		if desc, err := fetchDeviceDescriptor(service); err == nil {
			d.Descriptor = desc
		} else {
			C.IOObjectRelease(service)
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func fetchDeviceDescriptor(service C.io_service_t) (DeviceDescriptor, error) {
	var score C.SInt32
	plugin := C.usbdirect_create_device_plugin(service, &score)
	if plugin == nil {
		return DeviceDescriptor{}, newErr("usb: enumerate", Io)
	}
	defer (*plugin).Release(unsafe.Pointer(plugin))

	dev := C.usbdirect_device_interface(plugin)
	if dev == nil {
		return DeviceDescriptor{}, newErr("usb: enumerate", Io)
	}
	defer (*dev).Release(unsafe.Pointer(dev))

	buf := make([]byte, DeviceDescriptorLength)
	result := C.usbdirect_get_device_descriptor(dev, unsafe.Pointer(&buf[0]), 1000)
	if result != 0 {
		return DeviceDescriptor{}, translateIOReturn("usb: enumerate", int(result))
	}
	return ParseDeviceDescriptor(buf)
}

// Open calls the "open-seize" variant, taking control even if another
// client already holds the device.
func (d *Device) Open() (*DeviceHandle, error) {
	var score C.SInt32
	plugin := C.usbdirect_create_device_plugin(d.service, &score)
	if plugin == nil {
		return nil, newErr("usb: open device", Io)
	}
	dev := C.usbdirect_device_interface(plugin)
	if dev == nil {
		(*plugin).Release(unsafe.Pointer(plugin))
		return nil, newErr("usb: open device", Io)
	}
	if result := C.usbdirect_device_open_seize(dev); result != 0 {
		(*dev).Release(unsafe.Pointer(dev))
		(*plugin).Release(unsafe.Pointer(plugin))
		return nil, translateIOReturn("usb: open device", int(result))
	}
	return &DeviceHandle{
		iokit:      &iokitDevice{plugin: plugin, dev: dev},
		interfaces: make(map[uint8]*iokitInterface),
		descriptor: d.Descriptor,
	}, nil
}

// Descriptor returns the cached device descriptor.
func (h *DeviceHandle) Descriptor() DeviceDescriptor { return h.descriptor }

// Close releases every claimed interface, then the device-interface
// pointer.
func (h *DeviceHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for iface, handle := range h.interfaces {
		handle.Release()
		delete(h.interfaces, iface)
	}
	h.iokit.Release()
	h.closed = true
	return nil
}

// ClaimInterface creates an interface iterator with the "don't care"
// wildcard in every filter field, finds the service whose interface
// number matches iface, and opens it.
func (h *DeviceHandle) ClaimInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return newErr("usb: claim interface", Disconnected)
	}
	if _, ok := h.interfaces[iface]; ok {
		return nil
	}

	var iter C.io_iterator_t
	if result := C.usbdirect_create_interface_iterator(h.iokit.dev, &iter); result != 0 {
		return translateIOReturn("usb: claim interface", int(result))
	}
	defer C.IOObjectRelease(iter)

	for {
		service := C.IOIteratorNext(iter)
		if service == 0 {
			break
		}
		var score C.SInt32
		plugin := C.usbdirect_create_interface_plugin(service, &score)
		C.IOObjectRelease(service)
		if plugin == nil {
			continue
		}
		ifaceIntf := C.usbdirect_interface_interface(plugin)
		if ifaceIntf == nil {
			(*plugin).Release(unsafe.Pointer(plugin))
			continue
		}
		number := uint8(C.usbdirect_interface_number(ifaceIntf))
		if number != iface {
			(*ifaceIntf).Release(unsafe.Pointer(ifaceIntf))
			(*plugin).Release(unsafe.Pointer(plugin))
			continue
		}
		if result := C.usbdirect_interface_open(ifaceIntf); result != 0 {
			(*ifaceIntf).Release(unsafe.Pointer(ifaceIntf))
			(*plugin).Release(unsafe.Pointer(plugin))
			return translateIOReturn("usb: claim interface", int(result))
		}
		h.interfaces[iface] = &iokitInterface{plugin: plugin, iface: ifaceIntf, number: number}
		return nil
	}
	return newErr("usb: claim interface", InvalidArgument)
}

// ReleaseInterface releases a previously claimed interface.
func (h *DeviceHandle) ReleaseInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	handle, ok := h.interfaces[iface]
	if !ok {
		return nil
	}
	handle.Release()
	delete(h.interfaces, iface)
	return nil
}

// SetAltSetting is NotSupported: the corpus's IOKit backend does not model
// alternate-setting selection below the interface-open call.
func (h *DeviceHandle) SetAltSetting(iface, alt uint8) error {
	return newErr("usb: set alt setting", NotSupported)
}

// ClearHalt clears a stalled endpoint's halt condition via the claimed
// interface owning that endpoint.
func (h *DeviceHandle) ClearHalt(endpoint uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, handle := range h.interfaces {
		if pipeRef := C.usbdirect_pipe_ref_for_endpoint(handle.iface, C.UInt8(endpoint)); pipeRef != 0 {
			if result := C.usbdirect_clear_pipe_stall(handle.iface, pipeRef); result != 0 {
				return translateIOReturn("usb: clear halt", int(result))
			}
			return nil
		}
	}
	return newErr("usb: clear halt", InvalidArgument)
}

// ResetDevice calls the device-interface's ResetDevice.
func (h *DeviceHandle) ResetDevice() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if result := C.usbdirect_device_reset(h.iokit.dev); result != 0 {
		return translateIOReturn("usb: reset device", int(result))
	}
	return nil
}

// ControlTransfer issues a device request with noDataTimeout and
// completionTimeout both equal to the caller's timeout in milliseconds.
func (h *DeviceHandle) ControlTransfer(req ControlRequest, buf TransferBuffer, timeout time.Duration) (int, error) {
	if err := checkControlDirection(req, buf); err != nil {
		return 0, err
	}
	h.mu.Lock()
	dev := h.iokit.dev
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, newErr("usb: control transfer", Disconnected)
	}

	var dataPtr unsafe.Pointer
	if len(buf.Data) > 0 {
		dataPtr = unsafe.Pointer(&buf.Data[0])
	}
	var transferred C.UInt32
	result := C.usbdirect_device_request(
		dev,
		C.UInt8(req.RequestType), C.UInt8(req.Request),
		C.UInt16(req.Value), C.UInt16(req.Index),
		dataPtr, C.UInt16(len(buf.Data)),
		C.UInt32(timeoutMillis(timeout)), &transferred,
	)
	if result != 0 {
		return int(transferred), translateIOReturn("usb: control transfer", int(result))
	}
	return int(transferred), nil
}

// BulkTransfer requires a claimed interface: it looks up the interface
// whose endpoint list contains endpoint, obtains its pipe reference, and
// calls read-pipe or write-pipe with a timeout.
func (h *DeviceHandle) BulkTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.pipeTransfer(endpoint, buf, timeout)
}

// InterruptTransfer shares its implementation with BulkTransfer; IOKit
// does not distinguish the two at the pipe level.
func (h *DeviceHandle) InterruptTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.pipeTransfer(endpoint, buf, timeout)
}

func (h *DeviceHandle) pipeTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	if err := checkEndpointDirection(endpoint, buf); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, newErr("usb: transfer", Disconnected)
	}

	for _, handle := range h.interfaces {
		pipeRef := C.usbdirect_pipe_ref_for_endpoint(handle.iface, C.UInt8(endpoint))
		if pipeRef == 0 {
			continue
		}
		ms := C.UInt32(timeoutMillis(timeout))
		if buf.Dir == DirectionIn {
			length := C.UInt32(len(buf.Data))
			var dataPtr unsafe.Pointer
			if len(buf.Data) > 0 {
				dataPtr = unsafe.Pointer(&buf.Data[0])
			}
			result := C.usbdirect_read_pipe(handle.iface, pipeRef, dataPtr, &length, ms)
			if result != 0 {
				return int(length), translateIOReturn("usb: transfer", int(result))
			}
			return int(length), nil
		}
		var dataPtr unsafe.Pointer
		if len(buf.Data) > 0 {
			dataPtr = unsafe.Pointer(&buf.Data[0])
		}
		result := C.usbdirect_write_pipe(handle.iface, pipeRef, dataPtr, C.UInt32(len(buf.Data)), ms)
		if result != 0 {
			return 0, translateIOReturn("usb: transfer", int(result))
		}
		return len(buf.Data), nil
	}
	return 0, newErr("usb: transfer", InvalidArgument)
}

// ReadStringDescriptor issues GET_DESCRIPTOR(STRING) via ControlTransfer.
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

// IOKit's IOReturn codes are packed (system, subsystem, code); this
// mapping covers the handful the façade needs to distinguish rather than
// decoding the full bit layout.
const (
	kIOReturnNoDevice    = -536870208 // 0xe00002c0 as a signed 32-bit value
	kIOReturnTimeout     = -536870186 // 0xe00002d6
	kIOReturnBadArgument = -536870206 // 0xe00002c2
)

func translateIOReturn(op string, code int) error {
	switch code {
	case kIOReturnNoDevice:
		return wrapErr(op, Disconnected, code, nil)
	case kIOReturnTimeout:
		return wrapErr(op, Timeout, code, nil)
	case kIOReturnBadArgument:
		return wrapErr(op, InvalidArgument, code, nil)
	default:
		return wrapErr(op, Io, code, nil)
	}
}
