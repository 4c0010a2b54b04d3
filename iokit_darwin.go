//go:build darwin

package usb

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation
#include <IOKit/IOKitLib.h>
#include <IOKit/usb/IOUSBLib.h>
#include <CoreFoundation/CoreFoundation.h>
#include <string.h>

static io_iterator_t usbdirect_matching_services(void) {
	io_iterator_t iter = 0;
	CFMutableDictionaryRef matching = IOServiceMatching(kIOUSBDeviceClassName);
	IOServiceGetMatchingServices(kIOMasterPortDefault, matching, &iter);
	return iter;
}

static IOCFPlugInInterface **usbdirect_create_device_plugin(io_service_t service, SInt32 *score) {
	IOCFPlugInInterface **plugin = NULL;
	IOCreatePlugInInterfaceForService(service, kIOUSBDeviceUserClientTypeID, kIOCFPlugInInterfaceID, &plugin, score);
	return plugin;
}

static IOUSBDeviceInterface **usbdirect_device_interface(IOCFPlugInInterface **plugin) {
	IOUSBDeviceInterface **dev = NULL;
	(*plugin)->QueryInterface(plugin, CFUUIDGetUUIDBytes(kIOUSBDeviceInterfaceID), (LPVOID *)&dev);
	return dev;
}

static IOReturn usbdirect_get_device_descriptor(IOUSBDeviceInterface **dev, void *buf, UInt32 timeoutMs) {
	IOUSBDevRequestTO req;
	memset(&req, 0, sizeof(req));
	req.bmRequestType = 0x80;
	req.bRequest = 0x06;
	req.wValue = (1 << 8);
	req.wIndex = 0;
	req.wLength = 18;
	req.pData = buf;
	req.noDataTimeout = timeoutMs;
	req.completionTimeout = timeoutMs;
	return (*dev)->DeviceRequestTO(dev, &req);
}

static IOReturn usbdirect_device_open_seize(IOUSBDeviceInterface **dev) {
	return (*dev)->USBDeviceOpenSeize(dev);
}

static IOReturn usbdirect_device_request(IOUSBDeviceInterface **dev, UInt8 bmRequestType, UInt8 bRequest, UInt16 wValue, UInt16 wIndex, void *data, UInt16 length, UInt32 timeoutMs, UInt32 *transferred) {
	IOUSBDevRequestTO req;
	memset(&req, 0, sizeof(req));
	req.bmRequestType = bmRequestType;
	req.bRequest = bRequest;
	req.wValue = wValue;
	req.wIndex = wIndex;
	req.wLength = length;
	req.pData = data;
	req.noDataTimeout = timeoutMs;
	req.completionTimeout = timeoutMs;
	IOReturn result = (*dev)->DeviceRequestTO(dev, &req);
	*transferred = req.wLenDone;
	return result;
}

static IOReturn usbdirect_device_reset(IOUSBDeviceInterface **dev) {
	return (*dev)->ResetDevice(dev);
}

static IOReturn usbdirect_create_interface_iterator(IOUSBDeviceInterface **dev, io_iterator_t *iter) {
	IOUSBFindInterfaceRequest req;
	req.bInterfaceClass = kIOUSBFindInterfaceDontCare;
	req.bInterfaceSubClass = kIOUSBFindInterfaceDontCare;
	req.bInterfaceProtocol = kIOUSBFindInterfaceDontCare;
	req.bAlternateSetting = kIOUSBFindInterfaceDontCare;
	return (*dev)->CreateInterfaceIterator(dev, &req, iter);
}

static IOCFPlugInInterface **usbdirect_create_interface_plugin(io_service_t service, SInt32 *score) {
	IOCFPlugInInterface **plugin = NULL;
	IOCreatePlugInInterfaceForService(service, kIOUSBInterfaceUserClientTypeID, kIOCFPlugInInterfaceID, &plugin, score);
	return plugin;
}

static IOUSBInterfaceInterface **usbdirect_interface_interface(IOCFPlugInInterface **plugin) {
	IOUSBInterfaceInterface **iface = NULL;
	(*plugin)->QueryInterface(plugin, CFUUIDGetUUIDBytes(kIOUSBInterfaceInterfaceID), (LPVOID *)&iface);
	return iface;
}

static UInt8 usbdirect_interface_number(IOUSBInterfaceInterface **iface) {
	UInt8 n = 0;
	(*iface)->GetInterfaceNumber(iface, &n);
	return n;
}

static IOReturn usbdirect_interface_open(IOUSBInterfaceInterface **iface) {
	return (*iface)->USBInterfaceOpen(iface);
}

static UInt8 usbdirect_pipe_ref_for_endpoint(IOUSBInterfaceInterface **iface, UInt8 endpointAddr) {
	UInt8 numEndpoints = 0;
	(*iface)->GetNumEndpoints(iface, &numEndpoints);
	for (UInt8 pipeRef = 1; pipeRef <= numEndpoints; pipeRef++) {
		UInt8 direction, number, transferType, interval;
		UInt16 maxPacketSize;
		if ((*iface)->GetPipeProperties(iface, pipeRef, &direction, &number, &transferType, &maxPacketSize, &interval) == 0) {
			UInt8 addr = number | (direction == kUSBIn ? 0x80 : 0x00);
			if (addr == endpointAddr) {
				return pipeRef;
			}
		}
	}
	return 0;
}

static IOReturn usbdirect_read_pipe(IOUSBInterfaceInterface **iface, UInt8 pipeRef, void *buf, UInt32 *length, UInt32 timeoutMs) {
	return (*iface)->ReadPipeTO(iface, pipeRef, buf, length, timeoutMs, timeoutMs);
}

static IOReturn usbdirect_write_pipe(IOUSBInterfaceInterface **iface, UInt8 pipeRef, void *buf, UInt32 length, UInt32 timeoutMs) {
	return (*iface)->WritePipeTO(iface, pipeRef, buf, length, timeoutMs, timeoutMs);
}

static IOReturn usbdirect_clear_pipe_stall(IOUSBInterfaceInterface **iface, UInt8 pipeRef) {
	return (*iface)->ClearPipeStall(iface, pipeRef);
}
*/
import "C"
import "unsafe"

// iokitDevice wraps a reference-counted IOUSBDeviceInterface plugin
// pointer; Release is the device's drop action, matching IOKit's own
// plug-in refcounting discipline.
type iokitDevice struct {
	plugin *C.IOCFPlugInInterface
	dev    **C.IOUSBDeviceInterface
}

func (d *iokitDevice) Release() {
	if d.dev != nil {
		(*d.dev).Release(unsafe.Pointer(d.dev))
	}
	if d.plugin != nil {
		(*d.plugin).Release(unsafe.Pointer(d.plugin))
	}
}

// iokitInterface wraps a claimed interface's plug-in pointer.
type iokitInterface struct {
	plugin *C.IOCFPlugInInterface
	iface  **C.IOUSBInterfaceInterface
	number uint8
}

func (i *iokitInterface) Release() {
	if i.iface != nil {
		(*i.iface).USBInterfaceClose(unsafe.Pointer(i.iface))
		(*i.iface).Release(unsafe.Pointer(i.iface))
	}
	if i.plugin != nil {
		(*i.plugin).Release(unsafe.Pointer(i.plugin))
	}
}
