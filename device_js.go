//go:build js && wasm

package usb

import (
	"sync"
	"syscall/js"
	"time"
)

// Device wraps a browser USB device object already granted by the user
// (navigator.usb.getDevices never prompts). The descriptor is synthesized
// from the properties the browser exposes; string-descriptor indices and
// endpoint-zero max packet size are reported as zero because the browser
// API hides them (see SPEC_FULL.md §9 Open Questions for the BCD
// truncation this implies).
type Device struct {
	obj        js.Value
	Descriptor DeviceDescriptor
}

// DeviceHandle is an opened browser device. Every operation is a
// suspendable task at the JavaScript boundary; from Go's side each call
// blocks the calling goroutine on a channel fed by the resolved Promise.
type DeviceHandle struct {
	mu         sync.Mutex
	obj        js.Value
	descriptor DeviceDescriptor
	closed     bool
}

// Enumerate requests the list of devices already granted to this origin.
func Enumerate() ([]*Device, error) {
	usb := js.Global().Get("navigator").Get("usb")
	if usb.IsUndefined() {
		return nil, newErr("usb: enumerate", NotSupported)
	}
	result, err := await(usb.Call("getDevices"))
	if err != nil {
		return nil, wrapErr("usb: enumerate", Unknown, 0, err)
	}
	n := result.Length()
	devices := make([]*Device, 0, n)
	for i := 0; i < n; i++ {
		obj := result.Index(i)
		devices = append(devices, &Device{obj: obj, Descriptor: synthesizeDescriptor(obj)})
	}
	return devices, nil
}

func synthesizeDescriptor(obj js.Value) DeviceDescriptor {
	desc := DeviceDescriptor{Length: DeviceDescriptorLength, DescriptorType: DescriptorTypeDevice}
	desc.VendorID = uint16(obj.Get("vendorId").Int())
	desc.ProductID = uint16(obj.Get("productId").Int())
	if v := obj.Get("deviceClass"); !v.IsUndefined() {
		desc.DeviceClass = uint8(v.Int())
	}
	if v := obj.Get("deviceSubclass"); !v.IsUndefined() {
		desc.DeviceSubClass = uint8(v.Int())
	}
	if v := obj.Get("deviceProtocol"); !v.IsUndefined() {
		desc.DeviceProtocol = uint8(v.Int())
	}
	// Only the major version survives: DeviceVersion is built from
	// deviceVersionMajor alone and its minor/subminor nibbles are left zero
	// (§9 Open Question, resolved in DESIGN.md: major-only is accepted).
	if v := obj.Get("deviceVersionMajor"); !v.IsUndefined() {
		desc.DeviceVersion = uint16(v.Int()) << 8
	}
	if v := obj.Get("configurations"); !v.IsUndefined() {
		desc.NumConfigurations = uint8(v.Length())
	}
	return desc
}

// Open ensures the device is open, selects its first configuration if
// none is active, and claims every interface on the active configuration.
// An "already claimed" failure (InvalidStateError) is swallowed; other
// failures propagate.
func (d *Device) Open() (*DeviceHandle, error) {
	if !d.obj.Get("opened").Bool() {
		if _, err := await(d.obj.Call("open")); err != nil {
			return nil, wrapErr("usb: open device", Unknown, 0, err)
		}
	}
	if d.obj.Get("configuration").IsNull() {
		configs := d.obj.Get("configurations")
		if configs.Length() > 0 {
			value := configs.Index(0).Get("configurationValue")
			if _, err := await(d.obj.Call("selectConfiguration", value)); err != nil {
				return nil, wrapErr("usb: open device", Unknown, 0, err)
			}
		}
	}

	cfg := d.obj.Get("configuration")
	if !cfg.IsNull() && !cfg.IsUndefined() {
		ifaces := cfg.Get("interfaces")
		for i := 0; i < ifaces.Length(); i++ {
			num := ifaces.Index(i).Get("interfaceNumber")
			if _, err := await(d.obj.Call("claimInterface", num)); err != nil {
				if !isAlreadyClaimed(err) {
					return nil, wrapErr("usb: open device", Unknown, 0, err)
				}
			}
		}
	}

	return &DeviceHandle{obj: d.obj, descriptor: d.Descriptor}, nil
}

func isAlreadyClaimed(err error) bool {
	jsErr, ok := err.(jsError)
	if !ok {
		return false
	}
	name := jsErr.value.Get("name")
	return !name.IsUndefined() && name.String() == "InvalidStateError"
}

// Descriptor returns the synthesized device descriptor.
func (h *DeviceHandle) Descriptor() DeviceDescriptor { return h.descriptor }

// Close calls the browser's device.close().
func (h *DeviceHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	_, err := await(h.obj.Call("close"))
	if err != nil {
		return wrapErr("usb: close device", Unknown, 0, err)
	}
	return nil
}

// ClaimInterface claims a single interface by number.
func (h *DeviceHandle) ClaimInterface(iface uint8) error {
	_, err := await(h.obj.Call("claimInterface", int(iface)))
	if err != nil && !isAlreadyClaimed(err) {
		return wrapErr("usb: claim interface", Unknown, 0, err)
	}
	return nil
}

// ReleaseInterface releases a single interface by number.
func (h *DeviceHandle) ReleaseInterface(iface uint8) error {
	_, err := await(h.obj.Call("releaseInterface", int(iface)))
	if err != nil {
		return wrapErr("usb: release interface", Unknown, 0, err)
	}
	return nil
}

// SetAltSetting selects an alternate setting on a claimed interface.
func (h *DeviceHandle) SetAltSetting(iface, alt uint8) error {
	_, err := await(h.obj.Call("selectAlternateInterface", int(iface), int(alt)))
	if err != nil {
		return wrapErr("usb: set alt setting", Unknown, 0, err)
	}
	return nil
}

// ClearHalt clears a stalled endpoint via clearHalt(direction, number).
func (h *DeviceHandle) ClearHalt(endpoint uint8) error {
	direction := "out"
	if endpoint&EndpointDirectionMask != 0 {
		direction = "in"
	}
	_, err := await(h.obj.Call("clearHalt", direction, int(endpoint&0x7f)))
	if err != nil {
		return wrapErr("usb: clear halt", Unknown, 0, err)
	}
	return nil
}

// ResetDevice calls device.reset().
func (h *DeviceHandle) ResetDevice() error {
	_, err := await(h.obj.Call("reset"))
	if err != nil {
		return wrapErr("usb: reset device", Unknown, 0, err)
	}
	return nil
}

// ControlTransfer builds a USBControlTransferParameters object from the
// request-type bits and calls controlTransferIn (for IN/no-payload reads)
// or controlTransferOut (for OUT). Timeouts are not honored: the browser
// exposes no per-operation timeout (§4.7).
func (h *DeviceHandle) ControlTransfer(req ControlRequest, buf TransferBuffer, _ time.Duration) (int, error) {
	if err := checkControlDirection(req, buf); err != nil {
		return 0, err
	}
	params := js.Global().Get("Object").New()
	params.Set("requestType", controlRequestTypeName(req.RequestType))
	params.Set("recipient", controlRecipientName(req.RequestType))
	params.Set("request", int(req.Request))
	params.Set("value", int(req.Value))
	params.Set("index", int(req.Index))

	if req.Direction() == DirectionIn {
		result, err := await(h.obj.Call("controlTransferIn", params, len(buf.Data)))
		if err != nil {
			return 0, wrapErr("usb: control transfer", Unknown, 0, err)
		}
		return copyTransferResult(result, buf.Data)
	}

	view := js.Global().Get("Uint8Array").New(len(buf.Data))
	js.CopyBytesToJS(view, buf.Data)
	result, err := await(h.obj.Call("controlTransferOut", params, view))
	if err != nil {
		return 0, wrapErr("usb: control transfer", Unknown, 0, err)
	}
	return transferResultBytesWritten(result)
}

// BulkTransfer calls transferIn or transferOut on the raw endpoint number.
func (h *DeviceHandle) BulkTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.pipeTransfer(endpoint, buf, timeout)
}

// InterruptTransfer shares its implementation with BulkTransfer; WebUSB
// does not distinguish the two at this layer.
func (h *DeviceHandle) InterruptTransfer(endpoint uint8, buf TransferBuffer, timeout time.Duration) (int, error) {
	return h.pipeTransfer(endpoint, buf, timeout)
}

func (h *DeviceHandle) pipeTransfer(endpoint uint8, buf TransferBuffer, _ time.Duration) (int, error) {
	if err := checkEndpointDirection(endpoint, buf); err != nil {
		return 0, err
	}
	number := int(endpoint & 0x7f)
	if buf.Dir == DirectionIn {
		result, err := await(h.obj.Call("transferIn", number, len(buf.Data)))
		if err != nil {
			return 0, wrapErr("usb: transfer", Unknown, 0, err)
		}
		return copyTransferResult(result, buf.Data)
	}
	view := js.Global().Get("Uint8Array").New(len(buf.Data))
	js.CopyBytesToJS(view, buf.Data)
	result, err := await(h.obj.Call("transferOut", number, view))
	if err != nil {
		return 0, wrapErr("usb: transfer", Unknown, 0, err)
	}
	return transferResultBytesWritten(result)
}

// ReadStringDescriptor is NotSupported on this backend: it issues no
// GET_DESCRIPTOR request, and the synthesized Descriptor() carries no
// strings and reports every string index as zero.
func (h *DeviceHandle) ReadStringDescriptor(index uint8, langID uint16, buf []byte) (int, error) {
	return 0, newErr("usb: read string descriptor", NotSupported)
}

// ReadStringDescriptorASCII is NotSupported for the same reason.
func (h *DeviceHandle) ReadStringDescriptorASCII(index uint8) (string, error) {
	return "", newErr("usb: read string descriptor", NotSupported)
}

func controlRequestTypeName(requestType uint8) string {
	switch (requestType >> 5) & 0x03 {
	case 0:
		return "standard"
	case 1:
		return "class"
	default:
		return "vendor"
	}
}

func controlRecipientName(requestType uint8) string {
	switch requestType & 0x1f {
	case 0:
		return "device"
	case 1:
		return "interface"
	case 2:
		return "endpoint"
	default:
		return "other"
	}
}

func transferStatusOK(status js.Value) bool {
	return !status.IsUndefined() && status.String() == "ok"
}

func copyTransferResult(result js.Value, dst []byte) (int, error) {
	status := result.Get("status")
	if !transferStatusOK(status) {
		return 0, newErr("usb: transfer", Unknown)
	}
	data := result.Get("data")
	buffer := data.Get("buffer")
	view := js.Global().Get("Uint8Array").New(buffer, data.Get("byteOffset"), data.Get("byteLength"))
	n := js.CopyBytesToGo(dst, view)
	return n, nil
}

func transferResultBytesWritten(result js.Value) (int, error) {
	status := result.Get("status")
	if !transferStatusOK(status) {
		return 0, newErr("usb: transfer", Unknown)
	}
	return result.Get("bytesWritten").Int(), nil
}

// jsError wraps a rejected Promise's reason as a Go error.
type jsError struct{ value js.Value }

func (e jsError) Error() string {
	if s := e.value.Get("message"); !s.IsUndefined() {
		return s.String()
	}
	return e.value.String()
}

// await blocks the calling goroutine until promise settles, returning its
// resolved value or a jsError wrapping the rejection reason. This is the
// one concession the wasm build makes for a synchronous-looking façade
// over what is, in JavaScript, an asynchronous API.
func await(promise js.Value) (js.Value, error) {
	done := make(chan struct{})
	var value js.Value
	var rejected bool
	thenFunc := js.FuncOf(func(this js.Value, args []js.Value) any {
		value = args[0]
		close(done)
		return nil
	})
	defer thenFunc.Release()
	catchFunc := js.FuncOf(func(this js.Value, args []js.Value) any {
		value = args[0]
		rejected = true
		close(done)
		return nil
	})
	defer catchFunc.Release()
	promise.Call("then", thenFunc).Call("catch", catchFunc)
	<-done
	if rejected {
		return js.Value{}, jsError{value: value}
	}
	return value, nil
}
