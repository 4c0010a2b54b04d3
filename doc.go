// Package usb provides direct, synchronous access to attached USB devices
// without depending on a C-language USB library.
//
// It enumerates devices, opens a specific one, reads standard descriptors,
// claims interfaces, and performs control, bulk, and interrupt transfers.
// Exactly one backend is compiled in, selected by the target platform:
// usbfs on Linux, WinUSB on Windows, IOKit on macOS, and WebUSB under
// GOOS=js GOARCH=wasm. Isochronous transfers, hot-plug notification,
// asynchronous submission queues, and non-ASCII string descriptors are out
// of scope; see the classes and logger subpackages for protocol helpers
// built on top of this façade.
package usb
