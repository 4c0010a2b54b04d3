package cdcacm

import usb "github.com/halvard-dev/usbdirect"

// OpenByVendorID opens the first enumerated device matching vendorID,
// claims the CDC communication interface, and returns a Bridge wired to
// the given data endpoints.
func OpenByVendorID(vendorID uint16, iface uint8, inEP, outEP uint8) (*Bridge, *usb.DeviceHandle, error) {
	devices, err := usb.Enumerate()
	if err != nil {
		return nil, nil, err
	}
	for _, d := range devices {
		if d.Descriptor.VendorID != vendorID {
			continue
		}
		handle, err := d.Open()
		if err != nil {
			return nil, nil, err
		}
		if err := handle.ClaimInterface(iface); err != nil {
			handle.Close()
			return nil, nil, err
		}
		return &Bridge{Handle: handle, InEP: inEP, OutEP: outEP, Interface: iface}, handle, nil
	}
	return nil, nil, &usb.Error{Kind: usb.InvalidArgument, Op: "cdcacm: open by vendor id"}
}

// esp32VendorID is Espressif Systems' registered USB vendor ID, used by
// the built-in USB-serial/JTAG interface on ESP32-S3 and later parts.
const esp32VendorID = 0x303A

// esp32DataInterface, esp32InEP, and esp32OutEP match the fixed interface
// and endpoint layout of the ESP32-S3's USB-serial/JTAG peripheral.
const (
	esp32DataInterface = 0
	esp32InEP          = 0x82
	esp32OutEP         = 0x02
)

// OpenESP32 opens the first attached ESP32 USB-serial/JTAG device.
func OpenESP32() (*Bridge, *usb.DeviceHandle, error) {
	return OpenByVendorID(esp32VendorID, esp32DataInterface, esp32InEP, esp32OutEP)
}

// Flash frames payload as a SLIP flash-write block addressed at address
// and transmits it, for use against the ESP32 ROM bootloader's SLIP
// command channel.
func (b *Bridge) Flash(address uint32, payload []byte) error {
	return b.WriteFlashBlock(address, payload)
}
