package dfu

import usb "github.com/halvard-dev/usbdirect"

// OpenSTM32 opens the first attached STM32 DfuSe bootloader device and
// claims its DFU interface.
func OpenSTM32() (*Bridge, *usb.DeviceHandle, error) {
	devices, err := usb.Enumerate()
	if err != nil {
		return nil, nil, err
	}
	for _, d := range devices {
		if d.Descriptor.VendorID != STVendorID || d.Descriptor.ProductID != STProductID {
			continue
		}
		handle, err := d.Open()
		if err != nil {
			return nil, nil, err
		}
		if err := handle.ClaimInterface(0); err != nil {
			handle.Close()
			return nil, nil, err
		}
		return &Bridge{Handle: handle, Interface: 0}, handle, nil
	}
	return nil, nil, &usb.Error{Kind: usb.InvalidArgument, Op: "dfu: open stm32"}
}
