// Command lsusb enumerates attached USB devices and prints their vendor
// ID, product ID, and bus path.
package main

import (
	"fmt"
	"os"

	usb "github.com/halvard-dev/usbdirect"
)

func main() {
	devices, err := usb.Enumerate()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lsusb:", err)
		os.Exit(1)
	}
	for _, d := range devices {
		desc := d.Descriptor
		fmt.Printf("%s  %04x:%04x  class=%02x\n", d.Path, desc.VendorID, desc.ProductID, desc.DeviceClass)
	}
}
