package ftdi

import usb "github.com/halvard-dev/usbdirect"

// defaultInEP and defaultOutEP match the single bulk IN/OUT pair exposed by
// every FT232/FT230-family part's sole data interface.
const (
	defaultInEP  = 0x81
	defaultOutEP = 0x02
)

func isKnownProductID(pid uint16) bool {
	for _, p := range ProductIDs {
		if p == pid {
			return true
		}
	}
	return false
}

// Open opens the first enumerated device whose vendor and product ID match
// FTDI's registered allowlist, resets it, and returns a Bridge bound to
// its default data endpoints.
func Open() (*Bridge, *usb.DeviceHandle, error) {
	devices, err := usb.Enumerate()
	if err != nil {
		return nil, nil, err
	}
	for _, d := range devices {
		if d.Descriptor.VendorID != VendorID || !isKnownProductID(d.Descriptor.ProductID) {
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
		b := &Bridge{Handle: handle, InEP: defaultInEP, OutEP: defaultOutEP}
		if err := b.Reset(); err != nil {
			handle.Close()
			return nil, nil, err
		}
		return b, handle, nil
	}
	return nil, nil, &usb.Error{Kind: usb.InvalidArgument, Op: "ftdi: open"}
}
