package usb

import "testing"

func TestParseDeviceDescriptor(t *testing.T) {
	raw := []byte{
		18, 0x01, // length, type
		0x00, 0x02, // bcdUSB 2.00
		0x00, 0x00, 0x00, // class, subclass, protocol
		64,         // max packet size 0
		0x83, 0x04, // idVendor 0x0483
		0x11, 0xdf, // idProduct 0xdf11
		0x00, 0x01, // bcdDevice
		1, 2, 3, // string indices
		1, // num configs
	}
	desc, err := ParseDeviceDescriptor(raw)
	if err != nil {
		t.Fatalf("ParseDeviceDescriptor: %v", err)
	}
	if desc.VendorID != 0x0483 || desc.ProductID != 0xdf11 {
		t.Errorf("got VID=0x%04x PID=0x%04x", desc.VendorID, desc.ProductID)
	}
	if desc.Length != 18 || desc.DescriptorType != DescriptorTypeDevice {
		t.Errorf("header mismatch: %+v", desc)
	}

	if _, err := ParseDeviceDescriptor(raw[:10]); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestStringDescriptorASCII(t *testing.T) {
	// "hi" as a string descriptor: length=6 (2 header + 2*2 code units),
	// type=0x03, then 'h','\0','i','\0'.
	raw := []byte{6, 0x03, 'h', 0, 'i', 0}
	got, err := StringDescriptorASCII(raw)
	if err != nil {
		t.Fatalf("StringDescriptorASCII: %v", err)
	}
	if got != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}

	t.Run("bad type byte", func(t *testing.T) {
		if _, err := StringDescriptorASCII([]byte{6, 0x01, 'h', 0, 'i', 0}); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("length too short", func(t *testing.T) {
		if _, err := StringDescriptorASCII([]byte{1, 0x03}); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("non-ascii code unit fails", func(t *testing.T) {
		raw := []byte{4, 0x03, 0x00, 0x20} // U+2000
		if _, err := StringDescriptorASCII(raw); err == nil {
			t.Error("expected error for non-ASCII code unit")
		}
	})
	t.Run("N code units yields length-N string", func(t *testing.T) {
		for n := 1; n <= 5; n++ {
			raw := make([]byte, 2+2*n)
			raw[0] = byte(2 + 2*n)
			raw[1] = 0x03
			for i := 0; i < n; i++ {
				raw[2+2*i] = 'a'
			}
			s, err := StringDescriptorASCII(raw)
			if err != nil {
				t.Fatalf("n=%d: %v", n, err)
			}
			if len(s) != n {
				t.Errorf("n=%d: got length %d", n, len(s))
			}
		}
	})
}
