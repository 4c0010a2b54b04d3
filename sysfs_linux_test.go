package usb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSysfsAttrUint(t *testing.T) {
	tests := []struct {
		raw  string
		want uint64
		ok   bool
	}{
		{"10", 10, true},
		{"0x0A", 10, true},
		{"0a", 10, true},
		{"0X0A", 10, true},
		{"  10  \n", 10, true},
		{"", 0, false},
		{"not-a-number", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseSysfsAttrUint(tt.raw)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseSysfsAttrUint(%q) = (%d, %v), want (%d, %v)", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func writeAttr(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEnumerateSysfsEmptyWhenOnlyInterfaceNodes(t *testing.T) {
	root := t.TempDir()
	orig := sysfsUSBRoot
	sysfsUSBRoot = root
	defer func() { sysfsUSBRoot = orig }()

	ifaceDir := filepath.Join(root, "1-1:1.0")
	if err := os.MkdirAll(ifaceDir, 0o755); err != nil {
		t.Fatal(err)
	}

	devices, err := enumerateSysfs()
	if err != nil {
		t.Fatalf("enumerateSysfs: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected empty list, got %d devices", len(devices))
	}
}

func TestEnumerateSysfsFindsDevice(t *testing.T) {
	root := t.TempDir()
	orig := sysfsUSBRoot
	sysfsUSBRoot = root
	defer func() { sysfsUSBRoot = orig }()

	devDir := filepath.Join(root, "1-1")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeAttr(t, devDir, "busnum", "1")
	writeAttr(t, devDir, "devnum", "5")
	writeAttr(t, devDir, "idVendor", "0x0483")
	writeAttr(t, devDir, "idProduct", "df11")

	ifaceDir := filepath.Join(root, "1-1:1.0")
	if err := os.MkdirAll(ifaceDir, 0o755); err != nil {
		t.Fatal(err)
	}

	devices, err := enumerateSysfs()
	if err != nil {
		t.Fatalf("enumerateSysfs: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	d := devices[0]
	if d.Path != "/dev/bus/usb/001/005" {
		t.Errorf("Path = %q, want /dev/bus/usb/001/005", d.Path)
	}
	if d.Descriptor.VendorID != 0x0483 {
		t.Errorf("VendorID = 0x%04x, want 0x0483", d.Descriptor.VendorID)
	}
	if d.Descriptor.ProductID != 0xdf11 {
		t.Errorf("ProductID = 0x%04x, want 0xdf11", d.Descriptor.ProductID)
	}
	if d.Descriptor.ManufacturerIndex != 0 {
		t.Errorf("ManufacturerIndex defaulted to %d, want 0", d.Descriptor.ManufacturerIndex)
	}
}

func TestDeviceWithoutBusnumSkipped(t *testing.T) {
	root := t.TempDir()
	orig := sysfsUSBRoot
	sysfsUSBRoot = root
	defer func() { sysfsUSBRoot = orig }()

	devDir := filepath.Join(root, "usb1")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeAttr(t, devDir, "idVendor", "1d6b")

	devices, err := enumerateSysfs()
	if err != nil {
		t.Fatalf("enumerateSysfs: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected 0 devices (missing busnum), got %d", len(devices))
	}
}
