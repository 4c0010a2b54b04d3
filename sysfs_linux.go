package usb

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var sysfsUSBRoot = "/sys/bus/usb/devices"

// enumerateSysfs scans sysfsUSBRoot for device nodes: entries with both a
// busnum and a devnum attribute. Entries containing ":" are interface
// nodes and are skipped. An empty tree (or a tree containing only
// interface nodes) yields an empty, non-error result.
func enumerateSysfs() ([]*Device, error) {
	entries, err := os.ReadDir(sysfsUSBRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapErr("usb: enumerate", Io, 0, err)
	}

	var devices []*Device
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, ":") {
			continue
		}
		dir := filepath.Join(sysfsUSBRoot, name)
		dev, ok := loadSysfsDevice(dir)
		if !ok {
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func loadSysfsDevice(dir string) (*Device, bool) {
	busNum, ok := readSysfsAttrUint(dir, "busnum")
	if !ok {
		return nil, false
	}
	devNum, ok := readSysfsAttrUint(dir, "devnum")
	if !ok {
		return nil, false
	}

	desc := DeviceDescriptor{
		Length:         DeviceDescriptorLength,
		DescriptorType: DescriptorTypeDevice,
	}
	if v, ok := readSysfsAttrUint(dir, "bcdUSB"); ok {
		desc.USBVersion = uint16(v)
	}
	if v, ok := readSysfsAttrUint(dir, "bDeviceClass"); ok {
		desc.DeviceClass = uint8(v)
	}
	if v, ok := readSysfsAttrUint(dir, "bDeviceSubClass"); ok {
		desc.DeviceSubClass = uint8(v)
	}
	if v, ok := readSysfsAttrUint(dir, "bDeviceProtocol"); ok {
		desc.DeviceProtocol = uint8(v)
	}
	if v, ok := readSysfsAttrUint(dir, "bMaxPacketSize0"); ok {
		desc.MaxPacketSize0 = uint8(v)
	}
	if v, ok := readSysfsAttrUint(dir, "idVendor"); ok {
		desc.VendorID = uint16(v)
	}
	if v, ok := readSysfsAttrUint(dir, "idProduct"); ok {
		desc.ProductID = uint16(v)
	}
	if v, ok := readSysfsAttrUint(dir, "bcdDevice"); ok {
		desc.DeviceVersion = uint16(v)
	}
	// iManufacturer/iProduct/iSerialNumber default to zero when absent,
	// per §6.
	if v, ok := readSysfsAttrUint(dir, "iManufacturer"); ok {
		desc.ManufacturerIndex = uint8(v)
	}
	if v, ok := readSysfsAttrUint(dir, "iProduct"); ok {
		desc.ProductIndex = uint8(v)
	}
	if v, ok := readSysfsAttrUint(dir, "iSerialNumber"); ok {
		desc.SerialNumberIndex = uint8(v)
	}
	if v, ok := readSysfsAttrUint(dir, "bNumConfigurations"); ok {
		desc.NumConfigurations = uint8(v)
	}

	return &Device{
		Path:       fmt.Sprintf("/dev/bus/usb/%03d/%03d", busNum, devNum),
		Bus:        uint8(busNum),
		Address:    uint8(devNum),
		Descriptor: desc,
	}, true
}

// readSysfsAttrUint reads a sysfs attribute file and parses it as an
// unsigned integer, trying decimal first and then hexadecimal (with or
// without a "0x"/"0X" prefix), per §8's quantified parsing invariant.
func readSysfsAttrUint(dir, name string) (uint64, bool) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, false
	}
	return parseSysfsAttrUint(string(data))
}

func parseSysfsAttrUint(raw string) (uint64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, true
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if v, err := strconv.ParseUint(hex, 16, 64); err == nil {
		return v, true
	}
	return 0, false
}
