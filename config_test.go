package usb

import "testing"

// buildConfig assembles a minimal raw configuration descriptor blob: the
// 9-byte configuration header, one interface descriptor, and one endpoint
// descriptor, matching the layout GET_DESCRIPTOR(CONFIGURATION) returns.
func buildConfig() []byte {
	cfgHeader := []byte{9, DescriptorTypeConfig, 9 + 9 + 7, 0, 1, 1, 0, 0x80, 50}
	ifaceDesc := []byte{9, DescriptorTypeInterface, 0, 0, 1, 0xff, 0x00, 0x00, 0}
	epDesc := []byte{7, DescriptorTypeEndpoint, 0x81, 0x02, 64, 0, 0}
	return append(append(cfgHeader, ifaceDesc...), epDesc...)
}

func TestParseConfigDescriptor(t *testing.T) {
	cfg, err := ParseConfigDescriptor(buildConfig())
	if err != nil {
		t.Fatalf("ParseConfigDescriptor: %v", err)
	}
	if cfg.ConfigurationValue != 1 {
		t.Errorf("ConfigurationValue = %d, want 1", cfg.ConfigurationValue)
	}
	if len(cfg.Interfaces) != 1 {
		t.Fatalf("expected 1 interface, got %d", len(cfg.Interfaces))
	}
	iface := cfg.Interfaces[0]
	if iface.InterfaceClass != 0xff {
		t.Errorf("InterfaceClass = 0x%02x, want 0xff", iface.InterfaceClass)
	}
	if len(iface.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(iface.Endpoints))
	}
	ep := iface.Endpoints[0]
	if ep.Address != 0x81 || ep.Direction() != DirectionIn {
		t.Errorf("endpoint address/direction mismatch: %+v", ep)
	}
	if ep.TransferType() != TransferTypeBulk {
		t.Errorf("TransferType = %v, want bulk", ep.TransferType())
	}
}

func TestFindEndpoint(t *testing.T) {
	cfg, err := ParseConfigDescriptor(buildConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.FindEndpoint(0x81); !ok {
		t.Error("expected to find endpoint 0x81")
	}
	if _, ok := cfg.FindEndpoint(0x02); ok {
		t.Error("did not expect to find endpoint 0x02")
	}
}

func TestParseConfigDescriptorRejectsBadHeader(t *testing.T) {
	if _, err := ParseConfigDescriptor([]byte{9, DescriptorTypeDevice, 9, 0, 1, 1, 0, 0, 0}); err == nil {
		t.Error("expected error for wrong descriptor type")
	}
	if _, err := ParseConfigDescriptor([]byte{1, 2}); err == nil {
		t.Error("expected error for too-short buffer")
	}
}
