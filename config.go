package usb

import "encoding/binary"

// ParseConfigDescriptor walks a raw configuration-descriptor blob (the
// configuration descriptor itself followed by its interface and endpoint
// descriptors, as returned by a GET_DESCRIPTOR(CONFIGURATION) transfer) and
// builds the interface/endpoint tree. Descriptors the walker does not
// recognize (string, BOS, class-specific, etc.) are skipped by their
// declared length.
func ParseConfigDescriptor(b []byte) (*ConfigDescriptor, error) {
	if len(b) < 9 || b[1] != DescriptorTypeConfig {
		return nil, newErr("usb: parse config descriptor", InvalidArgument)
	}
	totalLength := binary.LittleEndian.Uint16(b[2:4])
	if int(totalLength) > len(b) {
		totalLength = uint16(len(b))
	}
	cfg := &ConfigDescriptor{
		ConfigurationValue: b[5],
		Attributes:         b[7],
		MaxPower:           b[8],
	}

	buf := b[9:totalLength]
	var current *InterfaceDescriptor
	for len(buf) >= 2 {
		length := int(buf[0])
		descType := buf[1]
		if length < 2 || length > len(buf) {
			break
		}
		entry := buf[:length]
		switch descType {
		case DescriptorTypeInterface:
			if len(entry) < 9 {
				break
			}
			cfg.Interfaces = append(cfg.Interfaces, InterfaceDescriptor{
				InterfaceNumber:   entry[2],
				AlternateSetting:  entry[3],
				InterfaceClass:    entry[5],
				InterfaceSubClass: entry[6],
				InterfaceProtocol: entry[7],
			})
			current = &cfg.Interfaces[len(cfg.Interfaces)-1]
		case DescriptorTypeEndpoint:
			if len(entry) < 7 || current == nil {
				break
			}
			current.Endpoints = append(current.Endpoints, EndpointDescriptor{
				Address:       entry[2],
				Attributes:    entry[3],
				MaxPacketSize: binary.LittleEndian.Uint16(entry[4:6]),
				Interval:      entry[6],
			})
		}
		buf = buf[length:]
	}
	return cfg, nil
}

// FindEndpoint returns the endpoint on cfg whose address (direction bit and
// number) matches addr, across all interfaces and alternate settings.
func (cfg *ConfigDescriptor) FindEndpoint(addr uint8) (EndpointDescriptor, bool) {
	for _, iface := range cfg.Interfaces {
		for _, ep := range iface.Endpoints {
			if ep.Address == addr {
				return ep, true
			}
		}
	}
	return EndpointDescriptor{}, false
}
