package usb

import "encoding/binary"

// Standard descriptor type codes (USB 2.0 table 9-5).
const (
	DescriptorTypeDevice    = 0x01
	DescriptorTypeConfig    = 0x02
	DescriptorTypeString    = 0x03
	DescriptorTypeInterface = 0x04
	DescriptorTypeEndpoint  = 0x05
	DescriptorTypeBOS       = 0x0f
	DescriptorTypeDeviceCap = 0x10
)

// Standard request codes (USB 2.0 table 9-4).
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqSetDescriptor    = 0x07
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
	ReqGetInterface     = 0x0a
	ReqSetInterface     = 0x0b
	ReqSynchFrame       = 0x0c
)

// EndpointDirectionMask is bit 7 of an endpoint address: 1 = IN
// (device-to-host), 0 = OUT (host-to-device).
const EndpointDirectionMask = 0x80

// TransferType tags the four USB transfer classes. Isochronous is carried
// only for wire-format completeness; no backend in this library issues it.
type TransferType uint8

const (
	TransferTypeControl     TransferType = 0
	TransferTypeIsochronous TransferType = 1
	TransferTypeBulk        TransferType = 2
	TransferTypeInterrupt   TransferType = 3
)

// Direction is the tag on a TransferBuffer.
type Direction uint8

const (
	// DirectionOut means the caller-owned bytes travel host-to-device; the
	// buffer is read-only from the library's perspective.
	DirectionOut Direction = 0
	// DirectionIn means the device writes into the caller-owned buffer.
	DirectionIn Direction = EndpointDirectionMask
)

// DeviceDescriptor is the standard 18-byte device descriptor.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16 // BCD
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16 // BCD
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// DeviceDescriptorLength is the fixed wire length of a device descriptor.
const DeviceDescriptorLength = 18

// ParseDeviceDescriptor decodes the standard 18-byte device descriptor from
// its wire form. All multi-byte fields are little-endian.
func ParseDeviceDescriptor(b []byte) (DeviceDescriptor, error) {
	if len(b) < DeviceDescriptorLength {
		return DeviceDescriptor{}, newErr("usb: parse device descriptor", InvalidArgument)
	}
	return DeviceDescriptor{
		Length:            b[0],
		DescriptorType:    b[1],
		USBVersion:        binary.LittleEndian.Uint16(b[2:4]),
		DeviceClass:       b[4],
		DeviceSubClass:    b[5],
		DeviceProtocol:    b[6],
		MaxPacketSize0:    b[7],
		VendorID:          binary.LittleEndian.Uint16(b[8:10]),
		ProductID:         binary.LittleEndian.Uint16(b[10:12]),
		DeviceVersion:     binary.LittleEndian.Uint16(b[12:14]),
		ManufacturerIndex: b[14],
		ProductIndex:      b[15],
		SerialNumberIndex: b[16],
		NumConfigurations: b[17],
	}, nil
}

// ParseStringDescriptor decodes a string descriptor: a length byte, a type
// byte (must equal DescriptorTypeString), and little-endian UTF-16 code
// units filling the rest. It returns the raw code units;
// StringDescriptorASCII below converts them to ASCII.
func ParseStringDescriptor(b []byte) ([]uint16, error) {
	if len(b) < 2 || b[1] != DescriptorTypeString {
		return nil, newErr("usb: parse string descriptor", Unknown)
	}
	n := int(b[0])
	if n < 2 || n > len(b) {
		return nil, newErr("usb: parse string descriptor", Unknown)
	}
	payload := b[2:n]
	units := make([]uint16, len(payload)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(payload[i*2 : i*2+2])
	}
	return units, nil
}

// StringDescriptorASCII parses a string descriptor and converts it to ASCII
// by taking the low byte of each code unit. It fails with an Unknown-kind
// error if the header is malformed or any code unit has a non-zero high
// byte (i.e. is not representable in ASCII).
func StringDescriptorASCII(b []byte) (string, error) {
	units, err := ParseStringDescriptor(b)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(units))
	for i, u := range units {
		if u > 0xff {
			return "", newErr("usb: string descriptor ascii", Unknown)
		}
		out[i] = byte(u)
	}
	return string(out), nil
}

// LangIDUS is the standard English (United States) language ID used by
// ReadStringDescriptorASCII.
const LangIDUS = 0x0409
