package usb

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// winusbDeviceInterfaceGUID is GUID_DEVINTERFACE_USB_DEVICE, the
// device-interface class published by the WinUSB co-installer.
var winusbDeviceInterfaceGUID = windows.GUID{
	Data1: 0xA5DCBF10,
	Data2: 0x6530,
	Data3: 0x11D2,
	Data4: [8]byte{0x90, 0x1F, 0x00, 0xC0, 0x4F, 0xB9, 0x51, 0xED},
}

var (
	modsetupapi = windows.NewLazySystemDLL("setupapi.dll")

	procSetupDiGetClassDevsW             = modsetupapi.NewProc("SetupDiGetClassDevsW")
	procSetupDiEnumDeviceInterfaces      = modsetupapi.NewProc("SetupDiEnumDeviceInterfaces")
	procSetupDiGetDeviceInterfaceDetailW = modsetupapi.NewProc("SetupDiGetDeviceInterfaceDetailW")
	procSetupDiDestroyDeviceInfoList     = modsetupapi.NewProc("SetupDiDestroyDeviceInfoList")
)

const (
	digcfPresent         = 0x00000002
	digcfDeviceInterface = 0x00000010
)

type spDeviceInterfaceData struct {
	cbSize             uint32
	interfaceClassGUID windows.GUID
	flags              uint32
	reserved           uintptr
}

// setupDiGetClassDevs enumerates the device-interface set published under
// winusbDeviceInterfaceGUID with flags "present + device-interface".
func setupDiGetClassDevs() (windows.Handle, error) {
	r, _, err := procSetupDiGetClassDevsW.Call(
		uintptr(unsafe.Pointer(&winusbDeviceInterfaceGUID)),
		0, 0,
		uintptr(digcfPresent|digcfDeviceInterface),
	)
	h := windows.Handle(r)
	if h == windows.InvalidHandle {
		return 0, err
	}
	return h, nil
}

func setupDiDestroyDeviceInfoList(set windows.Handle) {
	procSetupDiDestroyDeviceInfoList.Call(uintptr(set))
}

// enumDeviceInterfacePaths walks every device interface in set and returns
// the wide-string device path for each, using the standard two-call
// pattern: a zero-length probe to size the buffer, then a real call.
func enumDeviceInterfacePaths(set windows.Handle) ([]string, error) {
	var paths []string
	for index := uint32(0); ; index++ {
		data := spDeviceInterfaceData{cbSize: uint32(unsafe.Sizeof(spDeviceInterfaceData{}))}
		ret, _, callErr := procSetupDiEnumDeviceInterfaces.Call(
			uintptr(set), 0,
			uintptr(unsafe.Pointer(&winusbDeviceInterfaceGUID)),
			uintptr(index),
			uintptr(unsafe.Pointer(&data)),
		)
		if ret == 0 {
			if callErr == windows.ERROR_NO_MORE_ITEMS {
				break
			}
			return paths, nil
		}

		var requiredSize uint32
		procSetupDiGetDeviceInterfaceDetailW.Call(
			uintptr(set), uintptr(unsafe.Pointer(&data)),
			0, 0, uintptr(unsafe.Pointer(&requiredSize)), 0,
		)
		if requiredSize == 0 {
			continue
		}

		buf := make([]byte, requiredSize)
		// cbSize of SP_DEVICE_INTERFACE_DETAIL_DATA_W is the size of the
		// fixed portion (DWORD + one wide char) regardless of the
		// variable-length path that follows.
		*(*uint32)(unsafe.Pointer(&buf[0])) = 8
		ret, _, _ = procSetupDiGetDeviceInterfaceDetailW.Call(
			uintptr(set), uintptr(unsafe.Pointer(&data)),
			uintptr(unsafe.Pointer(&buf[0])), uintptr(requiredSize),
			uintptr(unsafe.Pointer(&requiredSize)), 0,
		)
		if ret == 0 {
			continue
		}
		path := windows.UTF16PtrToString((*uint16)(unsafe.Pointer(&buf[4])))
		paths = append(paths, path)
	}
	return paths, nil
}
