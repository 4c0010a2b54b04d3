// Command esp32flash writes a raw binary image to an attached ESP32's
// flash memory over its USB-serial/JTAG interface, using the SLIP-framed
// ROM bootloader protocol.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/halvard-dev/usbdirect/classes/cdcacm"
)

const flashBlockSize = 4096

func main() {
	addr := flag.Uint64("address", 0x10000, "flash address to write the image at")
	imagePath := flag.String("image", "", "path to the raw binary image to flash")
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "esp32flash: -image is required")
		os.Exit(1)
	}

	image, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "esp32flash:", err)
		os.Exit(1)
	}

	bridge, handle, err := cdcacm.OpenESP32()
	if err != nil {
		fmt.Fprintln(os.Stderr, "esp32flash: open:", err)
		os.Exit(1)
	}
	defer handle.Close()

	if err := bridge.EnterBootloader(); err != nil {
		fmt.Fprintln(os.Stderr, "esp32flash: enter bootloader:", err)
		os.Exit(1)
	}

	address := uint32(*addr)
	for offset := 0; offset < len(image); offset += flashBlockSize {
		end := offset + flashBlockSize
		if end > len(image) {
			end = len(image)
		}
		if err := bridge.Flash(address+uint32(offset), image[offset:end]); err != nil {
			fmt.Fprintf(os.Stderr, "esp32flash: write block at 0x%x: %v\n", address+uint32(offset), err)
			os.Exit(1)
		}
	}

	fmt.Printf("flashed %d bytes at 0x%x\n", len(image), address)
}
