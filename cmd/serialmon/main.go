// Command serialmon opens an attached ESP32's USB-serial/JTAG interface,
// sends a single AT-style probe command, and prints the reply, logging
// every transfer to a file alongside.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/halvard-dev/usbdirect/classes/cdcacm"
	"github.com/halvard-dev/usbdirect/logger"
)

func main() {
	fmt.Println("connecting to ESP32 serial bridge...")
	bridge, handle, err := cdcacm.OpenESP32()
	if err != nil {
		fmt.Fprintln(os.Stderr, "serialmon: open:", err)
		os.Exit(1)
	}
	defer handle.Close()

	logFile, err := os.Create("serial.log")
	if err != nil {
		fmt.Fprintln(os.Stderr, "serialmon:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ch := logger.NewChannel(handle, bridge.InEP, bridge.OutEP, logFile)
	if _, err := ch.Write([]byte("AT+GMR\r\n"), time.Second); err != nil {
		fmt.Fprintln(os.Stderr, "serialmon: write:", err)
		os.Exit(1)
	}

	buf := make([]byte, 256)
	n, err := ch.Read(buf, time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "serialmon: read:", err)
		os.Exit(1)
	}
	os.Stdout.Write(buf[:n])
}
