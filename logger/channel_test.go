package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	usb "github.com/halvard-dev/usbdirect"
)

type fakeTransferor struct {
	writeN   int
	writeErr error
	readData []byte
	readErr  error
	ctrlN    int
	ctrlErr  error
}

func (f *fakeTransferor) BulkTransfer(endpoint uint8, buf usb.TransferBuffer, timeout time.Duration) (int, error) {
	if buf.Dir == usb.DirectionIn {
		if f.readErr != nil {
			return 0, f.readErr
		}
		n := copy(buf.Data, f.readData)
		return n, nil
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.writeN, nil
}

func (f *fakeTransferor) ControlTransfer(req usb.ControlRequest, buf usb.TransferBuffer, timeout time.Duration) (int, error) {
	if f.ctrlErr != nil {
		return 0, f.ctrlErr
	}
	return f.ctrlN, nil
}

func TestChannelWriteLogsTX(t *testing.T) {
	var sink bytes.Buffer
	ft := &fakeTransferor{writeN: 3}
	c := NewChannel(ft, 0x81, 0x02, &sink)
	n, err := c.Write([]byte{0xAA, 0xBB, 0xCC}, time.Second)
	if err != nil || n != 3 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if !strings.Contains(sink.String(), "TX") || !strings.Contains(sink.String(), "AA BB CC") {
		t.Errorf("missing TX hex dump: %q", sink.String())
	}
}

func TestChannelReadLogsRX(t *testing.T) {
	var sink bytes.Buffer
	ft := &fakeTransferor{readData: []byte{0x01, 0x02}}
	c := NewChannel(ft, 0x81, 0x02, &sink)
	buf := make([]byte, 8)
	n, err := c.Read(buf, time.Second)
	if err != nil || n != 2 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if !strings.Contains(sink.String(), "RX") {
		t.Errorf("missing RX label: %q", sink.String())
	}
}

func TestChannelWriteErrorLogsAndReturns(t *testing.T) {
	var sink bytes.Buffer
	wantErr := &usb.Error{Kind: usb.Timeout, Op: "test"}
	ft := &fakeTransferor{writeErr: wantErr}
	c := NewChannel(ft, 0x81, 0x02, &sink)
	_, err := c.Write([]byte{1}, time.Second)
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if !strings.Contains(sink.String(), "error=") {
		t.Errorf("missing error line: %q", sink.String())
	}
}

func TestChannelControlTransferLogsCTRL(t *testing.T) {
	var sink bytes.Buffer
	ft := &fakeTransferor{ctrlN: 1}
	c := NewChannel(ft, 0x81, 0x02, &sink)
	_, err := c.ControlTransfer(usb.ControlRequest{RequestType: 0x21, Request: 0x22}, usb.Out(nil), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sink.String(), "CTRL") {
		t.Errorf("missing CTRL label: %q", sink.String())
	}
}
