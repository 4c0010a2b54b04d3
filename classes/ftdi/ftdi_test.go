package ftdi

import (
	"testing"
	"time"

	usb "github.com/halvard-dev/usbdirect"
)

func TestComputeDivisor(t *testing.T) {
	cases := []struct {
		baud uint32
		want uint32
	}{
		{9600, 2500},
		{115200, 208},
		{3000000, 8},
		{1, 0x1FFFF},
		{0, 0x1FFFF},
	}
	for _, c := range cases {
		got := computeDivisor(c.baud)
		if got != c.want {
			t.Errorf("computeDivisor(%d) = %d, want %d", c.baud, got, c.want)
		}
		if got < 1 || got > 0x1FFFF {
			t.Errorf("computeDivisor(%d) = %d out of range", c.baud, got)
		}
	}
}

type fakeHandle struct {
	lastReq usb.ControlRequest
}

func (f *fakeHandle) ControlTransfer(req usb.ControlRequest, buf usb.TransferBuffer, timeout time.Duration) (int, error) {
	f.lastReq = req
	return len(buf.Data), nil
}

func (f *fakeHandle) BulkTransfer(endpoint uint8, buf usb.TransferBuffer, timeout time.Duration) (int, error) {
	return len(buf.Data), nil
}

func TestSetBaudRate9600(t *testing.T) {
	fake := &fakeHandle{}
	b := &Bridge{Handle: fake}
	if err := b.SetBaudRate(9600); err != nil {
		t.Fatal(err)
	}
	if fake.lastReq.Value != 2500 {
		t.Errorf("Value = %d, want 2500", fake.lastReq.Value)
	}
	if fake.lastReq.Index != 0 {
		t.Errorf("Index = %d, want 0 (interface 0 in high byte, no divisor overflow bit)", fake.lastReq.Index)
	}
}

func TestSetBaudRateHighBitInIndex(t *testing.T) {
	fake := &fakeHandle{}
	b := &Bridge{Handle: fake, Interface: 0}
	divisor := computeDivisor(1)
	if divisor&0x10000 == 0 {
		t.Fatalf("test assumption broken: divisor %d has no bit 16 set", divisor)
	}
	if err := b.SetBaudRate(1); err != nil {
		t.Fatal(err)
	}
	if fake.lastReq.Index&0x0001 == 0 {
		t.Errorf("Index = 0x%04x, want bit 0 set for divisor top bit", fake.lastReq.Index)
	}
}

func TestSetBaudRateInterfaceInHighByte(t *testing.T) {
	fake := &fakeHandle{}
	b := &Bridge{Handle: fake, Interface: 2}
	if err := b.SetBaudRate(9600); err != nil {
		t.Fatal(err)
	}
	if fake.lastReq.Index != 0x0200 {
		t.Errorf("Index = 0x%04x, want 0x0200 (interface 2 in high byte)", fake.lastReq.Index)
	}
}

func TestSetLatencyTimerClampsToOne(t *testing.T) {
	fake := &fakeHandle{}
	b := &Bridge{Handle: fake}
	if err := b.SetLatencyTimer(0); err != nil {
		t.Fatal(err)
	}
	if fake.lastReq.Value != 1 {
		t.Errorf("Value = %d, want 1", fake.lastReq.Value)
	}
}
