package dfu

import (
	"testing"
	"time"

	usb "github.com/halvard-dev/usbdirect"
)

type fakeHandle struct {
	statuses    []Status
	calls       int
	lastReq     usb.ControlRequest
	lastBuf     []byte
	lastDNLoad  []byte
}

func (f *fakeHandle) ControlTransfer(req usb.ControlRequest, buf usb.TransferBuffer, timeout time.Duration) (int, error) {
	f.lastReq = req
	f.lastBuf = append([]byte(nil), buf.Data...)
	if req.Request == ReqDNLoad {
		f.lastDNLoad = append([]byte(nil), buf.Data...)
	}
	if req.Request == ReqGetStatus {
		s := f.statuses[f.calls]
		if f.calls < len(f.statuses)-1 {
			f.calls++
		}
		b := buf.Data
		b[0] = s.Status
		ms := uint32(s.PollTimeout / time.Millisecond)
		b[1] = byte(ms)
		b[2] = byte(ms >> 8)
		b[3] = byte(ms >> 16)
		b[4] = s.State
		b[5] = s.StringIndex
		return 6, nil
	}
	return len(buf.Data), nil
}

func TestParseStatus(t *testing.T) {
	b := []byte{0x00, 0x0A, 0x00, 0x00, StateDFUIdle, 0x00}
	status, err := parseStatus(b)
	if err != nil {
		t.Fatal(err)
	}
	if status.PollTimeout != 10*time.Millisecond {
		t.Errorf("PollTimeout = %v, want 10ms", status.PollTimeout)
	}
	if status.State != StateDFUIdle {
		t.Errorf("State = %d, want %d", status.State, StateDFUIdle)
	}
}

func TestParseStatusShortBuffer(t *testing.T) {
	if _, err := parseStatus([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short status buffer")
	}
}

func TestWaitWhileBusyZeroPollDoesNotSpinForever(t *testing.T) {
	fake := &fakeHandle{statuses: []Status{
		{State: StateDFUDNBusy, PollTimeout: 0},
		{State: StateDFUDNBusy, PollTimeout: 0},
		{State: StateDFUDNLoadIdle, PollTimeout: 0},
	}}
	b := &Bridge{Handle: fake}
	start := time.Now()
	status, err := b.waitWhileBusy()
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateDFUDNLoadIdle {
		t.Errorf("State = %d, want dfuDNLOAD-IDLE", status.State)
	}
	if time.Since(start) <= 0 {
		t.Errorf("expected non-zero elapsed wait across busy polls")
	}
}

func TestMassErase(t *testing.T) {
	fake := &fakeHandle{statuses: []Status{
		{State: StateDFUDNBusy, PollTimeout: time.Millisecond},
		{State: StateDFUIdle, PollTimeout: 0},
	}}
	b := &Bridge{Handle: fake}
	if err := b.MassErase(); err != nil {
		t.Fatal(err)
	}
	if len(fake.lastDNLoad) != 2 || fake.lastDNLoad[0] != 0x41 || fake.lastDNLoad[1] != 0x00 {
		t.Errorf("expected two-byte mass-erase payload [0x41 0x00], got % X", fake.lastDNLoad)
	}
}
