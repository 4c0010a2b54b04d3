package usb

import "testing"

// TestChunkedTransferStopsOnShortPacket exercises §8 scenario 6: a 40 KiB
// OUT buffer on a backend capped at 16384 bytes per submission is chunked
// into 16384/16384/7168; when the second submission reports a short
// packet (8192 of the requested 16384), the loop stops there and the
// third chunk is never submitted.
func TestChunkedTransferStopsOnShortPacket(t *testing.T) {
	const total = 40 * 1024
	data := make([]byte, total)
	var submissions [][]byte

	n, err := chunkedTransfer(data, true, func(chunk []byte) (int, error) {
		submissions = append(submissions, chunk)
		if len(submissions) == 2 {
			return 8192, nil
		}
		return len(chunk), nil
	})
	if err != nil {
		t.Fatalf("chunkedTransfer: %v", err)
	}
	if len(submissions) != 2 {
		t.Fatalf("expected exactly 2 submissions, got %d", len(submissions))
	}
	if len(submissions[0]) != 16384 || len(submissions[1]) != 16384 {
		t.Fatalf("unexpected chunk sizes: %d, %d", len(submissions[0]), len(submissions[1]))
	}
	if n != 16384+8192 {
		t.Errorf("total = %d, want %d", n, 16384+8192)
	}
}

// TestChunkedTransferExactThreeChunksWhenNoShortPacket confirms the chunk
// boundaries themselves: 16384, 16384, 7168 for a 40 KiB buffer with no
// short packet along the way.
func TestChunkedTransferExactThreeChunksWhenNoShortPacket(t *testing.T) {
	const total = 40 * 1024
	data := make([]byte, total)
	var sizes []int

	n, err := chunkedTransfer(data, true, func(chunk []byte) (int, error) {
		sizes = append(sizes, len(chunk))
		return len(chunk), nil
	})
	if err != nil {
		t.Fatalf("chunkedTransfer: %v", err)
	}
	want := []int{16384, 16384, 7168}
	if len(sizes) != len(want) {
		t.Fatalf("got %d submissions, want %d: %v", len(sizes), len(want), sizes)
	}
	for i, w := range want {
		if sizes[i] != w {
			t.Errorf("submission %d size = %d, want %d", i, sizes[i], w)
		}
	}
	if n != total {
		t.Errorf("total = %d, want %d", n, total)
	}
}

// TestChunkedTransferUnchunkedWhenCapabilityPresent confirms a single
// submission is issued when the device reports the no-packet-size-limit
// capability, regardless of buffer length.
func TestChunkedTransferUnchunkedWhenCapabilityPresent(t *testing.T) {
	data := make([]byte, 40*1024)
	calls := 0
	n, err := chunkedTransfer(data, false, func(chunk []byte) (int, error) {
		calls++
		return len(chunk), nil
	})
	if err != nil {
		t.Fatalf("chunkedTransfer: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 submission, got %d", calls)
	}
	if n != len(data) {
		t.Errorf("total = %d, want %d", n, len(data))
	}
}
