package cdcacm

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunDuplex pumps bytes between the bridge's USB data endpoints and a
// local peer (a terminal, pipe, or file) until either direction fails or
// ctx is cancelled. The inbound (device-to-peer) and outbound
// (peer-to-device) directions run as two goroutines under a single
// errgroup.Group: whichever fails first cancels ctx, the other goroutine
// observes that on its next iteration and returns, and Wait reports the
// first error. This replaces a hand-rolled sync.WaitGroup plus error
// channel for the same paired-goroutine shutdown.
func (b *Bridge) RunDuplex(ctx context.Context, peer io.ReadWriter, timeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		buf := make([]byte, 256)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := b.Read(buf, timeout)
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			if _, err := peer.Write(buf[:n]); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		buf := make([]byte, 256)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := peer.Read(buf)
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			if _, err := b.Write(buf[:n], timeout); err != nil {
				return err
			}
		}
	})

	return g.Wait()
}
