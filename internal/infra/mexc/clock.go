package mexc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Clock tracks the offset between the local clock and the exchange's
// server time. Signed requests must carry a timestamp inside the
// exchange's validity window; with a skewed local clock they would be
// rejected with code -1021 regardless of retries.
type Clock struct {
	offsetMS atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClock() *Clock {
	return &Clock{}
}

// NowMS returns exchange-aligned Unix milliseconds.
func (c *Clock) NowMS() int64 {
	return time.Now().UnixMilli() + c.offsetMS.Load()
}

// OffsetMS returns the current server-minus-local offset.
func (c *Clock) OffsetMS() int64 {
	return c.offsetMS.Load()
}

// Observe feeds one externally fetched server timestamp into the offset,
// for callers that do not run the sync poller.
func (c *Clock) Observe(serverMS int64) {
	c.update(serverMS)
}

// update recomputes the offset from an observed server timestamp.
func (c *Clock) update(serverMS int64) {
	offset := serverMS - time.Now().UnixMilli()
	prev := c.offsetMS.Swap(offset)
	if diff := offset - prev; diff > 500 || diff < -500 {
		slog.Warn("Server clock offset shifted",
			slog.Int64("offset_ms", offset),
			slog.Int64("prev_ms", prev))
	}
}

// StartSync polls the server time endpoint on a fixed interval and keeps
// the offset current. The first sync runs immediately; a failed poll keeps
// the previous offset, which is better than resetting to zero.
func (c *Clock) StartSync(ctx context.Context, client *Client, every time.Duration) {
	ctx, c.cancel = context.WithCancel(ctx)

	sync := func() {
		serverMS, err := client.ServerTime(ctx)
		if err != nil {
			slog.Warn("Server time sync failed", slog.Any("error", err))
			return
		}
		c.update(serverMS)
	}
	sync()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sync()
			}
		}
	}()
}

// StopSync terminates the poller and waits for it to exit.
func (c *Clock) StopSync() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
}
