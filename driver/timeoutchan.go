package driver

import (
	"context"
	"time"

	"code.hybscloud.com/iox"

	"github.com/tlink-go/tlink/errcode"
	"github.com/tlink-go/tlink/rawchan"
	"github.com/tlink-go/tlink/task"
)

// AwaitNotification suspends through h for at most timeout, returning the
// next payload ch delivers. It is a bounded wait built entirely on top of
// rawchan.Channel.Next via context.WithTimeout — rawchan itself carries no
// timer of its own.
func AwaitNotification(ctx context.Context, h *task.Handle, ch *rawchan.Channel, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, ok := ch.Next(ctx, h)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, errcode.New(errcode.Code{Category: errcode.Timeout, Num: 2}, "driver: "+err.Error())
		}
		return nil, errcode.New(errcode.Code{Category: errcode.Transport, Num: 2}, "driver: channel closed")
	}
	return payload, nil
}

// TryAwaitNotification polls ch once without suspending, returning
// errcode.ErrWouldBlock if nothing is buffered right now.
func TryAwaitNotification(ch *rawchan.Channel) ([]byte, error) {
	payload, ok := ch.TryNext()
	if !ok {
		return nil, errcode.ErrWouldBlock
	}
	return payload, nil
}

// PollNotification retries TryAwaitNotification up to attempts times,
// backing off between tries with iox.Backoff the way a non-blocking
// transport read waits for readiness. It returns errcode.ErrWouldBlock if
// attempts is exhausted with nothing delivered.
func PollNotification(ch *rawchan.Channel, attempts int) ([]byte, error) {
	var bo iox.Backoff
	for i := 0; i < attempts; i++ {
		payload, err := TryAwaitNotification(ch)
		if err == nil {
			return payload, nil
		}
		if i < attempts-1 {
			bo.Wait()
		}
	}
	return nil, errcode.ErrWouldBlock
}
