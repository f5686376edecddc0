// Package simdriver implements an in-memory driver.Driver backed by a JSON
// register document, for examples and tests that need a real (not mocked)
// driver exercising connect/read/write/subscribe/unsubscribe end to end.
//
// Register storage and path resolution use tidwall/gjson and tidwall/sjson
// so a register path is just a gjson dotted/bracketed path into one JSON
// document; google/uuid tags each simulated subscribe round-trip for
// internal correlation in log output.
package simdriver

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/tlink-go/tlink/driver"
	"github.com/tlink-go/tlink/errcode"
	"github.com/tlink-go/tlink/logx"
	"github.com/tlink-go/tlink/rawchan"
	"github.com/tlink-go/tlink/task"
)

// Driver is an in-memory register-file simulator. The zero value is not
// usable; construct with New.
type Driver struct {
	mu        sync.Mutex
	doc       string
	connected bool

	jitterMin, jitterMax time.Duration
	rng                  *rand.Rand
	log                  *slog.Logger

	nextSubID int64
	subs      map[int64]*subEntry
	pathSubs  map[string][]int64
}

type subEntry struct {
	path string
	ch   *rawchan.Channel
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithLogger attaches a structured logger, used to record each simulated
// subscribe round-trip's correlation id. Default is a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// New constructs a Driver with an empty register document. jitterMin and
// jitterMax bound the simulated per-operation latency; rng drives both the
// jitter and nothing else, so seeding it makes a Driver's timing
// deterministic for tests.
func New(jitterMin, jitterMax time.Duration, rng *rand.Rand, opts ...Option) *Driver {
	d := &Driver{
		doc:       "{}",
		jitterMin: jitterMin,
		jitterMax: jitterMax,
		rng:       rng,
		log:       logx.NoOp(),
		subs:      make(map[int64]*subEntry),
		pathSubs:  make(map[string][]int64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) jitter() time.Duration {
	if d.jitterMax <= d.jitterMin {
		return d.jitterMin
	}
	span := d.jitterMax - d.jitterMin
	return d.jitterMin + time.Duration(d.rng.Int63n(int64(span)))
}

func (d *Driver) sleep(ctx context.Context) error {
	t := time.NewTimer(d.jitter())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect marks the simulated transport connected. Idempotent.
func (d *Driver) Connect(ctx context.Context) *task.Task[driver.Result[struct{}]] {
	return task.New(func(h *task.Handle) (driver.Result[struct{}], error) {
		if err := d.sleep(ctx); err != nil {
			return driver.Result[struct{}]{Err: timeoutErr(err)}, nil
		}
		d.mu.Lock()
		d.connected = true
		d.mu.Unlock()
		return driver.Result[struct{}]{}, nil
	})
}

// Disconnect marks the simulated transport disconnected. Safe to call even
// if Connect never succeeded.
func (d *Driver) Disconnect(ctx context.Context) *task.Task[driver.Result[struct{}]] {
	return task.New(func(h *task.Handle) (driver.Result[struct{}], error) {
		if err := d.sleep(ctx); err != nil {
			return driver.Result[struct{}]{Err: timeoutErr(err)}, nil
		}
		d.mu.Lock()
		d.connected = false
		d.mu.Unlock()
		return driver.Result[struct{}]{}, nil
	})
}

// ReadInto reads the register at path back out of the JSON document. A
// register's wire bytes are stored base64-encoded so the simulator can hold
// arbitrary driver payloads (raw protocol frames, fixed-width numerics)
// inside one JSON document without requiring every payload to itself be
// valid JSON.
func (d *Driver) ReadInto(ctx context.Context, path string) *task.Task[driver.Result[[]byte]] {
	return task.New(func(h *task.Handle) (driver.Result[[]byte], error) {
		if err := d.sleep(ctx); err != nil {
			return driver.Result[[]byte]{Err: timeoutErr(err)}, nil
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.connected {
			return driver.Result[[]byte]{Err: notConnectedErr()}, nil
		}
		res := gjson.Get(d.doc, path)
		if !res.Exists() {
			return driver.Result[[]byte]{Err: noSuchRegisterErr(path)}, nil
		}
		raw, err := base64.StdEncoding.DecodeString(res.String())
		if err != nil {
			return driver.Result[[]byte]{Err: errcode.New(
				errcode.Code{Category: errcode.Protocol, Num: 6},
				fmt.Sprintf("simdriver: corrupt register %q: %v", path, err))}, nil
		}
		return driver.Result[[]byte]{Value: raw}, nil
	})
}

// WriteFrom base64-encodes payload and sets it at path in the register
// document, then dispatches the raw payload to any subscribers of that
// path.
func (d *Driver) WriteFrom(ctx context.Context, path string, payload []byte) *task.Task[driver.Result[struct{}]] {
	return task.New(func(h *task.Handle) (driver.Result[struct{}], error) {
		if err := d.sleep(ctx); err != nil {
			return driver.Result[struct{}]{Err: timeoutErr(err)}, nil
		}
		d.mu.Lock()
		if !d.connected {
			d.mu.Unlock()
			return driver.Result[struct{}]{Err: notConnectedErr()}, nil
		}
		encoded := base64.StdEncoding.EncodeToString(payload)
		updated, err := sjson.Set(d.doc, path, encoded)
		if err != nil {
			d.mu.Unlock()
			return driver.Result[struct{}]{Err: errcode.New(
				errcode.Code{Category: errcode.Protocol, Num: 3},
				fmt.Sprintf("simdriver: set %s: %v", path, err))}, nil
		}
		d.doc = updated
		targets := append([]int64(nil), d.pathSubs[path]...)
		d.mu.Unlock()

		d.notify(targets, payload)
		return driver.Result[struct{}]{}, nil
	})
}

func (d *Driver) notify(subIDs []int64, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range subIDs {
		if s, ok := d.subs[id]; ok {
			s.ch.Push(payload)
		}
	}
}

// SubscribeRaw registers interest in path, returning a raw channel every
// future WriteFrom to that path (from any caller, including itself) pushes
// to.
func (d *Driver) SubscribeRaw(ctx context.Context, path string) *task.Task[driver.Result[driver.RawSubscription]] {
	return task.New(func(h *task.Handle) (driver.Result[driver.RawSubscription], error) {
		if err := d.sleep(ctx); err != nil {
			return driver.Result[driver.RawSubscription]{Err: timeoutErr(err)}, nil
		}
		corrID := uuid.New()
		d.log.Debug("simdriver: subscribe round-trip", "path", path, "correlation_id", corrID)

		d.mu.Lock()
		if !d.connected {
			d.mu.Unlock()
			return driver.Result[driver.RawSubscription]{Err: notConnectedErr()}, nil
		}
		d.nextSubID++
		id := d.nextSubID
		ch := rawchan.New()
		d.subs[id] = &subEntry{path: path, ch: ch}
		d.pathSubs[path] = append(d.pathSubs[path], id)
		d.mu.Unlock()

		d.log.Debug("simdriver: subscribed", "path", path, "correlation_id", corrID, "subscription_id", id)
		return driver.Result[driver.RawSubscription]{
			Value: driver.RawSubscription{ID: id, Channel: ch},
		}, nil
	})
}

// UnsubscribeRaw is the async counterpart to UnsubscribeSync, for callers
// already inside a task.
func (d *Driver) UnsubscribeRaw(ctx context.Context, id int64) *task.Task[driver.Result[struct{}]] {
	return task.New(func(h *task.Handle) (driver.Result[struct{}], error) {
		if err := d.sleep(ctx); err != nil {
			return driver.Result[struct{}]{Err: timeoutErr(err)}, nil
		}
		if err := d.UnsubscribeSync(id); err != nil {
			return driver.Result[struct{}]{Err: err}, nil
		}
		return driver.Result[struct{}]{}, nil
	})
}

// UnsubscribeSync drops the registry entry for id. It does not close the
// subscription's channel — subscription.RawSubscription.Release does that
// before calling UnsubscribeSync, per invariant ordering.
func (d *Driver) UnsubscribeSync(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.subs[id]
	if !ok {
		return noSuchSubscriptionErr(id)
	}
	delete(d.subs, id)
	ids := d.pathSubs[entry.path]
	for i, x := range ids {
		if x == id {
			d.pathSubs[entry.path] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func timeoutErr(err error) error {
	return errcode.New(errcode.Code{Category: errcode.Timeout, Num: 1}, "simdriver: "+err.Error())
}

func notConnectedErr() error {
	return errcode.New(errcode.Code{Category: errcode.Transport, Num: 1}, "simdriver: not connected")
}

func noSuchRegisterErr(path string) error {
	return errcode.New(errcode.Code{Category: errcode.Protocol, Num: 4},
		fmt.Sprintf("simdriver: no such register %q", path))
}

func noSuchSubscriptionErr(id int64) error {
	return errcode.New(errcode.Code{Category: errcode.Protocol, Num: 5},
		fmt.Sprintf("simdriver: no such subscription %d", id))
}
