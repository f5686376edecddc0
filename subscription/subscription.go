// Package subscription implements TLink's teardown contract for an active
// driver subscription: explicit atomic refcounting plus a sync.Once
// teardown body, since Go has no destructors to run the equivalent
// cleanup automatically.
package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/tlink-go/tlink/rawchan"
	"github.com/tlink-go/tlink/typedchan"
)

// Unsubscriber is the slice of driver.Driver that teardown needs. Declared
// locally rather than importing the driver package, which in turn imports
// subscription — driver.Driver satisfies this interface directly.
type Unsubscriber interface {
	UnsubscribeSync(id int64) error
}

// RawSubscription owns a subscription's lifetime: a channel of raw
// payloads and the driver handle needed to release the underlying protocol
// resource when the last reference goes away. Acquire/Release are the Go
// substitute for shared_ptr copy/destroy.
type RawSubscription struct {
	ID      int64
	Channel *rawchan.Channel

	driver Unsubscriber
	refs   atomic.Int32
	once   sync.Once
}

// NewRawSubscription wraps an active subscription. The returned
// RawSubscription starts with a reference count of one, owned by the
// caller.
func NewRawSubscription(id int64, ch *rawchan.Channel, d Unsubscriber) *RawSubscription {
	rs := &RawSubscription{ID: id, Channel: ch, driver: d}
	rs.refs.Store(1)
	return rs
}

// Acquire increments the reference count and returns rs, mirroring a
// shared_ptr copy.
func (rs *RawSubscription) Acquire() *RawSubscription {
	rs.refs.Add(1)
	return rs
}

// Release decrements the reference count. When it reaches zero, Release
// closes rs's channel and then synchronously calls the driver's
// UnsubscribeSync, in that order, per invariant: the channel must be
// closed before the driver releases the underlying protocol resource, so
// no consumer can observe a value arrive after the subscription is
// logically gone. The teardown body runs at most once regardless of how
// many goroutines race the final Release.
func (rs *RawSubscription) Release() {
	if rs.refs.Add(-1) > 0 {
		return
	}
	rs.once.Do(func() {
		rs.Channel.Close()
		_ = rs.driver.UnsubscribeSync(rs.ID)
	})
}

// Subscription bundles a ref-counted RawSubscription with a typed view over
// its channel.
type Subscription[T typedchan.Sized] struct {
	raw   *RawSubscription
	typed *typedchan.Channel[T]
}

// New builds a Subscription from an already-acquired RawSubscription and a
// typed channel view over the same underlying rawchan.Channel.
func New[T typedchan.Sized](raw *RawSubscription, typed *typedchan.Channel[T]) *Subscription[T] {
	return &Subscription[T]{raw: raw, typed: typed}
}

// Channel returns the typed channel view notifications arrive on.
func (s *Subscription[T]) Channel() *typedchan.Channel[T] { return s.typed }

// ID returns the subscription identifier the driver assigned.
func (s *Subscription[T]) ID() int64 { return s.raw.ID }

// Clone acquires an additional reference to the underlying subscription,
// mirroring a shared_ptr copy: the returned Subscription is an independent
// owner that must itself be Released.
func (s *Subscription[T]) Clone() *Subscription[T] {
	return &Subscription[T]{raw: s.raw.Acquire(), typed: s.typed}
}

// Release drops this Subscription's reference. Once the last reference
// anywhere (including clones) releases, the channel closes and the
// driver's UnsubscribeSync runs exactly once.
func (s *Subscription[T]) Release() { s.raw.Release() }
