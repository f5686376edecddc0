// Package typedchan wraps rawchan.Channel with a fixed-size typed view.
// Go generics have no compile-time trivially-copyable constraint, so
// Sized asks the payload type to declare its own wire size instead.
package typedchan

import (
	"context"
	"fmt"

	"github.com/tlink-go/tlink/rawchan"
	"github.com/tlink-go/tlink/task"
)

// Sized is implemented by values that know their own wire size and can
// marshal to and from a fixed-length byte slice. Go generics have no
// built-in notion of "trivially copyable", so TLink asks the type to state
// its own size instead.
type Sized interface {
	Size() int
	MarshalBinary() ([]byte, error)
}

// Unmarshaler decodes a value of fixed wire size from a byte slice of
// exactly that size. Implemented on a pointer receiver alongside Sized.
type Unmarshaler interface {
	UnmarshalBinary([]byte) error
}

// Channel is a typed view over a *rawchan.Channel. T must implement Sized
// (value receiver); payloads are decoded by the decode function given to
// New, not through Unmarshaler.
type Channel[T Sized] struct {
	raw     *rawchan.Channel
	decode  func([]byte) (T, error)
	encSize int
}

// New wraps raw with a typed view. sample is used only to report T's wire
// size up front; it is not retained.
func New[T Sized](raw *rawchan.Channel, sample T, decode func([]byte) (T, error)) *Channel[T] {
	return &Channel[T]{raw: raw, decode: decode, encSize: sample.Size()}
}

// Raw returns the underlying byte channel, for code (subscription teardown,
// driver plumbing) that needs to Close or otherwise manage it directly.
func (c *Channel[T]) Raw() *rawchan.Channel { return c.raw }

// Push encodes v and pushes it onto the underlying channel.
func (c *Channel[T]) Push(v T) error {
	payload, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("typedchan: marshal: %w", err)
	}
	c.raw.Push(payload)
	return nil
}

// Next returns the next decoded value, suspending until one arrives, the
// channel closes, or ctx is cancelled. A payload whose length does not
// match T's declared size is treated as closed/empty. h is the calling
// task's Handle (nil if calling from outside any task); see
// rawchan.Channel.Next for the cooperative-suspension contract.
func (c *Channel[T]) Next(ctx context.Context, h *task.Handle) (T, bool) {
	payload, ok := c.raw.Next(ctx, h)
	if !ok {
		var zero T
		return zero, false
	}
	if len(payload) != c.encSize {
		var zero T
		return zero, false
	}
	v, err := c.decode(payload)
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
