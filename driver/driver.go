// Package driver defines TLink's external device-driver contract: the
// boundary every protocol implementation (Modbus, OPC-UA, a simulator) must
// satisfy to be driven by the core task/executor/rawchan runtime. The
// interface deals only in raw bytes; Read/Write/Subscribe are generic
// top-level functions layering typed access on top of it.
package driver

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tlink-go/tlink/errcode"
	"github.com/tlink-go/tlink/rawchan"
	"github.com/tlink-go/tlink/subscription"
	"github.com/tlink-go/tlink/task"
	"github.com/tlink-go/tlink/typedchan"
)

// Result carries a driver operation's outcome as a first-class value rather
// than Go's native two-return idiom, because it must survive being carried
// across a task boundary (returned from a Task[Result[T]]) and pattern
// matched on its Err's (category, code) by callers that never unwrap it
// through a live call stack.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok reports whether the operation succeeded.
func (r Result[T]) Ok() bool { return r.Err == nil }

// Driver is the contract every device protocol implementation satisfies.
// Every method that can block on I/O returns a lazy Task rather than
// blocking the calling goroutine directly, so the core scheduler retains
// control of when the operation actually runs.
type Driver interface {
	// Connect establishes the underlying transport (socket, serial port,
	// bus handle). Calling Connect on an already-connected Driver is
	// implementation-defined; simdriver treats it as a no-op success.
	Connect(ctx context.Context) *task.Task[Result[struct{}]]

	// Disconnect tears down the transport. Implementations must make this
	// safe to call even if Connect never succeeded.
	Disconnect(ctx context.Context) *task.Task[Result[struct{}]]

	// ReadInto reads the raw bytes backing path and returns them in
	// Result.Value; the driver allocates the slice.
	ReadInto(ctx context.Context, path string) *task.Task[Result[[]byte]]

	// WriteFrom writes payload to path.
	WriteFrom(ctx context.Context, path string, payload []byte) *task.Task[Result[struct{}]]

	// SubscribeRaw registers interest in path, returning a Result carrying
	// the id used later to unsubscribe and a *rawchan.Channel delivering
	// raw payloads as the underlying value changes.
	SubscribeRaw(ctx context.Context, path string) *task.Task[Result[RawSubscription]]

	// UnsubscribeRaw is the async counterpart used when the caller is
	// already inside a task and can afford to await completion.
	UnsubscribeRaw(ctx context.Context, id int64) *task.Task[Result[struct{}]]

	// UnsubscribeSync tears down subscription id synchronously. Called
	// only from subscription's teardown path, after the channel has
	// already closed, never from within a task body.
	UnsubscribeSync(id int64) error
}

// RawSubscription is what SubscribeRaw hands back: an id for later
// unsubscription, and the raw byte channel notifications arrive on.
type RawSubscription struct {
	ID      int64
	Channel *rawchan.Channel
}

// Sized is an alias of typedchan.Sized, the constraint on Subscribe's
// payload type, re-exported so callers of driver need not import typedchan
// to name it.
type Sized = typedchan.Sized

// FixedBinary is implemented by fixed-width numeric types TLink encodes
// with encoding/binary, letting Read/Write work generically over register
// values.
type FixedBinary interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

func sizeOf[T FixedBinary]() int {
	var zero T
	switch any(zero).(type) {
	case uint8, int8:
		return 1
	case uint16, int16:
		return 2
	case uint32, int32, float32:
		return 4
	default:
		return 8
	}
}

// Read reads path and decodes it as T using little-endian encoding/binary.
func Read[T FixedBinary](ctx context.Context, d Driver, path string) *task.Task[Result[T]] {
	return task.New(func(h *task.Handle) (Result[T], error) {
		raw, err := task.Await(h, d.ReadInto(ctx, path))
		if err != nil {
			return Result[T]{}, err
		}
		if raw.Err != nil {
			return Result[T]{Err: raw.Err}, nil
		}
		n := sizeOf[T]()
		if len(raw.Value) != n {
			return Result[T]{Err: errcode.New(errcode.Code{Category: errcode.Protocol, Num: 2},
				fmt.Sprintf("read %s: expected %d bytes, got %d", path, n, len(raw.Value)))}, nil
		}
		v, decErr := decodeFixed[T](raw.Value)
		if decErr != nil {
			return Result[T]{Err: decErr}, nil
		}
		return Result[T]{Value: v}, nil
	})
}

// Write encodes v with encoding/binary and writes it to path.
func Write[T FixedBinary](ctx context.Context, d Driver, path string, v T) *task.Task[Result[struct{}]] {
	return task.New(func(h *task.Handle) (Result[struct{}], error) {
		payload, err := encodeFixed(v)
		if err != nil {
			return Result[struct{}]{Err: err}, nil
		}
		res, err := task.Await(h, d.WriteFrom(ctx, path, payload))
		if err != nil {
			return Result[struct{}]{}, err
		}
		return res, nil
	})
}

// Subscribe subscribes to path and wraps the result in a
// subscription.Subscription[T], decoding each notification as T via
// decode.
func Subscribe[T typedchan.Sized](
	ctx context.Context, d Driver, path string, decode func([]byte) (T, error),
) *task.Task[Result[*subscription.Subscription[T]]] {
	return task.New(func(h *task.Handle) (Result[*subscription.Subscription[T]], error) {
		res, err := task.Await(h, d.SubscribeRaw(ctx, path))
		if err != nil {
			return Result[*subscription.Subscription[T]]{}, err
		}
		if res.Err != nil {
			return Result[*subscription.Subscription[T]]{Err: res.Err}, nil
		}
		var zero T
		raw := subscription.NewRawSubscription(res.Value.ID, res.Value.Channel, d)
		typed := typedchan.New(res.Value.Channel, zero, decode)
		return Result[*subscription.Subscription[T]]{
			Value: subscription.New(raw, typed),
		}, nil
	})
}

func decodeFixed[T FixedBinary](b []byte) (T, error) {
	var v T
	switch p := any(&v).(type) {
	case *uint8:
		*p = b[0]
	case *int8:
		*p = int8(b[0])
	case *uint16:
		*p = binary.LittleEndian.Uint16(b)
	case *int16:
		*p = int16(binary.LittleEndian.Uint16(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b)
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b))
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return v, fmt.Errorf("driver: unsupported fixed-binary type %T", v)
	}
	return v, nil
}

func encodeFixed[T FixedBinary](v T) ([]byte, error) {
	n := sizeOf[T]()
	b := make([]byte, n)
	switch x := any(v).(type) {
	case uint8:
		b[0] = x
	case int8:
		b[0] = uint8(x)
	case uint16:
		binary.LittleEndian.PutUint16(b, x)
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case uint32:
		binary.LittleEndian.PutUint32(b, x)
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case uint64:
		binary.LittleEndian.PutUint64(b, x)
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	default:
		return nil, fmt.Errorf("driver: unsupported fixed-binary type %T", v)
	}
	return b, nil
}
