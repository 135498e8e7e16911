// Package peer implements the point-to-point and broadcast transport
// between devices: bounded-retry unicast/broadcast send, and a mutex-
// serialized listener feeding a buffered inbox that implements
// "receive-with-buffer" collection semantics.
//
// TCP stands in for the spec's WebRTC/out-of-scope transport collaborator;
// the core only needs something dial/write/read-shaped, and net.Conn is
// the simplest faithful stand-in.
package peer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/f3rmion/frostwallet/frosterr"
	"github.com/f3rmion/frostwallet/wire"
)

// Dialer opens outbound connections to peer addresses. The zero value
// dials plain TCP with net.Dialer's defaults.
type Dialer struct {
	net.Dialer
}

func (d *Dialer) dial(ctx context.Context, addr string) (net.Conn, error) {
	return d.DialContext(ctx, "tcp", addr)
}

// retryConfig bounds unicast's exponential backoff.
const (
	maxAttempts  = 5
	initialDelay = 50 * time.Millisecond
	maxDelay     = 2 * time.Second
)

// Unicast connects to addr, writes frame, and closes, retrying with
// bounded exponential backoff on connect or write failure. If every
// attempt fails, the returned error wraps frosterr.ErrIoFailure and
// collects every attempt's error via multierror.
func (d *Dialer) Unicast(ctx context.Context, addr string, frame []byte) error {
	var merr *multierror.Error
	delay := initialDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				merr = multierror.Append(merr, ctx.Err())
				return fmt.Errorf("%w: %s: %v", frosterr.ErrIoFailure, addr, merr)
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		if err := d.attempt(ctx, addr, frame); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("attempt %d: %w", attempt+1, err))
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: %s: %v", frosterr.ErrIoFailure, addr, merr)
}

func (d *Dialer) attempt(ctx context.Context, addr string, frame []byte) error {
	conn, err := d.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	_, err = conn.Write(frame)
	return err
}

// Broadcast fans Unicast out to every peer address concurrently. It does
// not abort on a subset of failures; it returns a *multierror.Error
// collecting every peer's failure (nil if every peer succeeded).
func (d *Dialer) Broadcast(ctx context.Context, addrs []string, frame []byte) error {
	var (
		mu   sync.Mutex
		merr *multierror.Error
		wg   sync.WaitGroup
	)

	for _, addr := range addrs {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Unicast(ctx, addr, frame); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", addr, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return merr.ErrorOrNil()
}

// Listener accepts inbound connections, decodes one frame per connection,
// and delivers decoded messages to an Inbox. accept() is serialized behind
// a mutex per the spec's shared-listener-socket policy.
type Listener struct {
	ln    net.Listener
	mu    sync.Mutex
	inbox *Inbox
}

// Listen binds addr and returns a Listener feeding the given Inbox.
func Listen(addr string, inbox *Inbox) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", frosterr.ErrIoFailure, addr, err)
	}
	return &Listener{ln: ln, inbox: inbox}, nil
}

// Addr returns the bound listen address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is cancelled or Close is called.
// Each connection is read on its own goroutine; a connection whose frame
// fails to read or decode is dropped without aborting the listener.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("%w: accept: %v", frosterr.ErrIoFailure, err)
			}
		}
		go l.handle(conn)
	}
}

func (l *Listener) accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ln.Accept()
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return
	}

	frame := append(lenBuf[:], body...)
	msg, err := wire.DecodeFrame(frame)
	if err != nil {
		return
	}
	l.inbox.deliver(msg)
}

// Inbox implements spec.md §4.3's "receive-with-buffer": messages not
// matching the caller's current collection request are appended to a
// deferred buffer rather than discarded, since broadcast reordering means
// a future-phase message may legitimately arrive before the current
// phase completes.
type Inbox struct {
	mu        sync.Mutex
	buffer    []wire.Msg
	pending   []wire.Msg // inbound messages not yet claimed by Collect
	notifyCh  chan struct{}
}

// NewInbox creates an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{notifyCh: make(chan struct{})}
}

func (in *Inbox) deliver(msg wire.Msg) {
	in.mu.Lock()
	in.pending = append(in.pending, msg)
	ch := in.notifyCh
	in.notifyCh = make(chan struct{})
	in.mu.Unlock()
	close(ch)
}

// Collect gathers up to k messages matching match, draining the
// deferred buffer first, then waiting on new inbound frames until k is
// reached, ctx is done, or deadline elapses. Non-matching messages
// (whether already buffered or newly arrived) are moved to the deferred
// buffer, never discarded. Returns whatever was collected if the context
// ends early — a partial result, not an error.
//
// The buffer is rescanned in full on every wake, not just once at entry:
// multiple goroutines can call Collect concurrently on the same Inbox with
// different predicates, and a message one goroutine parks in the buffer
// may be exactly what another, already-waiting goroutine needs. A wake
// that only rescans newly-pending messages would leave that message
// invisible until the buffer happened to be rescanned for some other
// reason, so every iteration folds pending into the buffer and scans the
// whole thing.
func (in *Inbox) Collect(ctx context.Context, k int, match func(wire.Msg) bool) []wire.Msg {
	in.mu.Lock()
	defer in.mu.Unlock()

	var collected []wire.Msg
	for {
		if len(in.pending) > 0 {
			in.buffer = append(in.buffer, in.pending...)
			in.pending = in.pending[:0]
		}

		var remaining []wire.Msg
		for _, m := range in.buffer {
			if len(collected) < k && match(m) {
				collected = append(collected, m)
			} else {
				remaining = append(remaining, m)
			}
		}
		in.buffer = remaining

		if len(collected) >= k {
			return collected
		}

		waitCh := in.notifyCh
		in.mu.Unlock()
		select {
		case <-ctx.Done():
			in.mu.Lock()
			return collected
		case <-waitCh:
			in.mu.Lock()
		}
	}
}
