package apns

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/semaphore"
)

// connState is the connection health state machine:
//
//	connecting -> ready -> draining -> closed
//
// Draining is entered on a server GOAWAY or idle timeout: no new
// streams are granted but in-flight exchanges finish. Closed is
// terminal and triggers eviction from the pool.
type connState int32

const (
	stateConnecting connState = iota
	stateReady
	stateDraining
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "closed"
	}
}

var errConnUnavailable = errors.New("apns: connection cannot take new streams")

// conn wraps one multiplexed HTTP/2 connection to an APNs endpoint.
// Its stream table is guarded by a semaphore sized from the negotiated
// concurrency budget: a lease is acquired for the whole exchange and
// released on every path, so the budget is never exceeded. Once a
// lease is granted, the exchange proceeds with no further coordination
// with other streams on the same connection.
type conn struct {
	cc       *http2.ClientConn
	endpoint Endpoint
	streams  *semaphore.Weighted
	budget   int64
	state    atomic.Int32
	inflight atomic.Int64
	lastUsed atomic.Int64 // unix nanoseconds
}

// newConn wraps an established HTTP/2 client connection. The stream
// budget is the server-negotiated MaxConcurrentStreams, capped by
// maxStreams.
func newConn(cc *http2.ClientConn, endpoint Endpoint, maxStreams int) *conn {
	budget := int64(maxStreams)
	if st := cc.State(); st.MaxConcurrentStreams > 0 &&
		int64(st.MaxConcurrentStreams) < budget {
		budget = int64(st.MaxConcurrentStreams)
	}
	c := &conn{
		cc:       cc,
		endpoint: endpoint,
		streams:  semaphore.NewWeighted(budget),
		budget:   budget,
	}
	c.state.Store(int32(stateReady))
	c.touch()
	return c
}

func (c *conn) currentState() connState { return connState(c.state.Load()) }

// setState advances the state machine; a terminal state is never left.
func (c *conn) setState(next connState) {
	for {
		cur := c.state.Load()
		if connState(cur) >= next {
			return
		}
		if c.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (c *conn) touch() { c.lastUsed.Store(time.Now().UnixNano()) }

// idleFor returns true when the connection has had no activity for at
// least d and carries no in-flight streams.
func (c *conn) idleFor(d time.Duration) bool {
	if c.inflight.Load() > 0 {
		return false
	}
	return time.Since(time.Unix(0, c.lastUsed.Load())) >= d
}

// usable reports whether new streams may be leased. It also notices a
// server GOAWAY surfaced by the transport and moves to draining.
func (c *conn) usable() bool {
	if c.currentState() != stateReady {
		return false
	}
	if !c.cc.CanTakeNewRequest() {
		c.setState(stateDraining)
		return false
	}
	return true
}

// tryAcquire grants a stream lease without blocking. The returned
// release function is safe to call exactly once on any outcome path.
func (c *conn) tryAcquire() (release func(), ok bool) {
	if !c.usable() || !c.streams.TryAcquire(1) {
		return nil, false
	}
	return c.lease(), true
}

// acquire blocks until a stream lease is free, the context is done or
// the connection becomes unusable.
func (c *conn) acquire(ctx context.Context) (release func(), err error) {
	if !c.usable() {
		return nil, errConnUnavailable
	}
	if err := c.streams.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	// the connection may have drained while we waited
	if !c.usable() {
		c.streams.Release(1)
		return nil, errConnUnavailable
	}
	return c.lease(), nil
}

func (c *conn) lease() func() {
	c.inflight.Add(1)
	c.touch()
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			c.inflight.Add(-1)
			c.touch()
			c.streams.Release(1)
		}
	}
}

// roundTrip performs one request/response exchange on a leased stream.
// A transport-level failure closes the connection immediately; the
// caller's context aborts only the pending request, which the http2
// layer reports without tearing down the connection.
func (c *conn) roundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.cc.RoundTrip(req)
	if err != nil {
		if req.Context().Err() != nil {
			// request-level cancellation, the connection stays up
			return nil, err
		}
		c.close()
		return nil, &TransportError{Err: err}
	}
	c.touch()
	return resp, nil
}

// drain asks the server to finish in-flight streams and then closes.
func (c *conn) drain(ctx context.Context) {
	c.setState(stateDraining)
	if err := c.cc.Shutdown(ctx); err != nil {
		c.cc.Close()
	}
	c.setState(stateClosed)
}

// close tears the connection down immediately.
func (c *conn) close() {
	c.setState(stateClosed)
	c.cc.Close()
}
