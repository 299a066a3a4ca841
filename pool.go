package apns

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/net/http2"
)

// GrowPolicy decides what happens when every pooled connection is at
// its concurrency budget.
type GrowPolicy int

const (
	// GrowConnections opens an additional connection (up to MaxConns)
	// when no stream lease is immediately available.
	GrowConnections GrowPolicy = iota
	// QueueRequests waits for a lease on the least-loaded connection
	// instead of opening new ones eagerly.
	QueueRequests
)

// connPool maintains the long-lived connections of one client to one
// endpoint. Connections are established lazily on first use, recycled
// on transport failure and evicted when idle; dials to a degraded
// endpoint are spaced by exponential backoff and a circuit breaker so
// a failing service is not hammered.
//
// All pool mutation happens under the mutex: an acquirer is never
// handed a connection already marked closed.
type connPool struct {
	endpoint Endpoint
	conf     *Config
	log      zerolog.Logger

	mu       sync.Mutex
	conns    []*conn
	dialing  int           // dials in progress, counted against MaxConns
	dialDone chan struct{} // closed and replaced when a dial attempt completes
	naptime  time.Time     // no redial before this after a dial failure

	redial  *backoff.ExponentialBackOff
	breaker *gobreaker.CircuitBreaker[*conn]

	janitorOnce sync.Once
	done        chan struct{}
	closed      bool
}

func newConnPool(endpoint Endpoint, conf *Config, log zerolog.Logger) *connPool {
	redial := backoff.NewExponentialBackOff()
	redial.InitialInterval = time.Second
	redial.MaxInterval = 5 * time.Minute
	redial.MaxElapsedTime = 0
	p := &connPool{
		endpoint: endpoint,
		conf:     conf,
		log:      log,
		redial:   redial,
		dialDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.breaker = gobreaker.NewCircuitBreaker[*conn](gobreaker.Settings{
		Name:    "apns-dial-" + endpoint.Host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a caller abandoning its own dial says nothing about endpoint
		// health; such errors come back as the bare context sentinel,
		// while genuine handshake timeouts stay wrapped and count
		IsSuccessful: func(err error) bool {
			return err == nil || err == context.Canceled ||
				err == context.DeadlineExceeded
		},
	})
	return p
}

// acquire returns a connection with a granted stream lease. The
// release function must be called when the exchange completes,
// regardless of outcome.
func (p *connPool) acquire(ctx context.Context) (*conn, func(), error) {
	for {
		c, release, wait, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		if c != nil {
			return c, release, nil
		}
		if wait == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-wait:
		}
	}
}

// tryAcquire makes one pass over the pool: lease from a ready
// connection, dial a new one if policy and backoff allow, or report a
// channel to wait on. Exactly one of the return values is meaningful.
func (p *connPool) tryAcquire(ctx context.Context) (c *conn, release func(), wait <-chan struct{}, err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, nil, ErrClientClosed
	}
	p.prune()
	// a free stream on an already open connection is the cheap path
	for _, pc := range p.conns {
		if release, ok := pc.tryAcquire(); ok {
			p.mu.Unlock()
			return pc, release, nil, nil
		}
	}
	mayDial := len(p.conns)+p.dialing < p.conf.MaxConns &&
		time.Now().After(p.naptime)
	if p.conf.GrowPolicy == QueueRequests && len(p.conns) > 0 {
		// queue on the least-loaded connection instead of growing
		if pc := p.leastLoaded(); pc != nil {
			p.mu.Unlock()
			release, err := pc.acquire(ctx)
			if err == errConnUnavailable {
				return nil, nil, nil, nil // conn drained under us, rescan
			}
			if err != nil {
				return nil, nil, nil, err
			}
			return pc, release, nil, nil
		}
	}
	if mayDial {
		p.dialing++
		p.mu.Unlock()
		pc, err := p.dial(ctx)
		p.mu.Lock()
		p.dialing--
		close(p.dialDone)
		p.dialDone = make(chan struct{})
		if err != nil {
			if ctx.Err() != nil {
				// the caller gave up mid-dial, the endpoint is not at
				// fault: no backoff window for everyone else
				p.mu.Unlock()
				return nil, nil, nil, err
			}
			next := p.redial.NextBackOff()
			p.naptime = time.Now().Add(next)
			p.mu.Unlock()
			p.log.Warn().Err(err).Str("host", p.endpoint.Host).
				Dur("backoff", next).Msg("dial failed")
			return nil, nil, nil, err
		}
		p.redial.Reset()
		p.conns = append(p.conns, pc)
		p.mu.Unlock()
		p.startJanitor()
		p.log.Debug().Str("host", p.endpoint.Host).
			Int64("streams", pc.budget).Msg("connection established")
		release, ok := pc.tryAcquire()
		if !ok {
			return nil, nil, nil, nil // immediately drained, rescan
		}
		return pc, release, nil, nil
	}
	// at budget everywhere: block on the least-loaded connection
	if pc := p.leastLoaded(); pc != nil {
		p.mu.Unlock()
		release, err := pc.acquire(ctx)
		if err == errConnUnavailable {
			return nil, nil, nil, nil
		}
		if err != nil {
			return nil, nil, nil, err
		}
		return pc, release, nil, nil
	}
	// a dial in progress will broadcast on completion; wait for it
	// instead of rescanning in a tight loop
	if p.dialing > 0 {
		wait := p.dialDone
		p.mu.Unlock()
		return nil, nil, wait, nil
	}
	// no connection and dialing is backed off: wait out the nap
	naptime := time.Until(p.naptime)
	p.mu.Unlock()
	if naptime <= 0 {
		return nil, nil, nil, nil
	}
	nap := make(chan struct{})
	time.AfterFunc(naptime, func() { close(nap) })
	return nil, nil, nap, nil
}

// leastLoaded picks the usable connection with the most free budget.
// Callers must hold the mutex.
func (p *connPool) leastLoaded() *conn {
	var best *conn
	var bestFree int64 = -1
	for _, pc := range p.conns {
		if pc.currentState() != stateReady {
			continue
		}
		if free := pc.budget - pc.inflight.Load(); free > bestFree {
			best, bestFree = pc, free
		}
	}
	return best
}

// prune drops closed and drained connections. Callers must hold the
// mutex.
func (p *connPool) prune() {
	live := p.conns[:0]
	for _, pc := range p.conns {
		switch pc.currentState() {
		case stateClosed:
			// evicted
		case stateDraining:
			if pc.inflight.Load() == 0 {
				pc.close()
			} else {
				live = append(live, pc)
			}
		default:
			live = append(live, pc)
		}
	}
	p.conns = live
}

// dial opens a TLS connection presenting the credential's identity,
// negotiates h2 and wraps the resulting client connection. The
// circuit breaker keeps a degraded endpoint from being dialed in a
// tight loop even across callers.
func (p *connPool) dial(ctx context.Context) (*conn, error) {
	// a credential failure is local, it never charges the breaker
	auth, err := p.conf.credential().authContext(time.Now())
	if err != nil {
		return nil, err
	}
	return p.breaker.Execute(func() (*conn, error) {
		tlsConf := p.conf.tlsConfig()
		tlsConf.Certificates = auth.Certificates
		dialCtx, cancel := context.WithTimeout(ctx, p.conf.DialTimeout)
		defer cancel()
		netConn, err := p.conf.dialContext(dialCtx, "tcp", p.endpoint.Addr(), tlsConf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TransportError{Err: err}
		}
		cc, err := new(http2.Transport).NewClientConn(netConn)
		if err != nil {
			netConn.Close()
			return nil, &TransportError{Err: err}
		}
		return newConn(cc, p.endpoint, p.conf.MaxStreams), nil
	})
}

// startJanitor launches the idle-eviction loop once the first
// connection exists.
func (p *connPool) startJanitor() {
	p.janitorOnce.Do(func() {
		go p.janitor()
	})
}

// janitor periodically drains idle connections and evicts dead ones.
// Handshakes are expensive, so connections are only closed after a
// full idle timeout without activity.
func (p *connPool) janitor() {
	interval := p.conf.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.Lock()
			var idle []*conn
			for _, pc := range p.conns {
				if pc.idleFor(p.conf.IdleTimeout) {
					idle = append(idle, pc)
				}
			}
			p.prune()
			p.mu.Unlock()
			for _, pc := range idle {
				p.log.Debug().Str("host", p.endpoint.Host).Msg("evicting idle connection")
				pc.close()
			}
		}
	}
}

// close shuts the pool down, draining in-flight exchanges.
func (p *connPool) close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	close(p.done)
	for _, pc := range conns {
		pc.drain(ctx)
	}
}

// defaultDialContext performs the TCP connect plus TLS handshake with
// ALPN h2.
func defaultDialContext(ctx context.Context, network, addr string, conf *tls.Config) (net.Conn, error) {
	dialer := &tls.Dialer{NetDialer: new(net.Dialer), Config: conf}
	return dialer.DialContext(ctx, network, addr)
}
