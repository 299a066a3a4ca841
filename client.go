package apns

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Client sends push notifications to the Apple Push Notification
// service. It owns one credential and a pool of multiplexed
// connections to one endpoint; connections are established lazily on
// the first send.
//
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	conf     *Config
	endpoint Endpoint
	pool     *connPool

	mu     sync.RWMutex
	closed bool
}

// New returns an initialized client for the configured credential and
// environment. No connection is made here: it happens automatically
// when the first notification is pushed.
func New(conf *Config) (*Client, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	endpoint := conf.endpoint()
	return &Client{
		conf:     conf,
		endpoint: endpoint,
		pool:     newConnPool(endpoint, conf, conf.Logger),
	}, nil
}

// NewWithToken returns a client using provider token authentication
// against the production environment.
func NewWithToken(pt *ProviderToken) (*Client, error) {
	return New(&Config{ProviderToken: pt})
}

// NewWithCertificate returns a client using certificate authentication.
// The environment is derived from the certificate when it supports
// only one of them.
func NewWithCertificate(cert *CertificateCredential) (*Client, error) {
	sandbox := false
	if info := cert.Info; info != nil && info.Development && !info.Production {
		sandbox = true
	}
	return New(&Config{Certificate: cert, Sandbox: sandbox})
}

// Push performs exactly one delivery attempt for the notification: it
// leases a stream from a pooled connection, frames the request per the
// APNs provider API and decodes the response. It never retries; for
// retry orchestration use Send or compose your own loop around Push
// with ClassifyError.
func (c *Client) Push(ctx context.Context, n *Notification) (*Response, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClientClosed
	}
	var authorization string
	if pt := c.conf.ProviderToken; pt != nil {
		auth, err := pt.authContext(time.Now())
		if err != nil {
			return nil, err
		}
		authorization = auth.Authorization
	}
	conn, release, err := c.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := c.buildRequest(ctx, n, authorization)
	if err != nil {
		return nil, err
	}
	httpResp, err := conn.roundTrip(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	resp, err := parseResponse(httpResp.StatusCode, httpResp.Header, httpResp.Body)
	log := c.conf.Logger
	if err != nil {
		log.Debug().Err(err).Str("token", n.deviceToken).
			Int("status", httpResp.StatusCode).Msg("push failed")
		return nil, err
	}
	log.Debug().Str("token", n.deviceToken).Str("id", resp.ID).Msg("push delivered")
	return resp, nil
}

// buildRequest frames a notification as POST /3/device/<token> with
// the apns-* headers. The authorization header is attached only in
// token mode; in certificate mode the identity was already presented
// during the handshake.
func (c *Client) buildRequest(ctx context.Context, n *Notification, authorization string) (*http.Request, error) {
	u := &url.URL{
		Scheme: "https",
		Host:   c.endpoint.Addr(),
		Path:   "/3/device/" + n.deviceToken,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(),
		bytes.NewReader(n.body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("apns-topic", n.topic)
	req.Header.Set("apns-push-type", string(n.pushType))
	if n.id != "" {
		req.Header.Set("apns-id", n.id)
	}
	if n.collapseID != "" {
		req.Header.Set("apns-collapse-id", n.collapseID)
	}
	if !n.expiration.IsZero() {
		req.Header.Set("apns-expiration", strconv.FormatInt(n.expiration.Unix(), 10))
	} else {
		req.Header.Set("apns-expiration", "0")
	}
	if n.priority != 0 {
		req.Header.Set("apns-priority", strconv.Itoa(n.priority))
	}
	if authorization != "" {
		req.Header.Set("authorization", authorization)
	}
	return req, nil
}

// Send delivers the notification with retries according to the
// configured RetryPolicy. Fatal and configuration failures surface
// immediately; retryable failures wait out the backoff schedule,
// honoring a server Retry-After hint when one is present. The loop
// terminates at the policy's attempt ceiling or when the context is
// done, whichever comes first.
func (c *Client) Send(ctx context.Context, n *Notification) (*Response, error) {
	policy := c.conf.Retry
	schedule := policy.newBackOff()
	attempts := policy.attempts()
	for attempt := 1; ; attempt++ {
		resp, err := c.Push(ctx, n)
		if err == nil {
			return resp, nil
		}
		if ClassifyError(err) != Retryable || attempt >= attempts {
			return nil, err
		}
		var hint time.Duration
		if respErr, ok := err.(*ResponseError); ok {
			hint = respErr.RetryAfter
			// the server rejected a token the cache still considers
			// fresh; re-sign before replaying it on the retry
			if respErr.Reason == ReasonExpiredProviderToken &&
				c.conf.ProviderToken != nil {
				c.conf.ProviderToken.invalidate()
			}
		}
		wait := nextWait(schedule, hint)
		c.conf.Logger.Debug().Err(err).Int("attempt", attempt).
			Dur("wait", wait).Msg("retrying push")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Close drains in-flight exchanges and tears down every pooled
// connection. The client accepts no new pushes afterwards.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.pool.close(ctx)
}

// PushResult reports the outcome of one notification sent through a
// ClientsPool.
type PushResult struct {
	Token string // device token of the notification
	ID    string // canonical UUID identifying the notification
	Err   error  // delivery failure, nil on success
}

// ClientsPool wraps a client with a queue for sending notifications
// asynchronously.
//
// The APNs server allows multiple concurrent streams for each
// connection, so a handful of workers multiplexed over the pooled
// connections delivers large batches without opening a connection per
// notification.
type ClientsPool struct {
	notifications chan *Notification
	wg            sync.WaitGroup
}

// Pool starts the given number of worker goroutines delivering queued
// notifications through the client. When results is not nil, every
// outcome is reported on it.
func (c *Client) Pool(workers uint, results chan<- PushResult) *ClientsPool {
	if workers == 0 {
		workers = 1
	}
	p := &ClientsPool{notifications: make(chan *Notification)}
	p.wg.Add(int(workers))
	for i := uint(0); i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for n := range p.notifications {
				resp, err := c.Send(context.Background(), n)
				if results != nil {
					result := PushResult{Token: n.deviceToken, Err: err}
					if resp != nil {
						result.ID = resp.ID
					}
					results <- result
				}
			}
		}()
	}
	return p
}

// Push queues a notification for asynchronous delivery.
func (p *ClientsPool) Push(n *Notification) {
	p.notifications <- n
}

// Close stops accepting notifications and waits for the workers to
// drain the queue. Call it only after all pushes have been queued.
func (p *ClientsPool) Close() {
	close(p.notifications)
	p.wg.Wait()
}
