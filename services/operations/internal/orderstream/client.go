package orderstream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/pkg/event"
	contract "github.com/appetiteclub/orderflow/pkg/orderstream"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	DefaultMaxAttempts     = 5
	DefaultBackoff         = 2 * time.Second
	DefaultRefetchInterval = time.Minute
	DefaultRetryAfter      = 30 * time.Second

	stopTimeout = 5 * time.Second
)

// EventStream yields order events until the channel drops.
type EventStream interface {
	Recv() (*event.OrderEvent, error)
}

// Dialer opens one subscription and returns a func releasing its connection.
type Dialer func(ctx context.Context, req contract.SubscribeRequest) (EventStream, func() error, error)

// GRPCDialer subscribes through the order service gRPC endpoint at addr.
func GRPCDialer(addr string) Dialer {
	return func(ctx context.Context, req contract.SubscribeRequest) (EventStream, func() error, error) {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, err
		}

		sub, err := contract.Open(ctx, conn, req)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}

		return sub, conn.Close, nil
	}
}

// Sink receives every event read from the stream.
type Sink interface {
	Apply(evt *event.OrderEvent) bool
}

// Refetcher reloads authoritative state over HTTP.
type Refetcher interface {
	Refetch(ctx context.Context) error
}

type Config struct {
	Request         contract.SubscribeRequest
	MaxAttempts     int
	Backoff         time.Duration
	RefetchInterval time.Duration
	// RetryAfter is the pause after a round of failed attempts. Zero makes
	// Run return the TransientChannelError instead.
	RetryAfter time.Duration
}

// Client keeps a terminal joined to its channels. After every connect it
// re-joins, then refetches, then applies events.
type Client struct {
	cfg       Config
	dial      Dialer
	sink      Sink
	refetcher Refetcher
	logger    apt.Logger

	sleep     func(context.Context, time.Duration) error
	connected atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(cfg Config, dial Dialer, sink Sink, refetcher Refetcher, logger apt.Logger) *Client {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}

	return &Client{
		cfg:       cfg,
		dial:      dial,
		sink:      sink,
		refetcher: refetcher,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Connected reports whether a subscription is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Start runs the client in the background. It does not block on the first connect.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	c.logger.Info("starting order stream client", "channels", strings.Join(c.cfg.Request.Channels(), ","))

	go func() {
		defer close(done)
		if err := c.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("order stream client stopped", "error", err)
		}
	}()

	return nil
}

// Stop cancels the stream loops and waits up to stopTimeout for them to exit.
// It does not wait on ctx, which is already done at shutdown.
func (c *Client) Stop(_ context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		c.logger.Error("order stream client did not stop in time", "timeout", stopTimeout.String())
	}
	return nil
}

// Run blocks until ctx is done or, with RetryAfter unset, until a connect round fails.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.streamLoop(ctx)
	})

	if c.refetcher != nil && c.cfg.RefetchInterval > 0 {
		g.Go(func() error {
			return c.refetchLoop(ctx)
		})
	}

	return g.Wait()
}

func (c *Client) streamLoop(ctx context.Context) error {
	for {
		stream, release, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("order stream unavailable", "error", err)
			if c.cfg.RetryAfter <= 0 {
				return err
			}
			if err := c.sleep(ctx, c.cfg.RetryAfter); err != nil {
				return err
			}
			continue
		}

		c.connected.Store(true)
		c.refetch(ctx)
		err = c.consume(stream)
		c.connected.Store(false)
		if release != nil {
			_ = release()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			c.logger.Error("order stream dropped", "error", err)
		} else {
			c.logger.Info("order stream closed by server")
		}

		if err := c.sleep(ctx, c.cfg.Backoff); err != nil {
			return err
		}
	}
}

func (c *Client) connect(ctx context.Context) (EventStream, func() error, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		stream, release, err := c.dial(ctx, c.cfg.Request)
		if err == nil {
			c.logger.Info("joined order stream", "attempt", attempt)
			return stream, release, nil
		}
		lastErr = err
		c.logger.Debug("order stream connect failed", "attempt", attempt, "error", err)

		if attempt < c.cfg.MaxAttempts {
			if err := c.sleep(ctx, c.cfg.Backoff); err != nil {
				return nil, nil, err
			}
		}
	}

	return nil, nil, &TransientChannelError{Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

func (c *Client) consume(stream EventStream) error {
	for {
		evt, err := stream.Recv()
		if err != nil {
			return err
		}
		if c.sink != nil && evt != nil {
			c.sink.Apply(evt)
		}
	}
}

func (c *Client) refetch(ctx context.Context) {
	if c.refetcher == nil {
		return
	}
	if err := c.refetcher.Refetch(ctx); err != nil && ctx.Err() == nil {
		c.logger.Error("authoritative refetch failed", "error", err)
	}
}

func (c *Client) refetchLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.RefetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refetch(ctx)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
