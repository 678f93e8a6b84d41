package voise

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/lexiqai/voise-gateway/internal/resilience"
	"github.com/lexiqai/voise-gateway/internal/speech"
)

// Options configures the connection to the Voise server.
type Options struct {
	DialTimeout time.Duration
	Retry       *resilience.RetryConfig
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Client talks to a Voise server. It implements speech.SessionClient and
// tts.Synthesizer over one shared connection.
type Client struct {
	addr   string
	conn   *grpc.ClientConn
	logger zerolog.Logger
}

// Dial connects to the Voise server at addr, retrying transient failures.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Keepalive settings for long-lived connections
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithBlock(),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	logger := log.With().Str("component", "voise").Str("server", addr).Logger()

	var conn *grpc.ClientConn
	err := resilience.Retry(ctx, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()

		c, err := grpc.DialContext(dialCtx, addr, dialOpts...)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to dial Voise server")
			if dialCtx.Err() != nil && ctx.Err() == nil {
				// Only this attempt timed out
				return resilience.NewRetryableError(err)
			}
			return err
		}
		conn = c
		return nil
	}, opts.Retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return nil, &speech.Error{Kind: speech.ErrConnection, Op: "dial", Err: fmt.Errorf("voise server %s: %w", addr, err)}
	}

	logger.Info().Msg("Connected to Voise server")
	return &Client{addr: addr, conn: conn, logger: logger}, nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Ping reports an error when the connection is failing or shut down.
func (c *Client) Ping(ctx context.Context) error {
	state := c.conn.GetState()
	switch state {
	case connectivity.Ready, connectivity.Connecting:
		return nil
	case connectivity.Idle:
		c.conn.Connect()
		return nil
	default:
		return fmt.Errorf("voise server %s: connection %s", c.addr, state)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
