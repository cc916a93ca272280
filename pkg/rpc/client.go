package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrTransport wraps any failure reaching or calling a peer: connection
// refused, deadline exceeded, a non-OK grpc status. It is retryable.
var ErrTransport = errors.New("rpc: transport error")

// Client is a long-lived, dial-on-demand connection to one cluster peer.
// ChannelTasks and ActiveTasks are the two observables the attributes
// endpoint reports per peer: ChannelTasks counts callers waiting on the
// dial to complete, ActiveTasks counts calls currently in flight.
type Client struct {
	addr string

	dialMu sync.Mutex
	conn   *grpc.ClientConn

	channelTasks atomic.Int64
	activeTasks  atomic.Int64
}

// NewClient constructs a client for the given peer address. It does not
// dial until the first SendMessage call.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// ChannelTasks returns the number of callers currently blocked waiting
// for the dial-on-demand connection to become ready.
func (c *Client) ChannelTasks() int64 { return c.channelTasks.Load() }

// ActiveTasks returns the number of RPCs currently in flight.
func (c *Client) ActiveTasks() int64 { return c.activeTasks.Load() }

// Close tears down the underlying connection, if one was ever established.
func (c *Client) Close() error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) connection() (*grpc.ClientConn, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := grpc.NewClient(c.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, c.addr, err)
	}
	c.conn = conn
	return conn, nil
}

// SendMessage issues one Send call against the peer, dialing on demand.
// The message's MessageType discriminator is set by the caller before
// this is invoked.
func (c *Client) SendMessage(ctx context.Context, msg *Message) (*Reply, error) {
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.New().String()
	}

	c.channelTasks.Add(1)
	conn, err := c.connection()
	c.channelTasks.Add(-1)
	if err != nil {
		return nil, err
	}

	c.activeTasks.Add(1)
	defer c.activeTasks.Add(-1)

	reply := new(Reply)
	if err := conn.Invoke(ctx, sendMethod, msg, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return reply, nil
}

// SendWithRetry attempts SendMessage once, then retries on transport
// failure at a fixed interval (no backoff) up to maxRetries additional
// times. It performs exactly 1+maxRetries attempts on persistent failure
// and exactly one on first success. Callers must ensure msg is safe to
// send more than once; there is no dedup across attempts.
func (c *Client) SendWithRetry(ctx context.Context, msg *Message, maxRetries int, interval time.Duration) (*Reply, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		reply, err := c.SendMessage(ctx, msg)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, lastErr
}
